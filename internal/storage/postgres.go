package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const timeLayout = "2006-01-02 15:04:05"

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Ledger journal
	CREATE TABLE IF NOT EXISTS events (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		account TEXT NOT NULL,
		amount TEXT NOT NULL,
		usd_value TEXT NOT NULL DEFAULT '',
		funder_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- External balances credited by withdrawals
	CREATE TABLE IF NOT EXISTS payouts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		account TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- Deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		network TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		owner TEXT NOT NULL,
		price_feed TEXT NOT NULL,
		mock_price_feed BOOLEAN NOT NULL DEFAULT FALSE,
		minimum_usd BIGINT NOT NULL,
		block_confirmations INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		account TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_account ON events(account);
	CREATE INDEX IF NOT EXISTS idx_payouts_account ON payouts(account);
	CREATE INDEX IF NOT EXISTS idx_deployments_network ON deployments(network);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// RecordEvent appends an event to the journal
func (s *PostgresStore) RecordEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = generateID()
	}
	query := `
		INSERT INTO events (id, kind, account, amount, usd_value, funder_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq, created_at
	`
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, query, e.ID, e.Kind, normalizeAccount(e.Account), e.Amount, e.USDValue, e.FunderCount).
		Scan(&e.Seq, &createdAt)
	if err != nil {
		return err
	}
	e.CreatedAt = createdAt.Format(timeLayout)
	return nil
}

// ListEvents lists journal events newest first
func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*PaginatedResult[Event], error) {
	query, args, err := eventQuery(filter, pagination, func(n int) string { return "$" + strconv.Itoa(n) })
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt time.Time
		if err := rows.Scan(&e.Seq, &e.ID, &e.Kind, &e.Account, &e.Amount, &e.USDValue, &e.FunderCount, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt.Format(timeLayout)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pageEvents(events, pagination.Limit), nil
}

// CreditPayout records a payout to an account
func (s *PostgresStore) CreditPayout(ctx context.Context, p *Payout) error {
	if p.ID == "" {
		p.ID = generateID()
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO payouts (id, account, amount) VALUES ($1, $2, $3)",
		p.ID, normalizeAccount(p.Account), p.Amount)
	return err
}

// ListPayouts lists payouts to an account, oldest first
func (s *PostgresStore) ListPayouts(ctx context.Context, account string) ([]Payout, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, account, amount, created_at FROM payouts WHERE account = $1 ORDER BY created_at",
		normalizeAccount(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []Payout
	for rows.Next() {
		var p Payout
		var createdAt time.Time
		if err := rows.Scan(&p.ID, &p.Account, &p.Amount, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = createdAt.Format(timeLayout)
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// RecordDeployment records a deployment
func (s *PostgresStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	query := `
		INSERT INTO deployments (id, network, chain_id, owner, price_feed, mock_price_feed, minimum_usd, block_confirmations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query, d.ID, d.Network, d.ChainID, d.Owner, d.PriceFeed, d.MockPriceFeed, d.MinimumUSD, d.BlockConfirmations)
	return err
}

// GetLatestDeployment returns the most recent deployment on a network
func (s *PostgresStore) GetLatestDeployment(ctx context.Context, network string) (*Deployment, error) {
	query := `
		SELECT id, network, chain_id, owner, price_feed, mock_price_feed, minimum_usd, block_confirmations, created_at
		FROM deployments
		WHERE network = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var d Deployment
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, query, network).Scan(
		&d.ID, &d.Network, &d.ChainID, &d.Owner, &d.PriceFeed, &d.MockPriceFeed, &d.MinimumUSD, &d.BlockConfirmations, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.CreatedAt = createdAt.Format(timeLayout)
	return &d, nil
}

// ListDeployments returns deployments newest first
func (s *PostgresStore) ListDeployments(ctx context.Context, network string, limit int) ([]Deployment, error) {
	query := `
		SELECT id, network, chain_id, owner, price_feed, mock_price_feed, minimum_usd, block_confirmations, created_at
		FROM deployments
		WHERE ($1 = '' OR network = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, network, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		var d Deployment
		var createdAt time.Time
		if err := rows.Scan(&d.ID, &d.Network, &d.ChainID, &d.Owner, &d.PriceFeed, &d.MockPriceFeed, &d.MinimumUSD, &d.BlockConfirmations, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt = createdAt.Format(timeLayout)
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

// CreateAPIKey creates a new API key bound to an account
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name, account string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, account) VALUES ($1, $2, $3, $4)",
		id, hash, name, normalizeAccount(account))
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, account, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.Account, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.CreatedAt = createdAt.Format(timeLayout)
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all active API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, account, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var createdAt time.Time
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.Account, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = createdAt.Format(timeLayout)
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.Time.Format(timeLayout)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
