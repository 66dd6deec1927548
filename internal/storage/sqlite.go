package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Ledger journal
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		account TEXT NOT NULL,
		amount TEXT NOT NULL,
		usd_value TEXT NOT NULL DEFAULT '',
		funder_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT DEFAULT (datetime('now'))
	);

	-- External balances credited by withdrawals
	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		account TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now'))
	);

	-- Deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		network TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		owner TEXT NOT NULL,
		price_feed TEXT NOT NULL,
		mock_price_feed INTEGER NOT NULL DEFAULT 0,
		minimum_usd INTEGER NOT NULL,
		block_confirmations INTEGER NOT NULL DEFAULT 1,
		created_at TEXT DEFAULT (datetime('now'))
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		account TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		last_used_at TEXT,
		revoked_at TEXT
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
func (s *SQLiteStore) RecordEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = generateID()
	}
	query := `
		INSERT INTO events (id, kind, account, amount, usd_value, funder_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		RETURNING seq, created_at
	`
	return s.db.QueryRowContext(ctx, query, e.ID, e.Kind, normalizeAccount(e.Account), e.Amount, e.USDValue, e.FunderCount).
		Scan(&e.Seq, &e.CreatedAt)
}

// ListEvents lists journal events newest first
func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*PaginatedResult[Event], error) {
	query, args, err := eventQuery(filter, pagination, func(int) string { return "?" })
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
		if err := rows.Scan(&e.Seq, &e.ID, &e.Kind, &e.Account, &e.Amount, &e.USDValue, &e.FunderCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pageEvents(events, pagination.Limit), nil
}

// CreditPayout records a payout to an account
func (s *SQLiteStore) CreditPayout(ctx context.Context, p *Payout) error {
	if p.ID == "" {
		p.ID = generateID()
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO payouts (id, account, amount, created_at) VALUES (?, ?, ?, datetime('now'))",
		p.ID, normalizeAccount(p.Account), p.Amount)
	return err
}

// ListPayouts lists payouts to an account, oldest first
func (s *SQLiteStore) ListPayouts(ctx context.Context, account string) ([]Payout, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, account, amount, created_at FROM payouts WHERE account = ? ORDER BY created_at, rowid",
		normalizeAccount(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []Payout
	for rows.Next() {
		var p Payout
		if err := rows.Scan(&p.ID, &p.Account, &p.Amount, &p.CreatedAt); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// RecordDeployment records a deployment
func (s *SQLiteStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	query := `
		INSERT INTO deployments (id, network, chain_id, owner, price_feed, mock_price_feed, minimum_usd, block_confirmations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
	`
	_, err := s.db.ExecContext(ctx, query, d.ID, d.Network, d.ChainID, d.Owner, d.PriceFeed, d.MockPriceFeed, d.MinimumUSD, d.BlockConfirmations)
	return err
}

// GetLatestDeployment returns the most recent deployment on a network
func (s *SQLiteStore) GetLatestDeployment(ctx context.Context, network string) (*Deployment, error) {
	query := `
		SELECT id, network, chain_id, owner, price_feed, mock_price_feed, minimum_usd, block_confirmations, created_at
		FROM deployments
		WHERE network = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`
	var d Deployment
	err := s.db.QueryRowContext(ctx, query, network).Scan(
		&d.ID, &d.Network, &d.ChainID, &d.Owner, &d.PriceFeed, &d.MockPriceFeed, &d.MinimumUSD, &d.BlockConfirmations, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeployments returns deployments newest first
func (s *SQLiteStore) ListDeployments(ctx context.Context, network string, limit int) ([]Deployment, error) {
	query := `
		SELECT id, network, chain_id, owner, price_feed, mock_price_feed, minimum_usd, block_confirmations, created_at
		FROM deployments
		WHERE (? = '' OR network = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, network, network, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		var d Deployment
		if err := rows.Scan(&d.ID, &d.Network, &d.ChainID, &d.Owner, &d.PriceFeed, &d.MockPriceFeed, &d.MinimumUSD, &d.BlockConfirmations, &d.CreatedAt); err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

// CreateAPIKey creates a new API key bound to an account
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name, account string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, account, created_at) VALUES (?, ?, ?, ?, datetime('now'))",
		id, hash, name, normalizeAccount(account))
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, account, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.Account, &ak.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all active API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, account, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.Account, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.String
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = datetime('now') WHERE id = ? AND revoked_at IS NULL", id)
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
