package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/fundme/internal/config"
)

// Event kinds recorded in the journal.
const (
	EventFund     = "fund"
	EventWithdraw = "withdraw"
)

// EventStore is the append-only audit journal of committed ledger operations.
type EventStore interface {
	RecordEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*PaginatedResult[Event], error)
}

// PayoutStore holds the external balances withdrawals are paid into.
type PayoutStore interface {
	CreditPayout(ctx context.Context, p *Payout) error
	ListPayouts(ctx context.Context, account string) ([]Payout, error)
}

// DeploymentStore records each time a ledger is deployed.
type DeploymentStore interface {
	RecordDeployment(ctx context.Context, d *Deployment) error
	GetLatestDeployment(ctx context.Context, network string) (*Deployment, error)
	// ListDeployments returns deployments newest first. An empty network
	// matches every network.
	ListDeployments(ctx context.Context, network string, limit int) ([]Deployment, error)
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name, account string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	EventStore
	PayoutStore
	DeploymentStore
	APIKeyStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Event is one committed ledger operation. Amounts are base-10 wei strings.
type Event struct {
	Seq         int64
	ID          string
	Kind        string
	Account     string
	Amount      string
	USDValue    string // 18-decimal fixed point; empty for withdrawals
	FunderCount int    // funders log length after the operation
	CreatedAt   string
}

// Payout is a credit to an account's external balance.
type Payout struct {
	ID        string
	Account   string
	Amount    string
	CreatedAt string
}

// Deployment records the parameters a ledger was created with.
type Deployment struct {
	ID                 string
	Network            string
	ChainID            int
	Owner              string
	PriceFeed          string
	MockPriceFeed      bool
	MinimumUSD         int64
	BlockConfirmations int
	CreatedAt          string
}

// APIKey represents an API key bound to a ledger account.
type APIKey struct {
	ID         string
	Name       string
	Account    string
	KeyHash    string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// EventFilter contains filter options for listing events
type EventFilter struct {
	Kind    string
	Account string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
