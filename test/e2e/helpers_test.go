//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/fundme/internal/config"
	"github.com/pendergraft/fundme/internal/deploy"
	"github.com/pendergraft/fundme/internal/ledger/domain"
	"github.com/pendergraft/fundme/internal/networks"
	"github.com/pendergraft/fundme/internal/payout"
	"github.com/pendergraft/fundme/internal/server"
	"github.com/pendergraft/fundme/internal/storage"
	"github.com/pendergraft/fundme/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("fundme"),
		postgres.WithUsername("fundme"),
		postgres.WithPassword("fundme"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// openStoreE opens and migrates the shared Postgres store
func openStoreE(ctx context.Context, connString string) (storage.Store, error) {
	store, err := storage.New(config.StorageConfig{
		Type:     "postgres",
		Postgres: config.PostgresConfig{URL: connString},
	}, testLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// ledgerEnv is one deployed ledger served over HTTP. Every env gets fresh
// owner and funder accounts so payouts and journal rows in the shared
// database never collide between tests.
type ledgerEnv struct {
	Server    *httptest.Server
	Owner     common.Address
	Funder    common.Address
	OwnerKey  string
	FunderKey string
	Mock      bool
}

// newLedgerEnv deploys a ledger on the development network backed by the
// shared store and starts a server for it.
func newLedgerEnv(t *testing.T, cfgMutators ...func(*config.Config)) *ledgerEnv {
	t.Helper()
	ctx := context.Background()
	store := testCtx.Store
	logger := testLogger()

	env := &ledgerEnv{Owner: randomAddress(t), Funder: randomAddress(t)}

	transferer := payout.NewStoreTransferer(store)
	dep, err := deploy.NewDeployer(networks.Default(), store, transferer, logger, nil).Deploy(ctx, deploy.Params{
		Network:      "hardhat",
		Owner:        env.Owner,
		MinimumUSD:   domain.DefaultMinimumUSD,
		MockDecimals: 8,
	})
	require.NoError(t, err, "Failed to deploy ledger")
	t.Cleanup(dep.Close)
	env.Mock = dep.Mock != nil

	svc := domain.NewService(dep.Ledger, store, transferer,
		domain.WithNetwork(dep.Network.Name, dep.Network.ChainID, dep.Network.Development),
		domain.WithMockFeed(dep.Mock),
		domain.WithLogger(logger),
	)

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: 8080, Host: "0.0.0.0"},
		Logging:   config.LoggingConfig{Level: "warn", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{FilterEnabled: true, MaxBodySizeKB: 64},
		Proxy:     config.ProxyConfig{TrustProxy: false},
	}
	for _, mutate := range cfgMutators {
		mutate(cfg)
	}

	srv := server.New(cfg, store, domain.LoggingMiddleware(logger)(svc), logger, "1.0.0")
	t.Cleanup(srv.Close)
	env.Server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.Server.Close)

	env.OwnerKey = createTestAPIKey(t, store, "owner-"+t.Name(), env.Owner)
	env.FunderKey = createTestAPIKey(t, store, "funder-"+t.Name(), env.Funder)
	return env
}

func randomAddress(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey)
}

// eventsFor filters the journal to the env's funder.
func eventsFor(env *ledgerEnv) client.EventsQuery {
	return client.EventsQuery{Account: env.Funder.Hex()}
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// createTestAPIKey creates an API key bound to account using the store directly
func createTestAPIKey(t *testing.T, store storage.Store, name string, account common.Address) string {
	t.Helper()
	key, err := store.CreateAPIKey(context.Background(), name, account.Hex())
	require.NoError(t, err, "Failed to create API key")
	return key
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}
