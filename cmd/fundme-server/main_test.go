package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/fundme/internal/config"
	"github.com/pendergraft/fundme/internal/networks"
	"github.com/pendergraft/fundme/internal/storage"
)

const account = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "keys.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestCreateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("quiet prints only the key", func(t *testing.T) {
		store := newStore(t)
		var out bytes.Buffer
		require.NoError(t, createKey(ctx, store, &out, keyRequest{name: "ci", account: account, quiet: true}))

		key := strings.TrimSpace(out.String())
		assert.True(t, strings.HasPrefix(key, storage.APIKeyPrefix))

		validated, err := store.ValidateAPIKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(account), strings.ToLower(validated.Account))
	})

	t.Run("writes file", func(t *testing.T) {
		store := newStore(t)
		path := filepath.Join(t.TempDir(), "nested", "key.txt")
		var out bytes.Buffer
		require.NoError(t, createKey(ctx, store, &out, keyRequest{name: "owner", account: account, outputFile: path}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), storage.APIKeyPrefix))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
		assert.Contains(t, out.String(), "Written to")
	})

	t.Run("rejects bad account", func(t *testing.T) {
		err := createKey(ctx, newStore(t), io.Discard, keyRequest{name: "x", account: "0x12", quiet: true})
		assert.ErrorContains(t, err, "--account")
	})
}

func TestListAndRevokeKeys(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var out bytes.Buffer
	require.NoError(t, listKeys(ctx, store, &out))
	assert.Contains(t, out.String(), "No API keys found")

	require.NoError(t, createKey(ctx, store, io.Discard, keyRequest{name: "alice", account: account, quiet: true}))
	keys, err := store.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	out.Reset()
	require.NoError(t, listKeys(ctx, store, &out))
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "never")

	assert.ErrorContains(t, revokeKey(ctx, store, io.Discard, "missing-id"), "key not found")

	out.Reset()
	require.NoError(t, revokeKey(ctx, store, &out, keys[0].ID[:8]))
	assert.Contains(t, out.String(), "revoked")
}

func TestPrintNetworks(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printNetworks(&out, networks.Default()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "CHAIN ID")
	assert.Contains(t, out.String(), "celo_alfajores")
	assert.Contains(t, out.String(), "mock (development)")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestLoadNetworks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks:\n  sepolia:\n    chain_id: 11155111\n    eth_usd_price_feed: \"0x694AA1769357215DE4FAC081bf1f309aDC325306\"\n"), 0644))

	table, err := loadNetworks(&config.Config{Ledger: config.LedgerConfig{NetworksFile: path}})
	require.NoError(t, err)
	_, err = table.ByName("sepolia")
	assert.NoError(t, err)

	_, err = loadNetworks(&config.Config{Ledger: config.LedgerConfig{NetworksFile: filepath.Join(t.TempDir(), "nope.yaml")}})
	assert.Error(t, err)
}
