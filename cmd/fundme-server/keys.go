package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fundme/internal/config"
	"github.com/pendergraft/fundme/internal/storage"
	"github.com/pendergraft/fundme/internal/validation"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	cmd.AddCommand(newKeysCreateCmd())
	cmd.AddCommand(newKeysListCmd())
	cmd.AddCommand(newKeysRevokeCmd())

	return cmd
}

func newKeysCreateCmd() *cobra.Command {
	var name, account, outputFile string
	var quiet, show bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key bound to an account",
		Long: `Create an API key. Requests made with the key fund and withdraw as
the bound account.

By default, the key is written to a file in the current directory.
The key is only shown once - it cannot be retrieved later.

EXAMPLES:
  # Key for the owner, written to ./fundme-key-owner.txt
  fundme-server keys create --name owner --account 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266

  # Print only (for piping to a secrets manager)
  fundme-server keys create --name ci --account 0x... --quiet | gh secret set FUNDME_API_KEY
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return createKey(cmd.Context(), store, cmd.OutOrStdout(), keyRequest{
				name:       name,
				account:    account,
				outputFile: outputFile,
				quiet:      quiet,
				show:       show,
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name/label for the key (required)")
	cmd.Flags().StringVar(&account, "account", "", "ledger account the key acts as (required)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write key to file (default: ./fundme-key-{name}.txt)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key (for piping)")
	cmd.Flags().BoolVar(&show, "show", false, "display key on screen")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return listKeys(cmd.Context(), store, cmd.OutOrStdout())
		},
	}
}

func newKeysRevokeCmd() *cobra.Command {
	var keyID string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		Long: `Revoke an API key to prevent further use. A unique ID prefix of at
least 8 characters is accepted.

Use 'fundme-server keys list' to find the key ID.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return revokeKey(cmd.Context(), store, cmd.OutOrStdout(), keyID)
		},
	}

	cmd.Flags().StringVar(&keyID, "id", "", "key ID to revoke (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// openStore opens and migrates storage with a quiet logger.
func openStore() (storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

type keyRequest struct {
	name       string
	account    string
	outputFile string
	quiet      bool
	show       bool
}

func createKey(ctx context.Context, store storage.APIKeyStore, out io.Writer, req keyRequest) error {
	account, err := validation.ParseAddress(req.account)
	if err != nil {
		return fmt.Errorf("--account: %w", err)
	}

	key, err := store.CreateAPIKey(ctx, req.name, account.Hex())
	if err != nil {
		return fmt.Errorf("creating API key: %w", err)
	}

	if req.quiet {
		fmt.Fprintln(out, key)
		return nil
	}

	if req.show {
		fmt.Fprintln(out, "⚠️  API key (save this - it cannot be retrieved later):")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "   ", key)
		fmt.Fprintln(out)
		return nil
	}

	outputFile := req.outputFile
	if outputFile == "" {
		outputFile = fmt.Sprintf("./fundme-key-%s.txt", req.name)
	}
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(outputFile, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("writing key to file: %w", err)
	}

	fmt.Fprintf(out, "✅ API key created: %s (account %s)\n", req.name, account.Hex())
	fmt.Fprintf(out, "   Written to: %s (mode 0600)\n", outputFile)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "   ⚠️  This key cannot be retrieved later. Keep it safe!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "   Usage:")
	fmt.Fprintln(out, "     export FUNDME_API_KEY=$(cat", outputFile+")")
	fmt.Fprintln(out, "     fundme fund --amount 0.03eth")
	return nil
}

func listKeys(ctx context.Context, store storage.APIKeyStore, out io.Writer) error {
	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys found")
		fmt.Fprintln(out)
		fmt.Fprintln(out, `Create one with: fundme-server keys create --name "my-key" --account 0x...`)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tACCOUNT\tCREATED\tLAST USED")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != "" {
			lastUsed = k.LastUsedAt
		}
		id := k.ID
		if len(id) > 8 {
			id = id[:8] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, k.Name, k.Account, k.CreatedAt, lastUsed)
	}
	return w.Flush()
}

func revokeKey(ctx context.Context, store storage.APIKeyStore, out io.Writer, keyID string) error {
	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	var matches []string
	for _, k := range keys {
		if k.ID == keyID {
			matches = []string{k.ID}
			break
		}
		if len(keyID) >= 8 && strings.HasPrefix(k.ID, keyID) {
			matches = append(matches, k.ID)
		}
	}

	switch len(matches) {
	case 0:
		return fmt.Errorf("key not found: %s", keyID)
	case 1:
	default:
		return fmt.Errorf("key ID %s is ambiguous (%d matches)", keyID, len(matches))
	}

	if err := store.RevokeAPIKey(ctx, matches[0]); err != nil {
		return fmt.Errorf("revoking API key: %w", err)
	}

	fmt.Fprintf(out, "✅ API key revoked: %s\n", keyID)
	return nil
}
