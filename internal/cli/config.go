package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/pendergraft/fundme/internal/validation"
)

const projectConfigFile = "fundme.toml"

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server string `toml:"server"`
	// Account is looked up by contribution and balance when no address is given.
	Account string `toml:"account,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL, account string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a fundme.toml configuration file in the current directory.

EXAMPLES:
  fundme config init
  fundme config init --server https://fundme.example.com --account 0x70997970C51812dc3A010C7d01b50e0d17dc79C8
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), projectConfigFile, serverURL, account, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&account, "account", "", "default account for contribution and balance lookups")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(out io.Writer, path, serverURL, account string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}
	if account != "" {
		if err := validation.ValidateAddress(account); err != nil {
			return fmt.Errorf("--account: %w", err)
		}
	}

	content := fmt.Sprintf(`# fundme client configuration

server = %q
`, serverURL)
	if account != "" {
		content += fmt.Sprintf("account = %q\n", account)
	} else {
		content += "# account = \"0x...\"\n"
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Run 'fundme auth login' with a key from 'fundme-server keys create'")
	fmt.Fprintln(out, "  2. Run 'fundme fund --amount 0.03eth' to contribute")
	return nil
}

func runConfigShow(out io.Writer) error {
	fmt.Fprintln(out, "Configuration sources (in order of precedence):")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "1. Command line flags")
	fmt.Fprintln(out, "   --server, --api-key, --config")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "2. Environment variables")
	for _, name := range []string{"FUNDME_SERVER", "FUNDME_API_KEY"} {
		v := os.Getenv(name)
		switch {
		case v == "":
			v = "(not set)"
		case name == "FUNDME_API_KEY":
			v = maskAPIKey(v)
		}
		fmt.Fprintf(out, "   %s=%s\n", name, v)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "3. Project config (%s)\n", projectConfigFile)
	projectConfig, path, err := loadProjectConfig()
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(out, "   (not found)")
	case err != nil:
		fmt.Fprintf(out, "   Error: %v\n", err)
	default:
		fmt.Fprintf(out, "   Loaded from: %s\n", path)
		if projectConfig.Server != "" {
			fmt.Fprintf(out, "   server: %s\n", projectConfig.Server)
		}
		if projectConfig.Account != "" {
			fmt.Fprintf(out, "   account: %s\n", projectConfig.Account)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "4. Credentials (~/.fundme/credentials)")
	creds, err := loadCredentials()
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(out, "   (not found)")
	case err != nil:
		fmt.Fprintf(out, "   Error: %v\n", err)
	case len(creds.Servers) == 0:
		fmt.Fprintln(out, "   (no credentials stored)")
	default:
		for s, cred := range creds.Servers {
			fmt.Fprintf(out, "   %s: %s\n", s, maskAPIKey(cred.APIKey))
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Effective configuration:")
	fmt.Fprintf(out, "   Server:  %s\n", getServer())
	if key := getAPIKey(); key != "" {
		fmt.Fprintf(out, "   API Key: %s\n", maskAPIKey(key))
	} else {
		fmt.Fprintln(out, "   API Key: (not set)")
	}
	return nil
}

// loadProjectConfig loads --config if given, else fundme.toml in the
// working directory.
func loadProjectConfig() (*ProjectConfig, string, error) {
	path := projectConfigFile
	if cfgFile != "" {
		path = cfgFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, path, fmt.Errorf("parsing TOML: %w", err)
	}
	return &config, path, nil
}

// loadProjectConfigSilent returns nil when no config exists and warns on
// parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		}
		return nil
	}
	return config
}

// defaultAccount resolves the account for lookups: the argument, then the
// project config, then the account saved at login.
func defaultAccount(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if config := loadProjectConfigSilent(); config != nil && config.Account != "" {
		return config.Account, nil
	}
	if creds, err := loadCredentials(); err == nil {
		if cred, ok := creds.Servers[getServer()]; ok && cred.Account != "" {
			return cred.Account, nil
		}
	}
	return "", errors.New("no address given and no default account configured")
}
