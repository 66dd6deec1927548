// Package cli implements the fundme command line client.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	server  string
	apiKey  string
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fundme",
		Short: "Contribution ledger CLI",
		Long: `fundme talks to a fundme-server: contribute to the ledger, withdraw as
the owner, and inspect funders, contributions and the event journal.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: fundme.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")

	rootCmd.AddCommand(createInfoCmd())
	rootCmd.AddCommand(createFundCmd())
	rootCmd.AddCommand(createWithdrawCmd())
	rootCmd.AddCommand(createFunderCmd())
	rootCmd.AddCommand(createContributionCmd())
	rootCmd.AddCommand(createBalanceCmd())
	rootCmd.AddCommand(createEventsCmd())
	rootCmd.AddCommand(createSetPriceCmd())
	rootCmd.AddCommand(createDeploymentsCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createVersionCmd(version))

	return rootCmd
}

// getServer returns the server URL from flag, env, config file, or default
func getServer() string {
	if server != "" {
		return server
	}
	if env := os.Getenv("FUNDME_SERVER"); env != "" {
		return env
	}
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}
	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	if env := os.Getenv("FUNDME_API_KEY"); env != "" {
		return env
	}
	if cred := getCredential(getServer()); cred != "" {
		return cred
	}
	return ""
}
