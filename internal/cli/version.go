package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fundme/internal/validation"
)

func createVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and server versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverVersion, err := newClient().Version(cmd.Context())
			printVersions(cmd.OutOrStdout(), version, serverVersion, err)
			return nil
		},
	}
}

func printVersions(out io.Writer, clientVersion, serverVersion string, serverErr error) {
	fmt.Fprintf(out, "Client: %s\n", clientVersion)
	if serverErr != nil {
		fmt.Fprintf(out, "Server: unreachable (%v)\n", serverErr)
		return
	}
	fmt.Fprintf(out, "Server: %s (%s)\n", serverVersion, getServer())
	if !validation.CompatibleVersions(clientVersion, serverVersion) {
		fmt.Fprintf(out, "⚠️  Client %s and server %s have different major versions\n",
			validation.NormalizeVersion(clientVersion), validation.NormalizeVersion(serverVersion))
	}
}
