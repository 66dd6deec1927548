package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fundme/pkg/client"
)

func createDeploymentsCmd() *cobra.Command {
	var network string
	var limit int
	var latest, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "List ledger deployments",
		Long: `List the ledgers the server has deployed, newest first.

EXAMPLES:
  fundme deployments
  fundme deployments --network polygon_amoy
  fundme deployments --network hardhat --latest
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			var deployments []client.Deployment
			if latest {
				if network == "" {
					return fmt.Errorf("--latest requires --network")
				}
				d, err := c.LatestDeployment(cmd.Context(), network)
				if err != nil {
					return err
				}
				deployments = []client.Deployment{*d}
			} else {
				list, err := c.Deployments(cmd.Context(), network, limit)
				if err != nil {
					return err
				}
				deployments = list
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), deployments)
			}
			printDeployments(cmd.OutOrStdout(), deployments)
			return nil
		},
	}

	cmd.Flags().StringVar(&network, "network", "", "filter by network")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum deployments to show")
	cmd.Flags().BoolVar(&latest, "latest", false, "show only the latest deployment on --network")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printDeployments(out io.Writer, deployments []client.Deployment) {
	if len(deployments) == 0 {
		fmt.Fprintln(out, "No deployments found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NETWORK\tCHAIN\tOWNER\tPRICE FEED\tMINIMUM\tCREATED")
	for _, d := range deployments {
		feed := d.PriceFeed
		if d.MockPriceFeed {
			feed += " (mock)"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d USD\t%s\n", d.Network, d.ChainID, d.Owner, feed, d.MinimumUSD, d.CreatedAt)
	}
	w.Flush()
}
