package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fundme/internal/config"
	"github.com/pendergraft/fundme/internal/networks"
)

func newNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "Show the network table the ledger can deploy to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			table, err := loadNetworks(cfg)
			if err != nil {
				return err
			}
			return printNetworks(cmd.OutOrStdout(), table)
		},
	}
}

func printNetworks(out io.Writer, table *networks.Table) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCHAIN ID\tPRICE FEED\tCONFIRMATIONS")
	for _, n := range table.List() {
		feed := n.PriceFeed.Hex()
		if n.Development {
			feed = "mock (development)"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", n.Name, n.ChainID, feed, n.Confirmations())
	}
	return w.Flush()
}
