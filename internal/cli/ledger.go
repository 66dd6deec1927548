package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fundme/internal/validation"
	"github.com/pendergraft/fundme/pkg/client"
)

func newClient() *client.Client {
	return client.New(getServer(), getAPIKey())
}

func createInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the ledger summary",
		Long: `Show the owner, price feed, network, balance, funder count, minimum
contribution and the latest price.

EXAMPLES:
  fundme info
  fundme info --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := newClient().Info(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}
			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printInfo(out io.Writer, info *client.Info) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Owner:\t%s\n", info.Owner)
	fmt.Fprintf(w, "Price feed:\t%s\n", info.PriceFeed)
	network := info.Network
	if info.Development {
		network += " (development, mock price feed)"
	}
	fmt.Fprintf(w, "Network:\t%s (chain %d)\n", network, info.ChainID)
	fmt.Fprintf(w, "Balance:\t%s\n", formatWei(info.Balance))
	fmt.Fprintf(w, "Funders:\t%d\n", info.FunderCount)
	fmt.Fprintf(w, "Minimum:\t%s USD\n", formatUSD(info.MinimumUSD))
	if info.Price != nil {
		fmt.Fprintf(w, "ETH/USD:\t%s (round %s)\n", formatScaled(info.Price.Answer, int(info.Price.Decimals)), info.Price.RoundID)
	} else {
		fmt.Fprintf(w, "ETH/USD:\tunavailable\n")
	}
	w.Flush()
}

func createFundCmd() *cobra.Command {
	var amount string

	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Contribute to the ledger",
		Long: `Contribute as the account bound to your API key. The contribution
must be worth at least the minimum in USD at the current price.

EXAMPLES:
  fundme fund --amount 0.03eth
  fundme fund --amount 30000000000000000
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := validation.ParseAmount(amount); err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			result, err := newClient().Fund(cmd.Context(), amount)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ Funded %s from %s\n", formatWei(result.Amount), result.Sender)
			fmt.Fprintf(out, "   Worth %s USD; total contribution %s\n", formatUSD(result.USDValue), formatWei(result.Contribution))
			return nil
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount in wei, or with an eth/gwei suffix (required)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func createWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw the balance to the owner (owner only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().Withdraw(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Withdrew %s to %s (%d funders cleared)\n",
				formatWei(result.Amount), result.Recipient, result.FundersCleared)
			return nil
		},
	}
}

func createFunderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "funder <index>",
		Short: "Show the funder at an index of the funders log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer: %s", args[0])
			}
			addr, err := newClient().Funder(cmd.Context(), index)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
}

func createContributionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contribution [address]",
		Short: "Show an address's current contribution",
		Long: `Show how much an address has contributed since the last withdrawal.
Without an address, the configured account is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := defaultAccount(args)
			if err != nil {
				return err
			}
			amount, err := newClient().AmountFunded(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", addr, formatWei(amount))
			return nil
		},
	}
}

func createBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show what has been paid out to an address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := defaultAccount(args)
			if err != nil {
				return err
			}
			balance, err := newClient().AccountBalance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", addr, formatWei(balance))
			return nil
		},
	}
}

func createEventsCmd() *cobra.Command {
	var q client.EventsQuery
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the ledger event journal",
		Long: `List fund and withdraw events, newest first.

EXAMPLES:
  fundme events
  fundme events --kind withdraw
  fundme events --account 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 --limit 5
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().Events(cmd.Context(), q)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printEvents(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&q.Kind, "kind", "", "filter by kind (fund or withdraw)")
	cmd.Flags().StringVar(&q.Account, "account", "", "filter by account")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "maximum events to show")
	cmd.Flags().StringVar(&q.Cursor, "cursor", "", "continue from a previous page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printEvents(out io.Writer, resp *client.EventsResponse) {
	if len(resp.Data) == 0 {
		fmt.Fprintln(out, "No events found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tKIND\tACCOUNT\tAMOUNT\tFUNDERS\tTIME")
	for _, e := range resp.Data {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", e.Seq, e.Kind, e.Account, formatWei(e.Amount), e.FunderCount, e.CreatedAt)
	}
	w.Flush()

	if resp.Pagination.HasMore {
		fmt.Fprintf(out, "\nMore events: --cursor %s\n", resp.Pagination.NextCursor)
	}
}

func createSetPriceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-price <answer>",
		Short: "Move the development price feed (owner only)",
		Long: `Start a new round on the mock price feed of a development network.
The answer is an integer at the feed's precision, e.g. 200000000000 for
2000 USD at 8 decimals.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := newClient().SetPriceAnswer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ ETH/USD is now %s (round %s)\n",
				formatScaled(price.Answer, int(price.Decimals)), price.RoundID)
			return nil
		},
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatWei renders a wei string as "0.03 ETH". Unparseable input is
// returned as is.
func formatWei(wei string) string {
	v, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return wei
	}
	return validation.FormatEther(v) + " ETH"
}

// formatUSD renders an 18-decimal USD amount.
func formatUSD(v string) string {
	return formatScaled(v, 18)
}

// formatScaled renders an integer string with the given number of decimals.
func formatScaled(v string, decimals int) string {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return v
	}
	if decimals == 18 {
		return validation.FormatEther(n)
	}
	// Rescale to 18 decimals and reuse the ether formatter.
	scaled := new(big.Int).Set(n)
	if decimals < 18 {
		scaled.Mul(scaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil))
	} else {
		scaled.Quo(scaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil))
	}
	return validation.FormatEther(scaled)
}
