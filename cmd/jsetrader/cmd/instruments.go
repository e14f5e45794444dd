package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/spf13/cobra"
)

var instrumentsCmd = &cobra.Command{
	Use:   "instruments [TICKER,...]",
	Short: "List the built-in JSE instrument catalog",
	Long: `Print every instrument of the built-in catalog with its sector and
settlement lag. With an argument, validate a comma separated ticker list.

Examples:
  jsetrader instruments
  jsetrader instruments NPN,SBK,XYZ`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstruments,
}

func init() {
	rootCmd.AddCommand(instrumentsCmd)
}

func runInstruments(cmd *cobra.Command, args []string) error {
	cat := market.JSE()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		valid, invalid := cat.SplitTickers(args[0])
		for _, t := range valid {
			in, _ := cat.Lookup(t)
			fmt.Fprintf(out, "✓ %s  %s (%s)\n", t, in.Name, in.Sector)
		}
		for _, t := range invalid {
			fmt.Fprintf(out, "✗ %s  not a known JSE ticker\n", t)
		}
		if len(valid) == 0 {
			return fmt.Errorf("no valid JSE tickers in %q", args[0])
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tNAME\tSECTOR\tSETTLEMENT")
	for _, in := range cat.Instruments() {
		fmt.Fprintf(w, "%s\t%s\t%s\tT+%d\n", in.Symbol, in.Name, in.Sector, in.SettlementDays)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d instruments on the %s, prices in %s (%s)\n",
		cat.Len(), market.Exchange, market.Currency, market.CurrencySymbol)
	return nil
}
