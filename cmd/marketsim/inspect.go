package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/mini-market/internal/config"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/persistence"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a summary of a stored run",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			if dbPath == "" {
				dbPath = config.Default().Persistence.Path
			}
			recent, _ := cmd.Flags().GetInt("recent")

			db, err := persistence.Open(dbPath, persistence.RetryPolicy{})
			if err != nil {
				return err
			}
			defer db.Close()

			has, err := db.HasWorldState()
			if err != nil {
				return err
			}
			if !has {
				fmt.Fprintf(cmd.OutOrStdout(), "No market stored in %s. Run 'marketsim run' first.\n", dbPath)
				return nil
			}
			return printInspect(cmd, db, recent)
		},
	}
	cmd.Flags().Int("recent", 10, "Number of recent transactions to list")
	return cmd
}

func printInspect(cmd *cobra.Command, db *persistence.DB, recent int) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := db.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run %s, %s (month %d)\n\n", s.RunID, engine.SimTime(s.LastMonth), s.LastMonth)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	row := func(k string, v any) { fmt.Fprintf(w, "%s\t%v\n", k, v) }
	row("Agents", humanize.Comma(int64(s.Agents)))
	row("Properties", humanize.Comma(int64(s.Properties)))
	row("For sale", humanize.Comma(int64(s.ForSale)))
	row("Sales", humanize.Comma(int64(s.Sales)))
	row("Volume", humanize.Comma(s.Volume))
	if s.Sales > 0 {
		row("Average price", humanize.Comma(s.Volume/int64(s.Sales)))
	}
	row("Negotiations", fmt.Sprintf("%s (%s agreed)", humanize.Comma(int64(s.Negotiations)), humanize.Comma(int64(s.Agreed))))
	row("Decisions", fmt.Sprintf("%s (%s fallbacks, %s corrections)",
		humanize.Comma(int64(s.Decisions)), humanize.Comma(int64(s.Fallbacks)), humanize.Comma(int64(s.Corrections))))
	if err := w.Flush(); err != nil {
		return err
	}

	stats, err := db.LoadZoneStats(s.LastMonth)
	if err != nil {
		return err
	}
	if len(stats) > 0 {
		fmt.Fprintln(out, "\nZones:")
		printZoneStats(out, stats)
	}

	if recent <= 0 {
		return nil
	}
	txs, err := db.RecentTransactions(ctx, recent)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}
	fmt.Fprintln(out, "\nRecent sales:")
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tPROPERTY\tBUYER\tSELLER\tPRICE\tROUNDS")
	for _, t := range txs {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%d\n",
			t.Month, t.PropertyID, t.BuyerID, t.SellerID, humanize.Comma(t.Price), t.RoundCount)
	}
	return w.Flush()
}

func printZoneStats(out io.Writer, stats []engine.ZoneStats) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ZONE\tLISTINGS\tBUYERS\tSALES\tAVG PRICE\tSUPPLY/DEMAND")
	for _, z := range stats {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%.2f\n",
			z.Zone, z.Listings, z.Buyers, z.Sales, humanize.Comma(z.AvgPrice), z.SupplyDemandRatio)
	}
	w.Flush()
}
