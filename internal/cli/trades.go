package cli

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/btcsim/internal/domain"
)

func newTradesCmd(rc *rootConfig) *cobra.Command {
	var (
		all   bool
		limit int
		raw   bool
	)

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recent trades",
		Long: `List trades newest first.

By default the last 50 trades kept with the portfolio are shown. With --all the
trade journal is queried instead, which keeps every trade ever made.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}

			a, err := rc.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			title := "Recent trades"
			trades := a.Portfolio().State().Trades
			if all {
				title = "Trade journal"
				trades, err = a.Journal().ListTrades(cmd.Context(), limit)
				if err != nil {
					return errors.Wrap(err, "read trade journal")
				}
			}
			if len(trades) > limit {
				trades = trades[:limit]
			}

			md := tradesMarkdown(title, trades, time.Now())
			if !raw {
				md = renderMarkdown(md)
			}
			fmt.Fprint(cmd.OutOrStdout(), md)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "read the full trade journal")
	cmd.Flags().IntVarP(&limit, "limit", "n", domain.MaxTrades, "maximum number of trades to show")
	cmd.Flags().BoolVar(&raw, "raw", false, "print plain markdown")

	return cmd
}
