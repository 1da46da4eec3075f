package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/btcsim/internal/app"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/internal/ledger"
	"github.com/vadiminshakov/btcsim/pkg/format"
)

type mutation func(ctx context.Context, a *app.App, price decimal.NullDecimal) (domain.LedgerState, error)

func newBuyCmd(rc *rootConfig) *cobra.Command {
	return newTradeCmd(rc, domain.TradeKindBuy, &cobra.Command{
		Use:   "buy [usd]",
		Short: "Buy BTC for the given USD amount",
		Example: `  btcsim buy 2500
  btcsim buy --pct 25
  btcsim buy 2500 --dry-run`,
	})
}

func newSellCmd(rc *rootConfig) *cobra.Command {
	return newTradeCmd(rc, domain.TradeKindSell, &cobra.Command{
		Use:   "sell [btc]",
		Short: "Sell the given BTC amount",
		Example: `  btcsim sell 0.015
  btcsim sell --pct 50`,
	})
}

// newTradeCmd takes the amount either as the argument or as a --pct preset of the balance.
func newTradeCmd(rc *rootConfig, kind domain.TradeKind, cmd *cobra.Command) *cobra.Command {
	var (
		pct    int
		dryRun bool
	)

	cmd.Args = cobra.MaximumNArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		usePreset := cmd.Flags().Changed("pct")
		if usePreset == (len(args) == 1) {
			return errors.New("give either an amount or --pct")
		}

		var amount decimal.Decimal
		if !usePreset {
			var err error
			if amount, err = parseAmount(args[0]); err != nil {
				return err
			}
		}
		resolve := func(p *ledger.Portfolio) (decimal.Decimal, error) {
			if usePreset {
				return p.PresetAmount(kind, pct)
			}
			return amount, nil
		}

		if dryRun {
			return rc.runPreview(cmd, kind, resolve)
		}

		return rc.runMutation(cmd, func(ctx context.Context, a *app.App, price decimal.NullDecimal) (domain.LedgerState, error) {
			amount, err := resolve(a.Portfolio())
			if err != nil {
				return domain.LedgerState{}, err
			}
			if kind == domain.TradeKindSell {
				return a.Portfolio().Sell(ctx, price, amount)
			}
			return a.Portfolio().Buy(ctx, price, amount)
		})
	}

	cmd.Flags().IntVar(&pct, "pct", 0, fmt.Sprintf("trade a share of the balance in percent, one of %v", ledger.Presets))
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what the trade would move without applying it")

	return cmd
}

func newBuyAllCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "buy-all",
		Short: "Spend the whole USD balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.runMutation(cmd, func(ctx context.Context, a *app.App, price decimal.NullDecimal) (domain.LedgerState, error) {
				return a.Portfolio().BuyAll(ctx, price)
			})
		},
	}
}

func newSellAllCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sell-all",
		Short: "Sell the whole BTC balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.runMutation(cmd, func(ctx context.Context, a *app.App, price decimal.NullDecimal) (domain.LedgerState, error) {
				return a.Portfolio().SellAll(ctx, price)
			})
		},
	}
}

func newResetCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the initial balance and clear the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.runMutation(cmd, func(ctx context.Context, a *app.App, price decimal.NullDecimal) (domain.LedgerState, error) {
				return a.Portfolio().Reset(ctx, price)
			})
		},
	}
}

// runMutation applies fn at the freshly fetched price and prints the outcome.
func (rc *rootConfig) runMutation(cmd *cobra.Command, fn mutation) error {
	ctx := cmd.Context()
	a, err := rc.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	price := a.Oracle().CurrentPrice()

	state, err := fn(ctx, a, price)
	if err != nil {
		return rejected(err)
	}

	out := cmd.OutOrStdout()
	if len(state.Trades) == 0 {
		fmt.Fprintln(out, "Portfolio reset to", format.Currency(domain.InitialBalance))
	} else {
		t := state.Trades[0]
		fmt.Fprintf(out, "%s %s BTC @ %s for %s\n",
			strings.ToUpper(t.Kind.String()), format.BTC(t.AssetAmount), format.Currency(t.Price), format.Currency(t.CashAmount))
	}

	fmt.Fprintln(out, renderStatus(a.Config().Pair, a.Portfolio().Metrics(price), a.Oracle().Sample(), len(state.Trades), time.Now()))

	return nil
}

// runPreview prints the quote for a trade at the freshly fetched price.
func (rc *rootConfig) runPreview(cmd *cobra.Command, kind domain.TradeKind, resolve func(*ledger.Portfolio) (decimal.Decimal, error)) error {
	a, err := rc.openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	amount, err := resolve(a.Portfolio())
	if err != nil {
		return rejected(err)
	}
	q, err := a.Portfolio().Quote(kind, a.Oracle().CurrentPrice(), amount)
	if err != nil {
		return rejected(err)
	}

	state := a.Portfolio().State()
	covered := q.Cash.LessThanOrEqual(state.Cash)
	if kind == domain.TradeKindSell {
		covered = q.Asset.LessThanOrEqual(state.Asset)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Preview %s %s BTC @ %s USD for %s\n",
		strings.ToUpper(kind.String()), format.BTC(q.Asset), format.Number(q.Price, 2), format.Currency(q.Cash))
	if !covered {
		fmt.Fprintln(out, lossStyle.Render("Balance does not cover this trade"))
	}

	return nil
}

func rejected(err error) error {
	if domain.IsRejection(err) {
		return errors.Wrap(err, "rejected")
	}

	return err
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Errorf("invalid amount %q", s)
	}

	return d, nil
}

