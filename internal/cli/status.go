package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show balances and profit at the current price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rc.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			price := a.Oracle().CurrentPrice()
			state := a.Portfolio().State()
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(a.Config().Pair, a.Portfolio().Metrics(price), a.Oracle().Sample(), len(state.Trades), time.Now()))

			return nil
		},
	}
}
