package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vadiminshakov/btcsim/internal/app"
)

func newServeCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll prices and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rc.loadConfig()
			if err != nil {
				return err
			}

			logger, err := app.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			a, err := app.New(cmd.Context(), cfg, logger, rc.appOptions...)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("failed to close stores", zap.Error(err))
				}
			}()

			logger.Info("starting simulator",
				zap.String("platform", cfg.Platform),
				zap.String("pair", cfg.Pair.String()),
				zap.String("addr", cfg.Web.Addr),
				zap.Duration("poll_price_interval", cfg.PollPriceInterval))

			return a.Serve(cmd.Context())
		},
	}
}
