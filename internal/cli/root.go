// Package cli implements the btcsim command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/btcsim/config"
	"github.com/vadiminshakov/btcsim/internal/app"
)

const defaultConfigPath = "btcsim.yaml"

// rootConfig carries the global flags and test hooks to every command.
type rootConfig struct {
	configPath string
	appOptions []app.Option
}

// Option customizes the root command.
type Option func(*rootConfig)

// WithAppOptions passes extra options to every app the commands build.
func WithAppOptions(opts ...app.Option) Option {
	return func(rc *rootConfig) { rc.appOptions = append(rc.appOptions, opts...) }
}

// New builds the root command.
func New(opts ...Option) *cobra.Command {
	rc := &rootConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	cmd := &cobra.Command{
		Use:   "btcsim",
		Short: "Paper trading of BTC against a virtual USD balance",
		Long: `btcsim simulates spot trading of BTC with a live price feed.

The portfolio starts with $10,000 and no BTC. Every buy and sell is executed
at the last known price, persisted locally and journaled.

Examples:
  btcsim serve
  btcsim buy 2500
  btcsim sell 0.01
  btcsim trades --all`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&rc.configPath, "config", "c", "", "path to YAML config (defaults apply when empty)")

	cmd.AddCommand(
		newServeCmd(rc),
		newStatusCmd(rc),
		newBuyCmd(rc),
		newSellCmd(rc),
		newBuyAllCmd(rc),
		newSellAllCmd(rc),
		newResetCmd(rc),
		newTradesCmd(rc),
		newSetupCmd(rc),
	)

	return cmd
}

// Execute runs the command line until completion or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return New().ExecuteContext(ctx)
}

func (rc *rootConfig) loadConfig() (config.Config, error) {
	return config.Load(rc.configPath)
}

// openApp builds the app for a one-shot command: quiet logging, no snapshot WAL,
// hydrated portfolio and one price fetch.
func (rc *rootConfig) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := rc.loadConfig()
	if err != nil {
		return nil, err
	}

	level := "warn"
	if cfg.LogLevel == "debug" {
		level = cfg.LogLevel
	}
	logger, err := app.NewLogger(level)
	if err != nil {
		return nil, err
	}

	opts := append([]app.Option{app.WithoutSnapshots()}, rc.appOptions...)
	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.Prepare(ctx); err != nil {
		_ = a.Close()
		return nil, errors.Wrap(err, "load portfolio")
	}

	return a, nil
}
