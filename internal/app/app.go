// Package app assembles the simulator from its configuration.
package app

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/btcsim/config"
	"github.com/vadiminshakov/btcsim/internal/events"
	"github.com/vadiminshakov/btcsim/internal/ledger"
	"github.com/vadiminshakov/btcsim/internal/scheduler"
	"github.com/vadiminshakov/btcsim/internal/services/oracle"
	"github.com/vadiminshakov/btcsim/internal/storage/balancesnapshots"
	"github.com/vadiminshakov/btcsim/internal/storage/kv"
	"github.com/vadiminshakov/btcsim/internal/storage/ledgerstate"
	"github.com/vadiminshakov/btcsim/internal/storage/tradejournal"
	"github.com/vadiminshakov/btcsim/internal/web"
)

// App owns the storage handles, the portfolio session and the price oracle.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     kv.Store
	journal   tradejournal.Journal
	snapshots *balancesnapshots.WALStore
	balances  *events.BalanceBroadcaster

	portfolio *ledger.Portfolio
	oracle    *oracle.Oracle
}

type options struct {
	prices        priceService
	klines        klineService
	withSnapshots bool
}

// Option customizes New.
type Option func(*options)

// WithPriceSource replaces the platform price source.
func WithPriceSource(p priceService) Option {
	return func(o *options) { o.prices = p }
}

// WithKlineSource replaces the platform candle source.
func WithKlineSource(k klineService) Option {
	return func(o *options) { o.klines = k }
}

// WithoutSnapshots skips the snapshot WAL. One-shot commands use it so they never
// compete with a running server for the log.
func WithoutSnapshots() Option {
	return func(o *options) { o.withSnapshots = false }
}

// New opens the configured stores and wires the portfolio and oracle. The portfolio
// still needs Hydrate.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{withSnapshots: true}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger.With(zap.String("pair", cfg.Pair.String()))}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if o.prices == nil || o.klines == nil {
		client, err := newClient(ctx, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "create market data client")
		}
		provider, err := newServiceProvider(client)
		if err != nil {
			return nil, err
		}
		if o.prices == nil {
			o.prices = provider.Pricer()
		}
		if o.klines == nil {
			o.klines = provider.KlineProvider()
		}
	}

	a.store, err = kv.Open(kv.Options{Backend: cfg.Storage.Backend, Dir: cfg.Storage.Dir, SQLitePath: cfg.Storage.SQLitePath})
	if err != nil {
		return nil, errors.Wrap(err, "open state store")
	}

	repo, err := ledgerstate.NewRepository(a.store, a.logger)
	if err != nil {
		return nil, err
	}

	a.journal, err = tradejournal.Open(cfg.Journal.SQLitePath, a.logger)
	if err != nil {
		return nil, errors.Wrap(err, "open trade journal")
	}

	portfolioOpts := []ledger.PortfolioOption{ledger.WithPair(cfg.Pair), ledger.WithJournal(a.journal)}
	if o.withSnapshots {
		a.balances = events.NewBalanceBroadcaster(0)
		a.snapshots, err = balancesnapshots.NewWALStore(cfg.Snapshots.WALDir, balancesnapshots.WithPublisher(a.balances))
		if err != nil {
			return nil, errors.Wrap(err, "open balance snapshots")
		}
		portfolioOpts = append(portfolioOpts, ledger.WithSnapshots(a.snapshots))
	}

	a.portfolio, err = ledger.NewPortfolio(repo, a.logger, portfolioOpts...)
	if err != nil {
		return nil, err
	}

	a.oracle, err = oracle.New(cfg.Pair, o.prices, a.logger,
		oracle.WithKlines(o.klines, cfg.KlineInterval, cfg.KlineLimit),
		oracle.WithCache(a.store),
		oracle.WithTimeouts(cfg.PriceTimeout, cfg.CandlesTimeout),
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Portfolio returns the ledger session.
func (a *App) Portfolio() *ledger.Portfolio { return a.portfolio }

// Oracle returns the price oracle.
func (a *App) Oracle() *oracle.Oracle { return a.oracle }

// Journal returns the trade journal, a no-op one when disabled.
func (a *App) Journal() tradejournal.Journal { return a.journal }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Prepare hydrates the portfolio and fetches one price. A failed fetch is not fatal,
// the oracle may still serve the cached price.
func (a *App) Prepare(ctx context.Context) error {
	if err := a.portfolio.Hydrate(ctx); err != nil {
		return err
	}
	if err := a.oracle.RefreshPrice(ctx); err != nil {
		a.logger.Warn("initial price fetch failed", zap.Error(err))
	}

	return nil
}

// Serve hydrates the portfolio, starts the refresh jobs and serves the API until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	if err := a.portfolio.Hydrate(ctx); err != nil {
		return err
	}

	sched := scheduler.New(a.logger)
	if err := sched.Register(scheduler.Job{Name: "price", Interval: a.cfg.PollPriceInterval, Run: a.oracle.RefreshPrice}); err != nil {
		return err
	}
	if err := sched.Register(scheduler.Job{Name: "candles", Interval: a.cfg.PollCandlesInterval, Run: a.oracle.RefreshCandles}); err != nil {
		return err
	}
	// picks up trades made by one-shot CLI runs against the same store
	if err := sched.Register(scheduler.Job{Name: "portfolio", Interval: a.cfg.PollPriceInterval, Run: a.portfolio.Refresh}); err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	deps := web.Deps{
		Portfolio: a.portfolio,
		Oracle:    a.oracle,
		Journal:   a.journal,
		Logger:    a.logger,
	}
	// a nil *WALStore must not become a non-nil interface
	if a.snapshots != nil {
		deps.Snapshots = a.snapshots
		deps.Notifier = a.balances
	}
	server := web.NewServer(a.cfg.Web.Addr, deps)

	if len(a.cfg.Web.AutocertDomains) > 0 {
		return server.StartWithAutoTLS(ctx, a.cfg.Web.AutocertDomains, a.cfg.Web.CertCache)
	}

	return server.Start(ctx)
}

// Close releases every store. Safe on a partially built App.
func (a *App) Close() error {
	var err error
	if a.snapshots != nil {
		err = multierr.Append(err, a.snapshots.Close())
	}
	if a.journal != nil {
		err = multierr.Append(err, a.journal.Close())
	}
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}

	return err
}

// NewLogger returns a production logger, or a development one for level debug.
func NewLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", level)
	}
	cfg.Level = lvl

	return cfg.Build()
}
