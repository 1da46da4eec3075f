// Package oracle tracks the last known spot price and the recent candle series.
package oracle

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/internal/storage/kv"
	"github.com/vadiminshakov/btcsim/pkg/retrier"
	"go.uber.org/zap"
)

// PriceCacheKey storage key of the last good price.
const PriceCacheKey = "cryptosim_last_price"

const (
	defaultPriceTimeout   = 10 * time.Second
	defaultCandlesTimeout = 15 * time.Second
	defaultKlineInterval  = "1m"
	defaultKlineLimit     = 60
)

// ErrInvalidPrice the source returned a zero or negative price.
var ErrInvalidPrice = errors.New("price source returned a non-positive price")

type priceSource interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

type klineSource interface {
	GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error)
}

type cachedPrice struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

// Oracle caches the latest price sample and candle series. Refreshes never block readers
// for longer than a field copy.
type Oracle struct {
	pair    domain.Pair
	prices  priceSource
	klines  klineSource
	cache   kv.Store
	logger  *zap.Logger
	retrier *retrier.Retrier
	now     func() time.Time

	priceTimeout   time.Duration
	candlesTimeout time.Duration
	klineInterval  string
	klineLimit     int

	mu               sync.RWMutex
	sample           domain.PriceSample
	candles          []domain.MarketCandle
	candlesErr       error
	candlesUpdatedAt time.Time
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithKlines enables candle refreshes from source.
func WithKlines(source klineSource, interval string, limit int) Option {
	return func(o *Oracle) {
		o.klines = source
		if interval != "" {
			o.klineInterval = interval
		}
		if limit > 0 {
			o.klineLimit = limit
		}
	}
}

// WithCache persists the last good price in store for use as a startup fallback.
func WithCache(store kv.Store) Option {
	return func(o *Oracle) {
		o.cache = store
	}
}

// WithTimeouts overrides the per-refresh deadlines.
func WithTimeouts(price, candles time.Duration) Option {
	return func(o *Oracle) {
		if price > 0 {
			o.priceTimeout = price
		}
		if candles > 0 {
			o.candlesTimeout = candles
		}
	}
}

// WithRetrier replaces the retrier used for candle fetches.
func WithRetrier(r *retrier.Retrier) Option {
	return func(o *Oracle) {
		o.retrier = r
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) {
		o.now = now
	}
}

// New creates an Oracle for pair. The sample reports Loading until the first refresh completes.
func New(pair domain.Pair, prices priceSource, logger *zap.Logger, opts ...Option) (*Oracle, error) {
	if prices == nil {
		return nil, errors.New("price source is required for oracle")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Oracle{
		pair:           pair,
		prices:         prices,
		logger:         logger,
		now:            time.Now,
		priceTimeout:   defaultPriceTimeout,
		candlesTimeout: defaultCandlesTimeout,
		klineInterval:  defaultKlineInterval,
		klineLimit:     defaultKlineLimit,
		sample:         domain.PriceSample{Loading: true},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.retrier == nil {
		o.retrier = retrier.New(retrier.WithOnRetry(func(attempt int, wait time.Duration, err error) {
			o.logger.Debug("retrying candle fetch", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}))
	}

	return o, nil
}

// RefreshPrice fetches a new price. On failure the last known price is kept, and when no
// price has ever been known the cached one is loaded instead.
func (o *Oracle) RefreshPrice(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, o.priceTimeout)
	defer cancel()

	price, err := o.prices.GetPrice(fetchCtx, o.pair)
	if err == nil && !price.IsPositive() {
		err = errors.Wrapf(ErrInvalidPrice, "got %s", price.String())
	}
	if err != nil {
		o.fail(ctx, err)
		return errors.Wrap(err, "refresh price")
	}

	now := o.now()

	o.mu.Lock()
	o.sample.Previous = o.sample.Price
	o.sample.Price = domain.KnownPrice(price)
	o.sample.UpdatedAt = now
	o.sample.Err = nil
	o.sample.Loading = false
	o.mu.Unlock()

	o.storeCache(ctx, price, now)

	return nil
}

func (o *Oracle) fail(ctx context.Context, err error) {
	o.logger.Warn("price refresh failed", zap.String("pair", o.pair.String()), zap.Error(err))

	o.mu.Lock()
	o.sample.Err = err
	o.sample.Loading = false
	needFallback := !o.sample.Price.Valid
	o.mu.Unlock()

	if !needFallback {
		return
	}

	cached, ok := o.loadCache(ctx)
	if !ok {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// a concurrent success may have landed meanwhile
	if o.sample.Price.Valid {
		return
	}
	o.sample.Price = domain.KnownPrice(cached.Price)
	o.sample.UpdatedAt = time.UnixMilli(cached.Timestamp)
	o.logger.Info("using cached price", zap.String("price", cached.Price.String()), zap.Time("cached_at", o.sample.UpdatedAt))
}

func (o *Oracle) storeCache(ctx context.Context, price decimal.Decimal, at time.Time) {
	if o.cache == nil {
		return
	}

	payload, err := json.Marshal(cachedPrice{Price: price, Timestamp: at.UnixMilli()})
	if err == nil {
		err = o.cache.Put(ctx, PriceCacheKey, payload)
	}
	if err != nil {
		o.logger.Warn("failed to cache price", zap.Error(err))
	}
}

func (o *Oracle) loadCache(ctx context.Context) (cachedPrice, bool) {
	if o.cache == nil {
		return cachedPrice{}, false
	}

	payload, err := o.cache.Get(ctx, PriceCacheKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			o.logger.Warn("failed to read cached price", zap.Error(err))
		}
		return cachedPrice{}, false
	}

	var cached cachedPrice
	if err := json.Unmarshal(payload, &cached); err != nil || !cached.Price.IsPositive() {
		o.logger.Warn("ignoring unreadable cached price", zap.ByteString("payload", payload))
		return cachedPrice{}, false
	}

	return cached, true
}

// RefreshCandles fetches the candle series with retries. On failure the previous series is kept.
func (o *Oracle) RefreshCandles(ctx context.Context) error {
	if o.klines == nil {
		return errors.New("oracle has no kline source")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.candlesTimeout)
	defer cancel()

	candles, err := retrier.DoWithData(o.retrier, fetchCtx, func(ctx context.Context) ([]domain.MarketCandle, error) {
		return o.klines.GetKlines(ctx, o.pair, o.klineInterval, o.klineLimit)
	})

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.candlesErr = err
		o.logger.Warn("candle refresh failed", zap.String("pair", o.pair.String()), zap.Error(err))
		return errors.Wrap(err, "refresh candles")
	}

	o.candles = candles
	o.candlesErr = nil
	o.candlesUpdatedAt = o.now()

	return nil
}

// CurrentPrice returns the last known price, invalid when none is known.
func (o *Oracle) CurrentPrice() decimal.NullDecimal {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.sample.Price
}

// Sample returns the full price state.
func (o *Oracle) Sample() domain.PriceSample {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.sample
}

// Candles returns a copy of the latest candle series, oldest first.
func (o *Oracle) Candles() []domain.MarketCandle {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]domain.MarketCandle, len(o.candles))
	copy(out, o.candles)

	return out
}

// CandlesStatus returns when the series was last replaced and the last refresh error.
func (o *Oracle) CandlesStatus() (time.Time, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.candlesUpdatedAt, o.candlesErr
}

// Pair returns the tracked pair.
func (o *Oracle) Pair() domain.Pair {
	return o.pair
}
