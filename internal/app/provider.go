package app

import (
	"context"
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/btcsim/config"
	"github.com/vadiminshakov/btcsim/internal/clients"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/internal/services/market/collector"
	"github.com/vadiminshakov/btcsim/internal/services/pricer"
)

type priceService interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

type klineService interface {
	GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error)
}

// serviceProvider creates the market data services of one platform.
type serviceProvider interface {
	Pricer() priceService
	KlineProvider() klineService
}

// newClient builds the SDK client for the configured platform.
func newClient(ctx context.Context, cfg config.Config) (any, error) {
	switch cfg.Platform {
	case config.PlatformBinance:
		return clients.NewBinanceClient(""), nil
	case config.PlatformBybit:
		return clients.NewBybitClient(""), nil
	case config.PlatformHyperliquid:
		return clients.NewHyperliquidClient(ctx, cfg.HyperliquidURL)
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}

// newServiceProvider dispatches on the client type.
func newServiceProvider(client any) (serviceProvider, error) {
	switch c := client.(type) {
	case *binance.Client:
		return &binanceProvider{client: c}, nil
	case *bybit.Client:
		return &bybitProvider{client: c}, nil
	case *clients.HyperliquidClient:
		return &hyperliquidProvider{client: c}, nil
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}

type binanceProvider struct {
	client *binance.Client
}

func (p *binanceProvider) Pricer() priceService {
	return pricer.NewBinancePricer(p.client)
}
func (p *binanceProvider) KlineProvider() klineService {
	return collector.NewBinanceKlineProvider(p.client)
}

type bybitProvider struct {
	client *bybit.Client
}

func (p *bybitProvider) Pricer() priceService {
	return pricer.NewBybitPricer(p.client)
}
func (p *bybitProvider) KlineProvider() klineService {
	return collector.NewBybitKlineProvider(p.client)
}

type hyperliquidProvider struct {
	client *clients.HyperliquidClient
}

func (p *hyperliquidProvider) Pricer() priceService {
	return pricer.NewHyperliquidPricer(p.client.Info())
}
func (p *hyperliquidProvider) KlineProvider() klineService {
	return collector.NewHyperliquidKlineProvider(p.client.Info())
}
