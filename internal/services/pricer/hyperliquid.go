package pricer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/btcsim/internal/domain"
)

// HyperliquidPricer reads mid prices from the Hyperliquid info API.
type HyperliquidPricer struct {
	info *hyperliquid.Info
}

func NewHyperliquidPricer(info *hyperliquid.Info) *HyperliquidPricer {
	return &HyperliquidPricer{info: info}
}

func (p *HyperliquidPricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	if p.info == nil {
		return decimal.Zero, errors.New("hyperliquid info client is nil")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "hyperliquid all mids")
	}

	// mids are keyed by base coin, e.g. "BTC"
	coin := strings.ToUpper(pair.From)
	mid, ok := mids[coin]
	if !ok || mid == "" {
		return decimal.Zero, errors.Errorf("hyperliquid API returned empty mid price for %s", coin)
	}

	price, err := decimal.NewFromString(mid)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse hyperliquid mid %q", mid)
	}

	return price, nil
}
