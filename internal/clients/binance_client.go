// Package clients builds the exchange SDK clients used for market data.
package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient returns a client for public market data endpoints.
// baseURL overrides the API host when non-empty.
func NewBinanceClient(baseURL string) *binance.Client {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}

	return client
}
