package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient returns an unauthenticated client, spot tickers and klines are public.
func NewBybitClient(baseURL string) *bybit.Client {
	client := bybit.NewClient()
	if baseURL != "" {
		client = client.WithBaseURL(baseURL)
	}

	return client
}
