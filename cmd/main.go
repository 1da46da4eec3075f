// Command btcsim simulates spot BTC trading against a virtual USD balance
// using live prices from Binance, Bybit or Hyperliquid.
//
// Usage:
//
//	btcsim setup                      # write btcsim.yaml interactively
//	btcsim serve --config btcsim.yaml # poll prices, serve the HTTP API
//	btcsim buy 2500
//	btcsim status
//
// State lives under ./state unless BTCSIM_STATE_DIR or storage.dir says otherwise.
package main

import (
	"os"

	"github.com/vadiminshakov/btcsim/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
