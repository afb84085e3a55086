package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient creates a spot client. The testnet switch flips a
// package-global endpoint, so it must be decided before any client is built.
func NewBinanceClient(apiKey, apiSecret string, testnet bool) *binance.Client {
	binance.UseTestnet = testnet
	return binance.NewClient(apiKey, apiSecret)
}
