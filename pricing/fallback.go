package pricing

import "github.com/shopspring/decimal"

// DefaultFallbackPrices are conservative static quotes used when the index
// is unreachable and a quote is needed anyway. Quotes resolved from this
// table are flagged Degraded and never cached.
func DefaultFallbackPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"ethereum":    decimal.NewFromInt(2000),
		"binancecoin": decimal.NewFromInt(600),
		"polygon-pos": decimal.NewFromFloat(0.5),
		"avalanche-2": decimal.NewFromInt(25),
		"fantom":      decimal.NewFromFloat(0.4),
		"tether":      decimal.NewFromInt(1),
		"usd-coin":    decimal.NewFromInt(1),
		"dai":         decimal.NewFromInt(1),
	}
}

// DefaultPeggedTokens maps well-known stablecoin contracts (lowercase) to
// the fallback id used when the index cannot quote the contract directly.
func DefaultPeggedTokens() map[string]string {
	return map[string]string{
		// USDT: Ethereum, BSC, Polygon, Arbitrum
		"0xdac17f958d2ee523a2206206994597c13d831ec7": "tether",
		"0x55d398326f99059ff775485246999027b3197955": "tether",
		"0xc2132d05d31c914a87c6611c10748aeb04b58e8f": "tether",
		"0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9": "tether",
		// USDC: Ethereum, BSC, Polygon, Base
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": "usd-coin",
		"0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d": "usd-coin",
		"0x3c499c542cef5e3811e1192ce70d8cc03d5c3359": "usd-coin",
		"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913": "usd-coin",
		// DAI: Ethereum
		"0x6b175474e89094c44da98b954eedeac495271d0f": "dai",
	}
}
