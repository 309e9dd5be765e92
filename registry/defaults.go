package registry

import "github.com/paywatch/evmpay/types"

// DefaultChains returns the built-in network catalog with public RPC
// endpoints. The slice order is the default scan priority. Callers may
// override endpoints or trim the list through configuration.
func DefaultChains(minConfirmations uint64) []types.ChainConfig {
	chains := []types.ChainConfig{
		{ID: "0x1", Name: "Ethereum", RPCURL: "https://rpc.ankr.com/eth", NativeSymbol: "ETH", PriceNativeID: "ethereum", PricePlatformID: "ethereum"},
		{ID: "0x38", Name: "BNB Smart Chain", RPCURL: "https://bsc-dataseed.binance.org", NativeSymbol: "BNB", PriceNativeID: "binancecoin", PricePlatformID: "binance-smart-chain"},
		{ID: "0x89", Name: "Polygon PoS", RPCURL: "https://polygon-rpc.com", NativeSymbol: "MATIC", PriceNativeID: "polygon-pos", PricePlatformID: "polygon-pos"},
		{ID: "0xa4b1", Name: "Arbitrum One", RPCURL: "https://arb1.arbitrum.io/rpc", NativeSymbol: "ETH", PriceNativeID: "ethereum", PricePlatformID: "arbitrum-one"},
		{ID: "0xa", Name: "OP Mainnet", RPCURL: "https://mainnet.optimism.io", NativeSymbol: "ETH", PriceNativeID: "ethereum", PricePlatformID: "optimistic-ethereum"},
		{ID: "0x2105", Name: "Base", RPCURL: "https://mainnet.base.org", NativeSymbol: "ETH", PriceNativeID: "ethereum", PricePlatformID: "base"},
		{ID: "0xa86a", Name: "Avalanche C", RPCURL: "https://api.avax.network/ext/bc/C/rpc", NativeSymbol: "AVAX", PriceNativeID: "avalanche-2", PricePlatformID: "avalanche"},
		{ID: "0xfa", Name: "Fantom", RPCURL: "https://rpc.ftm.tools", NativeSymbol: "FTM", PriceNativeID: "fantom", PricePlatformID: "fantom"},
		{ID: "0xe708", Name: "Linea", RPCURL: "https://rpc.linea.build", NativeSymbol: "ETH", PriceNativeID: "ethereum", PricePlatformID: "linea"},
		{ID: "0x144", Name: "zkSync Era", RPCURL: "https://mainnet.era.zksync.io", NativeSymbol: "ETH", PriceNativeID: "ethereum", PricePlatformID: "zksync"},
	}

	for i := range chains {
		chains[i].MinConfirmations = minConfirmations
	}
	return chains
}
