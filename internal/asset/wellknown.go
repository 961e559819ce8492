package asset

import "github.com/ethereum/go-ethereum/common"

// Ethereum mainnet token addresses.
var (
	AddrWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	AddrUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	AddrUSDT = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	AddrDAI  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	AddrWBTC = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
)

var (
	WETH = MustNewAsset(AddrWETH, "WETH", "Wrapped Ether", 18)
	USDC = MustNewAsset(AddrUSDC, "USDC", "USD Coin", 6)
	USDT = MustNewAsset(AddrUSDT, "USDT", "Tether USD", 6)
	DAI  = MustNewAsset(AddrDAI, "DAI", "Dai Stablecoin", 18)
	WBTC = MustNewAsset(AddrWBTC, "WBTC", "Wrapped Bitcoin", 8)
)

// DefaultRegistry returns a registry pre-populated with well-known mainnet tokens.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []*Asset{WETH, USDC, USDT, DAI, WBTC} {
		r.Register(a)
	}
	return r
}
