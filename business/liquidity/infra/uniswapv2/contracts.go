package uniswapv2

// PairABI covers the read-only Uniswap V2 pair calls used to build a snapshot.
const PairABI = `[
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[
		{"internalType":"uint112","name":"_reserve0","type":"uint112"},
		{"internalType":"uint112","name":"_reserve1","type":"uint112"},
		{"internalType":"uint32","name":"_blockTimestampLast","type":"uint32"}
	],"stateMutability":"view","type":"function"}
]`

// ERC20ABI covers token metadata lookups for tokens missing from the asset registry.
const ERC20ABI = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`
