// Package di contains dependency injection tokens for the liquidity context.
package di

import (
	"github.com/fd1az/cfmm-arb/business/liquidity/app"
	"github.com/fd1az/cfmm-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	LiquidityService = di.NewToken[*app.LiquidityService]("liquidity.LiquidityService")
)

// Private dependency tokens - internal to liquidity module
var (
	PoolSource  = di.NewToken[app.PoolSource]("liquidity:poolSource")
	ReserveFeed = di.NewToken[app.ReserveFeed]("liquidity:reserveFeed")
)

func GetLiquidityService(c di.ServiceRegistry) *app.LiquidityService {
	return di.GetToken(c, LiquidityService)
}

func GetPoolSource(c di.ServiceRegistry) app.PoolSource {
	return di.GetToken(c, PoolSource)
}

func GetReserveFeed(c di.ServiceRegistry) app.ReserveFeed {
	return di.GetToken(c, ReserveFeed)
}
