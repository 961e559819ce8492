// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/cfmm-arb/business/blockchain/app"
	"github.com/fd1az/cfmm-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")
)

// Private dependency tokens - internal to blockchain module
var (
	HeadSource = di.NewToken[app.HeadSource]("blockchain:headSource")
)

func GetBlockchainService(c di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(c, BlockchainService)
}

func GetHeadSource(c di.ServiceRegistry) app.HeadSource {
	return di.GetToken(c, HeadSource)
}
