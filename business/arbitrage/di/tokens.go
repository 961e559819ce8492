// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fd1az/cfmm-arb/business/arbitrage/app"
	"github.com/fd1az/cfmm-arb/business/arbitrage/infra/history"
	"github.com/fd1az/cfmm-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Detector = di.NewToken[*app.Detector]("arbitrage.Detector")
	Searcher = di.NewToken[*app.Searcher]("arbitrage.Searcher")
)

// Private dependency tokens - internal to arbitrage module
var (
	Solver   = di.NewToken[app.Solver]("arbitrage:solver")
	Reporter = di.NewToken[app.Reporter]("arbitrage:reporter")
	// HistoryStore resolves to a nil store when storage is disabled.
	HistoryStore = di.NewToken[*history.Store]("arbitrage:historyStore")
)

func GetDetector(c di.ServiceRegistry) *app.Detector {
	return di.GetToken(c, Detector)
}

func GetSearcher(c di.ServiceRegistry) *app.Searcher {
	return di.GetToken(c, Searcher)
}

func GetSolver(c di.ServiceRegistry) app.Solver {
	return di.GetToken(c, Solver)
}

func GetReporter(c di.ServiceRegistry) app.Reporter {
	return di.GetToken(c, Reporter)
}

func GetHistoryStore(c di.ServiceRegistry) *history.Store {
	return di.GetToken(c, HistoryStore)
}
