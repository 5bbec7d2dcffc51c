package sync

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"oraclex/internal/chain"
)

// LogSource is the slice of the chain client the backfill and listener need.
// *chain.Client implements it; tests substitute an in-memory source.
type LogSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error)
	BlockByApproxTimestamp(ctx context.Context, t time.Time) (uint64, error)
	SubscribeLogs(ctx context.Context, ch chan<- types.Log) (ethereum.Subscription, error)
}

// ContractReader covers the read-after-event call used by projections.
type ContractReader interface {
	GetMarket(ctx context.Context, marketID *big.Int) (chain.MarketInfo, error)
}

// Publisher receives successfully projected events for fan-out to live-feed
// subscribers. Implementations must not block.
type Publisher interface {
	Publish(eventType string, market string, payload any)
}
