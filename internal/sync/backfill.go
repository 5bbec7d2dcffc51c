package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"oraclex/internal/config"
	"oraclex/internal/repository"
)

// ChunkSize is the fixed block span of one eth_getLogs request during
// historical backfill. Public BSC endpoints reject wider ranges.
const ChunkSize uint64 = 2000

type window struct {
	from uint64
	to   uint64
}

// windows splits the inclusive range [from, to] into ChunkSize-wide spans.
// The final window is truncated to end exactly at to.
func windows(from, to, size uint64) []window {
	if size == 0 || to < from {
		return nil
	}
	var out []window
	for cur := from; cur <= to; cur += size {
		end := cur + size - 1
		if end > to {
			end = to
		}
		out = append(out, window{from: cur, to: end})
		if end == to {
			break
		}
	}
	return out
}

// BackfillResult summarizes one historical pass. Windows that failed were
// skipped, not retried; their logs are simply absent from the mirror.
type BackfillResult struct {
	FromBlock     uint64    `json:"from_block"`
	ToBlock       uint64    `json:"to_block"`
	Windows       int       `json:"windows"`
	FailedWindows int       `json:"failed_windows"`
	LogsProcessed int       `json:"logs_processed"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Backfiller walks historical logs chunk by chunk and feeds each one through
// the projector in block order.
type Backfiller struct {
	Source    LogSource
	Store     repository.Store
	Projector *Projector
	Logger    *zap.Logger
	Cfg       config.SyncConfig
}

// startBlock picks where historical sync begins. If the mirror already holds
// markets, their earliest creation time is mapped back to an approximate
// block so restarts re-cover (and idempotently re-project) known history.
// Otherwise the deployment block is used, clamped to MaxLookbackBlocks below
// the current head.
func (b *Backfiller) startBlock(ctx context.Context, head uint64) uint64 {
	floor := uint64(0)
	if b.Cfg.MaxLookbackBlocks > 0 && head > b.Cfg.MaxLookbackBlocks {
		floor = head - b.Cfg.MaxLookbackBlocks
	}

	if b.Store != nil {
		earliest, err := b.Store.EarliestMarketCreatedAt(ctx)
		if err != nil {
			b.Logger.Warn("earliest market lookup failed", zap.Error(err))
		} else if earliest != nil {
			block, err := b.Source.BlockByApproxTimestamp(ctx, *earliest)
			if err != nil {
				b.Logger.Warn("timestamp to block mapping failed", zap.Error(err))
			} else {
				if block < floor {
					return floor
				}
				return block
			}
		}
	}

	start := b.Cfg.DeploymentBlock
	if start < floor {
		start = floor
	}
	return start
}

// Run executes one full historical pass up to the current head. A failing
// window is logged and skipped so one bad range cannot stall the rest of the
// backfill.
func (b *Backfiller) Run(ctx context.Context) (BackfillResult, error) {
	res := BackfillResult{StartedAt: time.Now().UTC()}

	head, err := b.Source.LatestBlock(ctx)
	if err != nil {
		return res, err
	}
	from := b.startBlock(ctx, head)
	res.FromBlock = from
	res.ToBlock = head

	spans := windows(from, head, ChunkSize)
	b.Logger.Info("historical backfill starting",
		zap.Uint64("from_block", from),
		zap.Uint64("to_block", head),
		zap.Int("windows", len(spans)),
	)

	for i, w := range spans {
		if err := ctx.Err(); err != nil {
			res.FinishedAt = time.Now().UTC()
			return res, err
		}
		logs, err := b.Source.FilterLogs(ctx, w.from, w.to)
		if err != nil {
			res.FailedWindows++
			b.Logger.Warn("backfill window failed, skipping",
				zap.Uint64("from_block", w.from),
				zap.Uint64("to_block", w.to),
				zap.Error(err),
			)
			continue
		}
		res.Windows++
		for _, l := range logs {
			b.Projector.HandleLog(ctx, l)
		}
		res.LogsProcessed += len(logs)
		if b.Cfg.ChunkPause > 0 && i < len(spans)-1 {
			select {
			case <-ctx.Done():
				res.FinishedAt = time.Now().UTC()
				return res, ctx.Err()
			case <-time.After(b.Cfg.ChunkPause):
			}
		}
	}

	res.FinishedAt = time.Now().UTC()
	b.Logger.Info("historical backfill finished",
		zap.Int("windows", res.Windows),
		zap.Int("failed_windows", res.FailedWindows),
		zap.Int("logs_processed", res.LogsProcessed),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}
