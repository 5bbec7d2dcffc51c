package sync

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const resubscribeDelay = 5 * time.Second

// Listener maintains a live log subscription and feeds received logs through
// a bounded queue into the projector. The queue decouples RPC delivery from
// database writes; when the queue is full the listener blocks on the
// subscription channel rather than dropping logs, which applies backpressure
// to the RPC client.
type Listener struct {
	Source    LogSource
	Projector *Projector
	Logger    *zap.Logger
	QueueSize int

	received  atomic.Uint64
	processed atomic.Uint64
}

// Run subscribes, drains, and resubscribes until ctx is canceled. A lost
// subscription is logged and replaced; it never crashes the service.
func (l *Listener) Run(ctx context.Context) error {
	queueSize := l.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	queue := make(chan types.Log, queueSize)

	go l.drain(ctx, queue)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.subscribeOnce(ctx, queue); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isBenignSubErr(err) {
				l.Logger.Debug("subscription expired, resubscribing", zap.Error(err))
			} else {
				l.Logger.Warn("subscription lost, resubscribing", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeDelay):
		}
	}
}

func (l *Listener) subscribeOnce(ctx context.Context, queue chan<- types.Log) error {
	raw := make(chan types.Log)
	sub, err := l.Source.SubscribeLogs(ctx, raw)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	l.Logger.Info("live subscription established")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case entry := <-raw:
			l.received.Add(1)
			select {
			case queue <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (l *Listener) drain(ctx context.Context, queue <-chan types.Log) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-queue:
			l.Projector.HandleLog(ctx, entry)
			l.processed.Add(1)
		}
	}
}

// Stats reports how many logs the subscription has delivered and how many
// have been fully projected. The difference is the current queue depth.
func (l *Listener) Stats() (received, processed uint64) {
	return l.received.Load(), l.processed.Load()
}

// isBenignSubErr matches errors endpoints return when a server-side filter
// ages out. These are expected on long-lived subscriptions.
func isBenignSubErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "filter not found")
}
