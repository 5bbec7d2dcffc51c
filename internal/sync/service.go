package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"oraclex/internal/chain"
	"oraclex/internal/config"
	"oraclex/internal/models"
	"oraclex/internal/repository"
)

const syncScope = "event-mirror"

// Status is a snapshot of the mirror for the /api/v1/sync/status endpoint
// and the periodic state snapshot job.
type Status struct {
	Enabled        bool            `json:"enabled"`
	Connected      bool            `json:"connected"`
	DisabledReason string          `json:"disabled_reason,omitempty"`
	Network        string          `json:"network"`
	LastBlock      uint64          `json:"last_block"`
	LogsReceived   uint64          `json:"logs_received"`
	LogsProcessed  uint64          `json:"logs_processed"`
	Backfill       *BackfillResult `json:"backfill,omitempty"`
}

// Service owns the full sync pipeline: chain connection, historical
// backfill, and the live subscription listener. All collaborators are
// injected; the service holds no package-level state.
type Service struct {
	cfg      config.Config
	client   *chain.Client
	store    repository.Store
	logger   *zap.Logger
	listener *Listener
	proj     *Projector

	mu             sync.Mutex
	connected      bool
	disabledReason string
	lastBlock      uint64
	backfill       *BackfillResult
}

// NewService wires the pipeline. client may be nil when no contract address
// is configured; the service then reports itself disabled and Run is a no-op.
func NewService(cfg config.Config, client *chain.Client, store repository.Store, feed Publisher, logger *zap.Logger) *Service {
	s := &Service{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: logger,
	}
	var reader ContractReader
	if client != nil {
		reader = client
	}
	s.proj = &Projector{
		Store:       store,
		Reader:      reader,
		Logger:      logger,
		Feed:        feed,
		OnProcessed: s.observeBlock,
	}
	if client != nil {
		s.listener = &Listener{
			Source:    client,
			Projector: s.proj,
			Logger:    logger,
			QueueSize: cfg.Sync.QueueSize,
		}
	}
	return s
}

func (s *Service) observeBlock(block uint64) {
	s.mu.Lock()
	if block > s.lastBlock {
		s.lastBlock = block
	}
	s.mu.Unlock()
}

func (s *Service) disable(reason string) {
	s.mu.Lock()
	s.connected = false
	s.disabledReason = reason
	s.mu.Unlock()
}

// Run connects, backfills, then listens until ctx is canceled. A failed
// connection disables sync for the lifetime of the process but returns nil:
// the read API stays up serving previously mirrored data.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.Sync.Enabled {
		s.disable("sync disabled by configuration")
		s.logger.Info("event sync disabled by configuration")
		return nil
	}
	if s.client == nil {
		s.disable("contract address not configured")
		s.logger.Warn("event sync disabled", zap.Error(chain.ErrMissingContract))
		return nil
	}

	if err := s.client.Connect(ctx); err != nil {
		s.disable("rpc connection failed: " + err.Error())
		s.logger.Error("chain connection failed, sync disabled for this run", zap.Error(err))
		return nil
	}
	defer s.client.Close()

	s.mu.Lock()
	s.connected = true
	s.disabledReason = ""
	s.mu.Unlock()

	if s.cfg.Sync.Historical {
		backfiller := &Backfiller{
			Source:    s.client,
			Store:     s.store,
			Projector: s.proj,
			Logger:    s.logger,
			Cfg:       s.cfg.Sync,
		}
		res, err := backfiller.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("historical backfill aborted", zap.Error(err))
		}
		s.mu.Lock()
		s.backfill = &res
		s.mu.Unlock()
		if ctx.Err() != nil {
			return nil
		}
	}

	err := s.listener.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Status returns a consistent snapshot of the pipeline.
func (s *Service) Status() Status {
	s.mu.Lock()
	st := Status{
		Enabled:        s.cfg.Sync.Enabled,
		Connected:      s.connected,
		DisabledReason: s.disabledReason,
		Network:        s.cfg.Chain.NetworkName,
		LastBlock:      s.lastBlock,
		Backfill:       s.backfill,
	}
	s.mu.Unlock()
	if s.listener != nil {
		st.LogsReceived, st.LogsProcessed = s.listener.Stats()
	}
	return st
}

// SnapshotState persists the current Status into the sync_state table. It is
// driven by a cron schedule, not by the hot path.
func (s *Service) SnapshotState(ctx context.Context) error {
	st := s.Status()
	stats, err := json.Marshal(st)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	state := &models.SyncState{
		Scope:         syncScope,
		LastBlock:     st.LastBlock,
		LastAttemptAt: &now,
		StatsJSON:     datatypes.JSON(stats),
	}
	if st.Connected {
		state.LastSuccessAt = &now
	}
	if st.DisabledReason != "" {
		reason := st.DisabledReason
		state.LastError = &reason
	}
	return s.store.SaveSyncState(ctx, state)
}

// ProbeHeadLag compares the chain head against the last projected block and
// warns when the mirror falls behind by more than the configured threshold.
func (s *Service) ProbeHeadLag(ctx context.Context) {
	st := s.Status()
	if !st.Connected || s.client == nil {
		return
	}
	head, err := s.client.LatestBlock(ctx)
	if err != nil {
		s.logger.Warn("head lag probe failed", zap.Error(err))
		return
	}
	if st.LastBlock == 0 || head <= st.LastBlock {
		return
	}
	lag := head - st.LastBlock
	if lag > s.cfg.Sync.HeadLagWarnBlocks {
		s.logger.Warn("mirror lagging behind chain head",
			zap.Uint64("head", head),
			zap.Uint64("last_block", st.LastBlock),
			zap.Uint64("lag_blocks", lag),
		)
	} else {
		s.logger.Debug("head lag probe",
			zap.Uint64("head", head),
			zap.Uint64("lag_blocks", lag),
		)
	}
}
