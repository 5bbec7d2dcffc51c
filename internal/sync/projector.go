package sync

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"oraclex/internal/chain"
	"oraclex/internal/models"
	"oraclex/internal/repository"
)

const (
	FeedMarketCreated    = "market_created"
	FeedPredictionPlaced = "prediction_placed"
	FeedMarketResolved   = "market_resolved"
)

// stakeDecimals converts wei-scale uint256 amounts to token units.
const stakeDecimals = 18

// Projector maps one decoded event to one idempotent database mutation. Every
// handler follows the log-and-drop policy: a malformed event or a failed write
// is logged and dropped, never retried, and never propagates to the caller.
type Projector struct {
	Store  repository.Store
	Reader ContractReader
	Logger *zap.Logger
	Feed   Publisher

	// OnProcessed observes the block height of each handled log.
	OnProcessed func(blockNumber uint64)
}

// HandleLog decodes and routes one raw log. It never returns an error.
func (p *Projector) HandleLog(ctx context.Context, l types.Log) {
	if p == nil || p.Store == nil {
		return
	}
	if p.OnProcessed != nil {
		// Dropped logs still advance the watermark; they were consumed.
		defer p.OnProcessed(l.BlockNumber)
	}
	decoded, err := chain.DecodeLog(l)
	if err != nil {
		p.logWarn("event decode failed", err,
			zap.String("tx", l.TxHash.Hex()),
			zap.Uint64("block", l.BlockNumber),
		)
		return
	}
	switch ev := decoded.(type) {
	case *chain.MarketCreatedEvent:
		p.HandleMarketCreated(ctx, ev)
	case *chain.PredictionPlacedEvent:
		p.HandlePredictionPlaced(ctx, ev)
	case *chain.MarketResolvedEvent:
		p.HandleMarketResolved(ctx, ev)
	}
}

// HandleMarketCreated creates the Market row plus its two binary outcomes.
// A replayed event for a known external id is a no-op.
func (p *Projector) HandleMarketCreated(ctx context.Context, ev *chain.MarketCreatedEvent) {
	if p == nil || p.Store == nil || ev == nil || ev.MarketID == nil {
		return
	}
	externalID := ev.MarketID.String()

	existing, err := p.Store.GetMarketByExternalID(ctx, externalID)
	if err != nil {
		p.logWarn("market lookup failed", err, zap.String("market", externalID))
		return
	}
	if existing != nil {
		p.logDebug("market already mirrored", zap.String("market", externalID))
		return
	}

	// Read-after-event: the event payload does not carry every field.
	question := ev.Question
	category := ev.Category
	var totalStaked decimal.Decimal
	if p.Reader != nil {
		info, err := p.Reader.GetMarket(ctx, ev.MarketID)
		if err != nil {
			p.logWarn("contract read failed, event dropped", err, zap.String("market", externalID))
			return
		}
		if strings.TrimSpace(info.Question) != "" {
			question = info.Question
		}
		if strings.TrimSpace(info.Category) != "" {
			category = info.Category
		}
		if info.TotalStaked != nil {
			totalStaked = stakeToDecimal(info.TotalStaked)
		}
	}

	raw, _ := json.Marshal(map[string]any{
		"marketId":   externalID,
		"creator":    strings.ToLower(ev.Creator.Hex()),
		"question":   ev.Question,
		"endTime":    bigToInt64(ev.EndTime),
		"category":   ev.Category,
		"oracleType": ev.OracleType,
		"txHash":     strings.ToLower(ev.Raw.TxHash.Hex()),
	})

	err = p.Store.InTx(ctx, func(tx *gorm.DB) error {
		creator, err := p.Store.FindOrCreateUserTx(ctx, tx, ev.Creator.Hex())
		if err != nil {
			return err
		}
		market := &models.Market{
			ExternalID:   externalID,
			Question:     question,
			Category:     category,
			OracleType:   ev.OracleType,
			EndTime:      time.Unix(bigToInt64(ev.EndTime), 0).UTC(),
			Status:       models.MarketStatusActive,
			TotalStaked:  totalStaked,
			TotalVolume:  totalStaked,
			CreatorID:    creator.ID,
			CreatedBlock: ev.Raw.BlockNumber,
			RawJSON:      datatypes.JSON(raw),
		}
		if err := p.Store.CreateMarketTx(ctx, tx, market); err != nil {
			return err
		}
		// Fixed binary-outcome assumption: every market gets exactly two
		// outcomes seeded at even odds.
		half := decimal.NewFromFloat(0.5)
		outcomes := []models.Outcome{
			{MarketID: market.ID, Idx: 0, Name: "YES", Probability: half},
			{MarketID: market.ID, Idx: 1, Name: "NO", Probability: half},
		}
		return p.Store.CreateOutcomesTx(ctx, tx, outcomes)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		p.logDebug("market already mirrored (concurrent create)", zap.String("market", externalID))
		return
	}
	if err != nil {
		p.logWarn("market projection failed", err, zap.String("market", externalID))
		return
	}

	p.logInfo("market mirrored",
		zap.String("market", externalID),
		zap.String("question", question),
		zap.String("category", category),
	)
	p.publish(FeedMarketCreated, externalID, map[string]any{
		"question": question,
		"category": category,
		"endTime":  bigToInt64(ev.EndTime),
	})
}

// HandlePredictionPlaced inserts the Prediction row and bumps market and
// outcome counters in one atomic transaction. The transaction hash is the
// dedup key: a replay is skipped, never double-counted.
func (p *Projector) HandlePredictionPlaced(ctx context.Context, ev *chain.PredictionPlacedEvent) {
	if p == nil || p.Store == nil || ev == nil || ev.MarketID == nil {
		return
	}
	externalID := ev.MarketID.String()

	market, err := p.Store.GetMarketByExternalID(ctx, externalID)
	if err != nil {
		p.logWarn("market lookup failed", err, zap.String("market", externalID))
		return
	}
	if market == nil {
		// No queue, no retry: a prediction for an unknown market is dropped.
		p.logWarn("prediction for unknown market dropped", nil, zap.String("market", externalID))
		return
	}

	outcomes, err := p.Store.ListOutcomesByMarketID(ctx, market.ID)
	if err != nil {
		p.logWarn("outcome lookup failed", err, zap.String("market", externalID))
		return
	}
	idx := -1
	if ev.Outcome != nil && ev.Outcome.IsInt64() {
		idx = int(ev.Outcome.Int64())
	}
	if idx < 0 || idx >= len(outcomes) {
		p.logWarn("prediction with out-of-range outcome dropped", nil,
			zap.String("market", externalID),
			zap.Int("outcome_index", idx),
			zap.Int("outcomes", len(outcomes)),
		)
		return
	}
	outcome := outcomes[idx]

	txHash := strings.ToLower(ev.Raw.TxHash.Hex())
	seen, err := p.Store.PredictionExistsByTxHash(ctx, txHash)
	if err != nil {
		p.logWarn("prediction dedup lookup failed", err, zap.String("tx", txHash))
		return
	}
	if seen {
		p.logDebug("prediction already mirrored", zap.String("tx", txHash))
		return
	}

	amount := stakeToDecimal(ev.Amount)
	odds := outcome.Probability
	if !odds.IsPositive() {
		odds = decimal.NewFromFloat(0.5)
	}
	payout := amount.Div(odds)

	var userID uint64
	err = p.Store.InTx(ctx, func(tx *gorm.DB) error {
		user, err := p.Store.FindOrCreateUserTx(ctx, tx, ev.User.Hex())
		if err != nil {
			return err
		}
		userID = user.ID
		prediction := &models.Prediction{
			MarketID:        market.ID,
			OutcomeID:       outcome.ID,
			UserID:          user.ID,
			Amount:          amount,
			Odds:            odds,
			PotentialPayout: payout,
			TxHash:          txHash,
			LogIndex:        ev.Raw.Index,
			BlockNumber:     ev.Raw.BlockNumber,
			Status:          models.PredictionStatusActive,
		}
		if err := p.Store.CreatePredictionTx(ctx, tx, prediction); err != nil {
			return err
		}
		if err := p.Store.IncrementMarketTotalsTx(ctx, tx, market.ID, amount); err != nil {
			return err
		}
		if err := p.Store.IncrementOutcomeStakedTx(ctx, tx, outcome.ID, amount); err != nil {
			return err
		}
		return p.Store.RefreshOutcomeProbabilitiesTx(ctx, tx, market.ID)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		p.logWarn("duplicate prediction transaction skipped", nil, zap.String("tx", txHash))
		return
	}
	if err != nil {
		p.logWarn("prediction projection failed", err,
			zap.String("market", externalID),
			zap.String("tx", txHash),
		)
		return
	}

	p.logInfo("prediction mirrored",
		zap.String("market", externalID),
		zap.String("outcome", outcome.Name),
		zap.String("amount", amount.String()),
		zap.Uint64("user_id", userID),
	)
	p.publish(FeedPredictionPlaced, externalID, map[string]any{
		"user":    strings.ToLower(ev.User.Hex()),
		"outcome": outcome.Name,
		"amount":  amount.String(),
	})
}

// HandleMarketResolved finalizes the market and records one Resolution row.
// A second MarketResolved for an already-resolved market is a no-op with a
// warning, mirroring the already-exists handling of MarketCreated.
func (p *Projector) HandleMarketResolved(ctx context.Context, ev *chain.MarketResolvedEvent) {
	if p == nil || p.Store == nil || ev == nil || ev.MarketID == nil {
		return
	}
	externalID := ev.MarketID.String()

	market, err := p.Store.GetMarketByExternalID(ctx, externalID)
	if err != nil {
		p.logWarn("market lookup failed", err, zap.String("market", externalID))
		return
	}
	if market == nil {
		p.logWarn("resolution for unknown market dropped", nil, zap.String("market", externalID))
		return
	}
	if market.Status == models.MarketStatusResolved {
		p.logWarn("market already resolved, event ignored", nil, zap.String("market", externalID))
		return
	}

	outcomes, err := p.Store.ListOutcomesByMarketID(ctx, market.ID)
	if err != nil {
		p.logWarn("outcome lookup failed", err, zap.String("market", externalID))
		return
	}
	idx := -1
	if ev.WinningOutcome != nil && ev.WinningOutcome.IsInt64() {
		idx = int(ev.WinningOutcome.Int64())
	}
	if idx < 0 || idx >= len(outcomes) {
		p.logWarn("resolution with out-of-range outcome dropped", nil,
			zap.String("market", externalID),
			zap.Int("outcome_index", idx),
		)
		return
	}
	winner := outcomes[idx]
	resolvedAt := time.Unix(bigToInt64(ev.ResolutionTime), 0).UTC()

	err = p.Store.InTx(ctx, func(tx *gorm.DB) error {
		if err := p.Store.MarkMarketResolvedTx(ctx, tx, market.ID, winner.Name, resolvedAt); err != nil {
			return err
		}
		if err := p.Store.MarkOutcomeWinningTx(ctx, tx, winner.ID); err != nil {
			return err
		}
		return p.Store.CreateResolutionTx(ctx, tx, &models.Resolution{
			MarketID:      market.ID,
			OutcomeName:   winner.Name,
			ResolvedBy:    "chain",
			Confidence:    decimal.NewFromInt(1),
			HumanVerified: false,
			Status:        models.ResolutionStatusConfirmed,
			ResolvedAt:    resolvedAt,
		})
	})
	if errors.Is(err, repository.ErrDuplicate) {
		p.logWarn("resolution already mirrored", nil, zap.String("market", externalID))
		return
	}
	if err != nil {
		p.logWarn("resolution projection failed", err, zap.String("market", externalID))
		return
	}

	p.logInfo("market resolved",
		zap.String("market", externalID),
		zap.String("winning_outcome", winner.Name),
		zap.Time("resolved_at", resolvedAt),
	)
	p.publish(FeedMarketResolved, externalID, map[string]any{
		"winningOutcome": winner.Name,
		"resolvedAt":     resolvedAt,
	})
}

func (p *Projector) publish(eventType, market string, payload any) {
	if p == nil || p.Feed == nil {
		return
	}
	p.Feed.Publish(eventType, market, payload)
}

func stakeToDecimal(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -stakeDecimals)
}

func bigToInt64(v *big.Int) int64 {
	if v == nil || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}

func (p *Projector) logDebug(msg string, fields ...zap.Field) {
	if p == nil || p.Logger == nil {
		return
	}
	p.Logger.Debug(msg, fields...)
}

func (p *Projector) logInfo(msg string, fields ...zap.Field) {
	if p == nil || p.Logger == nil {
		return
	}
	p.Logger.Info(msg, fields...)
}

func (p *Projector) logWarn(msg string, err error, fields ...zap.Field) {
	if p == nil || p.Logger == nil {
		return
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	p.Logger.Warn(msg, fields...)
}
