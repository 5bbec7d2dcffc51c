package sync

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"oraclex/internal/chain"
	"oraclex/internal/models"
)

var errInduced = errors.New("induced failure")

type stubReader struct {
	info chain.MarketInfo
	err  error
}

func (r *stubReader) GetMarket(ctx context.Context, marketID *big.Int) (chain.MarketInfo, error) {
	return r.info, r.err
}

type recordingFeed struct {
	events []string
}

func (f *recordingFeed) Publish(eventType string, market string, payload any) {
	f.events = append(f.events, eventType+":"+market)
}

func wei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newTestProjector(store *stubStore, reader ContractReader) (*Projector, *recordingFeed) {
	feed := &recordingFeed{}
	return &Projector{
		Store:  store,
		Reader: reader,
		Logger: zap.NewNop(),
		Feed:   feed,
	}, feed
}

func marketCreatedEvent(marketID int64, txHash string) *chain.MarketCreatedEvent {
	return &chain.MarketCreatedEvent{
		MarketID:   big.NewInt(marketID),
		Creator:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Question:   "Will BNB close above $700 this year?",
		EndTime:    big.NewInt(time.Now().Add(24 * time.Hour).Unix()),
		Category:   "crypto",
		OracleType: 1,
		Raw: types.Log{
			TxHash:      common.HexToHash(txHash),
			BlockNumber: 100,
		},
	}
}

func predictionEvent(marketID int64, outcome int64, amount *big.Int, txHash string) *chain.PredictionPlacedEvent {
	return &chain.PredictionPlacedEvent{
		MarketID: big.NewInt(marketID),
		User:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Outcome:  big.NewInt(outcome),
		Amount:   amount,
		Raw: types.Log{
			TxHash:      common.HexToHash(txHash),
			BlockNumber: 101,
			Index:       3,
		},
	}
}

func resolvedEvent(marketID int64, winning int64) *chain.MarketResolvedEvent {
	return &chain.MarketResolvedEvent{
		MarketID:       big.NewInt(marketID),
		WinningOutcome: big.NewInt(winning),
		ResolutionTime: big.NewInt(time.Now().Unix()),
		Raw: types.Log{
			TxHash:      common.HexToHash("0xdd"),
			BlockNumber: 102,
		},
	}
}

func TestMarketCreatedProjection(t *testing.T) {
	store := newStubStore()
	reader := &stubReader{info: chain.MarketInfo{
		Question:    "Will BNB close above $700 this year?",
		TotalStaked: big.NewInt(0),
		Category:    "crypto",
	}}
	proj, feed := newTestProjector(store, reader)

	proj.HandleMarketCreated(context.Background(), marketCreatedEvent(7, "0xaa"))

	market, err := store.GetMarketByExternalID(context.Background(), "7")
	if err != nil || market == nil {
		t.Fatalf("market not mirrored: %v", err)
	}
	if market.Status != models.MarketStatusActive {
		t.Fatalf("status=%s want ACTIVE", market.Status)
	}
	outcomes, _ := store.ListOutcomesByMarketID(context.Background(), market.ID)
	if len(outcomes) != 2 {
		t.Fatalf("outcomes=%d want 2", len(outcomes))
	}
	half := decimal.NewFromFloat(0.5)
	for _, o := range outcomes {
		if !o.Probability.Equal(half) {
			t.Fatalf("outcome %s probability=%s want 0.5", o.Name, o.Probability)
		}
	}
	if len(store.users) != 1 {
		t.Fatalf("users=%d want 1 (creator)", len(store.users))
	}
	if len(feed.events) != 1 || feed.events[0] != "market_created:7" {
		t.Fatalf("feed=%v", feed.events)
	}
}

func TestMarketCreatedReplayIsNoOp(t *testing.T) {
	store := newStubStore()
	reader := &stubReader{info: chain.MarketInfo{TotalStaked: big.NewInt(0)}}
	proj, _ := newTestProjector(store, reader)

	ev := marketCreatedEvent(7, "0xaa")
	proj.HandleMarketCreated(context.Background(), ev)
	proj.HandleMarketCreated(context.Background(), ev)

	if len(store.markets) != 1 {
		t.Fatalf("markets=%d want 1 after replay", len(store.markets))
	}
	if len(store.outcomes) != 2 {
		t.Fatalf("outcomes=%d want 2 after replay", len(store.outcomes))
	}
}

func TestMarketCreatedContractReadFailureDropsEvent(t *testing.T) {
	store := newStubStore()
	proj, _ := newTestProjector(store, &stubReader{err: errInduced})

	proj.HandleMarketCreated(context.Background(), marketCreatedEvent(7, "0xaa"))

	if len(store.markets) != 0 {
		t.Fatalf("markets=%d want 0 when contract read fails", len(store.markets))
	}
}

func TestPredictionPlacedProjection(t *testing.T) {
	store := newStubStore()
	reader := &stubReader{info: chain.MarketInfo{TotalStaked: big.NewInt(0)}}
	proj, feed := newTestProjector(store, reader)

	proj.HandleMarketCreated(context.Background(), marketCreatedEvent(7, "0xaa"))
	proj.HandlePredictionPlaced(context.Background(), predictionEvent(7, 0, wei(10), "0xbb"))

	if len(store.predictions) != 1 {
		t.Fatalf("predictions=%d want 1", len(store.predictions))
	}
	pred := store.predictions[0]
	ten := decimal.NewFromInt(10)
	if !pred.Amount.Equal(ten) {
		t.Fatalf("amount=%s want 10 (18-decimal conversion)", pred.Amount)
	}
	if !pred.Odds.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("odds=%s want 0.5", pred.Odds)
	}
	if !pred.PotentialPayout.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("payout=%s want 20", pred.PotentialPayout)
	}
	market, _ := store.GetMarketByExternalID(context.Background(), "7")
	if !market.TotalStaked.Equal(ten) {
		t.Fatalf("market total staked=%s want 10", market.TotalStaked)
	}
	outcomes, _ := store.ListOutcomesByMarketID(context.Background(), market.ID)
	if !outcomes[0].TotalStaked.Equal(ten) {
		t.Fatalf("outcome staked=%s want 10", outcomes[0].TotalStaked)
	}
	if !outcomes[0].Probability.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("YES probability=%s want 1 (all stake on YES)", outcomes[0].Probability)
	}
	if !outcomes[1].TotalStaked.IsZero() {
		t.Fatalf("NO staked=%s want 0 (untouched)", outcomes[1].TotalStaked)
	}
	// The refresh recomputes every outcome of the market: with all stake on
	// YES, the NO estimate moves from the 0.5 seed to 0.
	if !outcomes[1].Probability.IsZero() {
		t.Fatalf("NO probability=%s want 0 after refresh", outcomes[1].Probability)
	}
	if len(feed.events) != 2 || feed.events[1] != "prediction_placed:7" {
		t.Fatalf("feed=%v", feed.events)
	}
}

func TestPredictionDuplicateTxHashSkipped(t *testing.T) {
	store := newStubStore()
	reader := &stubReader{info: chain.MarketInfo{TotalStaked: big.NewInt(0)}}
	proj, _ := newTestProjector(store, reader)

	proj.HandleMarketCreated(context.Background(), marketCreatedEvent(7, "0xaa"))
	ev := predictionEvent(7, 0, wei(10), "0xbb")
	proj.HandlePredictionPlaced(context.Background(), ev)
	proj.HandlePredictionPlaced(context.Background(), ev)

	if len(store.predictions) != 1 {
		t.Fatalf("predictions=%d want 1 after replay", len(store.predictions))
	}
	market, _ := store.GetMarketByExternalID(context.Background(), "7")
	if !market.TotalStaked.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("total staked=%s want 10, counters must not double increment", market.TotalStaked)
	}
}

func TestPredictionTransactionIsAtomic(t *testing.T) {
	store := newStubStore()
	reader := &stubReader{info: chain.MarketInfo{TotalStaked: big.NewInt(0)}}
	proj, _ := newTestProjector(store, reader)

	proj.HandleMarketCreated(context.Background(), marketCreatedEvent(7, "0xaa"))
	store.failMarketIncrement = true
	proj.HandlePredictionPlaced(context.Background(), predictionEvent(7, 0, wei(10), "0xbb"))

	if len(store.predictions) != 0 {
		t.Fatalf("predictions=%d want 0 after rolled-back transaction", len(store.predictions))
	}
	market, _ := store.GetMarketByExternalID(context.Background(), "7")
	outcomes, _ := store.ListOutcomesByMarketID(context.Background(), market.ID)
	if !outcomes[0].TotalStaked.IsZero() {
		t.Fatalf("outcome staked=%s want 0 after rollback", outcomes[0].TotalStaked)
	}

	// The same transaction hash must be projectable once the fault clears.
	store.failMarketIncrement = false
	proj.HandlePredictionPlaced(context.Background(), predictionEvent(7, 0, wei(10), "0xbb"))
	if len(store.predictions) != 1 {
		t.Fatalf("predictions=%d want 1 after retrying clean event", len(store.predictions))
	}
}

func TestPredictionUnknownMarketDropped(t *testing.T) {
	store := newStubStore()
	proj, _ := newTestProjector(store, &stubReader{})

	proj.HandlePredictionPlaced(context.Background(), predictionEvent(99, 0, wei(1), "0xbb"))

	if len(store.predictions) != 0 || len(store.users) != 0 {
		t.Fatalf("unknown-market prediction must not mutate anything")
	}
}

func TestPredictionOutOfRangeOutcomeDropped(t *testing.T) {
	store := newStubStore()
	reader := &stubReader{info: chain.MarketInfo{TotalStaked: big.NewInt(0)}}
	proj, _ := newTestProjector(store, reader)

	proj.HandleMarketCreated(context.Background(), marketCreatedEvent(7, "0xaa"))
	proj.HandlePredictionPlaced(context.Background(), predictionEvent(7, 5, wei(1), "0xbb"))

	if len(store.predictions) != 0 {
		t.Fatalf("out-of-range outcome must be dropped")
	}
}

func TestMarketResolvedProjection(t *testing.T) {
	store := newStubStore()
	reader := &stubReader{info: chain.MarketInfo{TotalStaked: big.NewInt(0)}}
	proj, feed := newTestProjector(store, reader)

	proj.HandleMarketCreated(context.Background(), marketCreatedEvent(7, "0xaa"))
	proj.HandleMarketResolved(context.Background(), resolvedEvent(7, 1))

	market, _ := store.GetMarketByExternalID(context.Background(), "7")
	if market.Status != models.MarketStatusResolved {
		t.Fatalf("status=%s want RESOLVED", market.Status)
	}
	if market.WinningOutcome == nil || *market.WinningOutcome != "NO" {
		t.Fatalf("winning outcome=%v want NO", market.WinningOutcome)
	}
	outcomes, _ := store.ListOutcomesByMarketID(context.Background(), market.ID)
	if !outcomes[1].IsWinning || outcomes[0].IsWinning {
		t.Fatalf("only index 1 should be flagged winning")
	}
	if len(store.resolutions) != 1 {
		t.Fatalf("resolutions=%d want 1", len(store.resolutions))
	}
	if store.resolutions[0].ResolvedBy != "chain" {
		t.Fatalf("resolved_by=%s want chain", store.resolutions[0].ResolvedBy)
	}
	if feed.events[len(feed.events)-1] != "market_resolved:7" {
		t.Fatalf("feed=%v", feed.events)
	}
}

func TestMarketResolvedTwiceIsNoOp(t *testing.T) {
	store := newStubStore()
	reader := &stubReader{info: chain.MarketInfo{TotalStaked: big.NewInt(0)}}
	proj, _ := newTestProjector(store, reader)

	proj.HandleMarketCreated(context.Background(), marketCreatedEvent(7, "0xaa"))
	proj.HandleMarketResolved(context.Background(), resolvedEvent(7, 1))
	// A second resolution, even with a different winner, must change nothing.
	proj.HandleMarketResolved(context.Background(), resolvedEvent(7, 0))

	market, _ := store.GetMarketByExternalID(context.Background(), "7")
	if market.WinningOutcome == nil || *market.WinningOutcome != "NO" {
		t.Fatalf("winning outcome changed by second resolution: %v", market.WinningOutcome)
	}
	if len(store.resolutions) != 1 {
		t.Fatalf("resolutions=%d want 1", len(store.resolutions))
	}
}

func TestMarketResolvedUnknownMarketDropped(t *testing.T) {
	store := newStubStore()
	proj, _ := newTestProjector(store, &stubReader{})

	proj.HandleMarketResolved(context.Background(), resolvedEvent(99, 0))

	if len(store.resolutions) != 0 {
		t.Fatalf("unknown-market resolution must be dropped")
	}
}

func TestHandleLogReportsBlockHeight(t *testing.T) {
	store := newStubStore()
	proj, _ := newTestProjector(store, &stubReader{})
	var observed uint64
	proj.OnProcessed = func(block uint64) { observed = block }

	proj.HandleLog(context.Background(), types.Log{
		Topics:      []common.Hash{chain.MarketResolvedTopic, common.BigToHash(big.NewInt(1))},
		Data:        make([]byte, 64),
		BlockNumber: 4321,
	})

	if observed != 4321 {
		t.Fatalf("observed block=%d want 4321", observed)
	}
}

func TestHandleLogMalformedLogDropped(t *testing.T) {
	store := newStubStore()
	proj, _ := newTestProjector(store, &stubReader{})

	proj.HandleLog(context.Background(), types.Log{BlockNumber: 1})

	if len(store.markets)+len(store.predictions)+len(store.resolutions) != 0 {
		t.Fatalf("malformed log must not mutate anything")
	}
}
