package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeMarketCreatedRoundTrip(t *testing.T) {
	data, err := oracleABI.Events["MarketCreated"].Inputs.NonIndexed().Pack(
		"Will it rain tomorrow?",
		big.NewInt(1_800_000_000),
		"weather",
		uint8(2),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	creator := common.HexToAddress("0x1111111111111111111111111111111111111111")
	l := types.Log{
		Topics: []common.Hash{
			MarketCreatedTopic,
			common.BigToHash(big.NewInt(42)),
			common.BytesToHash(creator.Bytes()),
		},
		Data:        data,
		BlockNumber: 123,
	}

	decoded, err := DecodeLog(l)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, ok := decoded.(*MarketCreatedEvent)
	if !ok {
		t.Fatalf("decoded %T want *MarketCreatedEvent", decoded)
	}
	if ev.MarketID.Int64() != 42 {
		t.Fatalf("marketId=%s want 42", ev.MarketID)
	}
	if ev.Creator != creator {
		t.Fatalf("creator=%s", ev.Creator.Hex())
	}
	if ev.Question != "Will it rain tomorrow?" {
		t.Fatalf("question=%q", ev.Question)
	}
	if ev.Category != "weather" {
		t.Fatalf("category=%q", ev.Category)
	}
	if ev.OracleType != 2 {
		t.Fatalf("oracleType=%d want 2", ev.OracleType)
	}
	if ev.Raw.BlockNumber != 123 {
		t.Fatalf("raw block=%d want 123", ev.Raw.BlockNumber)
	}
}

func TestDecodePredictionPlacedRoundTrip(t *testing.T) {
	amount, _ := new(big.Int).SetString("10000000000000000000", 10)
	data, err := oracleABI.Events["PredictionPlaced"].Inputs.NonIndexed().Pack(
		big.NewInt(1),
		amount,
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	user := common.HexToAddress("0x2222222222222222222222222222222222222222")
	l := types.Log{
		Topics: []common.Hash{
			PredictionPlacedTopic,
			common.BigToHash(big.NewInt(7)),
			common.BytesToHash(user.Bytes()),
		},
		Data: data,
	}

	decoded, err := DecodeLog(l)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, ok := decoded.(*PredictionPlacedEvent)
	if !ok {
		t.Fatalf("decoded %T want *PredictionPlacedEvent", decoded)
	}
	if ev.MarketID.Int64() != 7 || ev.User != user {
		t.Fatalf("marketId=%s user=%s", ev.MarketID, ev.User.Hex())
	}
	if ev.Outcome.Int64() != 1 {
		t.Fatalf("outcome=%s want 1", ev.Outcome)
	}
	if ev.Amount.Cmp(amount) != 0 {
		t.Fatalf("amount=%s want %s", ev.Amount, amount)
	}
}

func TestDecodeMarketResolvedRoundTrip(t *testing.T) {
	data, err := oracleABI.Events["MarketResolved"].Inputs.NonIndexed().Pack(
		big.NewInt(0),
		big.NewInt(1_750_000_000),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	l := types.Log{
		Topics: []common.Hash{
			MarketResolvedTopic,
			common.BigToHash(big.NewInt(7)),
		},
		Data: data,
	}

	decoded, err := DecodeLog(l)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, ok := decoded.(*MarketResolvedEvent)
	if !ok {
		t.Fatalf("decoded %T want *MarketResolvedEvent", decoded)
	}
	if ev.MarketID.Int64() != 7 || ev.WinningOutcome.Int64() != 0 {
		t.Fatalf("marketId=%s winning=%s", ev.MarketID, ev.WinningOutcome)
	}
	if ev.ResolutionTime.Int64() != 1_750_000_000 {
		t.Fatalf("resolutionTime=%s", ev.ResolutionTime)
	}
}

func TestDecodeLogRejectsUnknownAndMalformed(t *testing.T) {
	if _, err := DecodeLog(types.Log{}); err == nil {
		t.Fatalf("log without topics must be rejected")
	}
	if _, err := DecodeLog(types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}); err == nil {
		t.Fatalf("unknown topic must be rejected")
	}
	if _, err := DecodeLog(types.Log{Topics: []common.Hash{MarketCreatedTopic}}); err == nil {
		t.Fatalf("missing indexed topics must be rejected")
	}
}

func TestEventTopicsCoversAllEvents(t *testing.T) {
	topics := EventTopics()
	if len(topics) != 3 {
		t.Fatalf("topics=%d want 3", len(topics))
	}
	seen := map[common.Hash]bool{}
	for _, h := range topics {
		seen[h] = true
	}
	if !seen[MarketCreatedTopic] || !seen[PredictionPlacedTopic] || !seen[MarketResolvedTopic] {
		t.Fatalf("topics missing an event signature")
	}
}
