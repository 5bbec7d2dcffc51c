package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Fixed OracleX market-factory surface: the three mirrored events and the one
// read method used for the read-after-event pattern.
const oracleABIJSON = `[
	{"type":"event","name":"MarketCreated","inputs":[
		{"name":"marketId","type":"uint256","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"question","type":"string","indexed":false},
		{"name":"endTime","type":"uint256","indexed":false},
		{"name":"category","type":"string","indexed":false},
		{"name":"oracleType","type":"uint8","indexed":false}
	]},
	{"type":"event","name":"PredictionPlaced","inputs":[
		{"name":"marketId","type":"uint256","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"outcome","type":"uint256","indexed":false},
		{"name":"amount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"MarketResolved","inputs":[
		{"name":"marketId","type":"uint256","indexed":true},
		{"name":"winningOutcome","type":"uint256","indexed":false},
		{"name":"resolutionTime","type":"uint256","indexed":false}
	]},
	{"type":"function","name":"getMarket","stateMutability":"view","inputs":[
		{"name":"marketId","type":"uint256"}
	],"outputs":[
		{"name":"question","type":"string"},
		{"name":"endTime","type":"uint256"},
		{"name":"resolved","type":"bool"},
		{"name":"outcome","type":"uint256"},
		{"name":"totalStaked","type":"uint256"},
		{"name":"creator","type":"address"},
		{"name":"category","type":"string"}
	]}
]`

var oracleABI = mustParseABI(oracleABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Event topic0 hashes, used to filter log queries and route decoded logs.
var (
	MarketCreatedTopic    = oracleABI.Events["MarketCreated"].ID
	PredictionPlacedTopic = oracleABI.Events["PredictionPlaced"].ID
	MarketResolvedTopic   = oracleABI.Events["MarketResolved"].ID
)

// EventTopics lists all mirrored event signatures for a single filter query.
func EventTopics() []common.Hash {
	return []common.Hash{MarketCreatedTopic, PredictionPlacedTopic, MarketResolvedTopic}
}

type MarketCreatedEvent struct {
	MarketID   *big.Int
	Creator    common.Address
	Question   string
	EndTime    *big.Int
	Category   string
	OracleType uint8
	Raw        types.Log
}

type PredictionPlacedEvent struct {
	MarketID *big.Int
	User     common.Address
	Outcome  *big.Int
	Amount   *big.Int
	Raw      types.Log
}

type MarketResolvedEvent struct {
	MarketID       *big.Int
	WinningOutcome *big.Int
	ResolutionTime *big.Int
	Raw            types.Log
}

// MarketInfo is the unpacked return of getMarket.
type MarketInfo struct {
	Question    string
	EndTime     *big.Int
	Resolved    bool
	Outcome     *big.Int
	TotalStaked *big.Int
	Creator     common.Address
	Category    string
}

// DecodeLog maps a raw log to one of the three typed events. Unknown topics
// and malformed payloads return an error; callers log and drop.
func DecodeLog(l types.Log) (any, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("log without topics")
	}
	switch l.Topics[0] {
	case MarketCreatedTopic:
		return decodeMarketCreated(l)
	case PredictionPlacedTopic:
		return decodePredictionPlaced(l)
	case MarketResolvedTopic:
		return decodeMarketResolved(l)
	default:
		return nil, fmt.Errorf("unknown event topic %s", l.Topics[0].Hex())
	}
}

func decodeMarketCreated(l types.Log) (*MarketCreatedEvent, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("MarketCreated: expected 3 topics, got %d", len(l.Topics))
	}
	var data struct {
		Question   string
		EndTime    *big.Int
		Category   string
		OracleType uint8
	}
	if err := oracleABI.UnpackIntoInterface(&data, "MarketCreated", l.Data); err != nil {
		return nil, fmt.Errorf("MarketCreated: %w", err)
	}
	return &MarketCreatedEvent{
		MarketID:   new(big.Int).SetBytes(l.Topics[1].Bytes()),
		Creator:    common.BytesToAddress(l.Topics[2].Bytes()),
		Question:   data.Question,
		EndTime:    data.EndTime,
		Category:   data.Category,
		OracleType: data.OracleType,
		Raw:        l,
	}, nil
}

func decodePredictionPlaced(l types.Log) (*PredictionPlacedEvent, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("PredictionPlaced: expected 3 topics, got %d", len(l.Topics))
	}
	var data struct {
		Outcome *big.Int
		Amount  *big.Int
	}
	if err := oracleABI.UnpackIntoInterface(&data, "PredictionPlaced", l.Data); err != nil {
		return nil, fmt.Errorf("PredictionPlaced: %w", err)
	}
	return &PredictionPlacedEvent{
		MarketID: new(big.Int).SetBytes(l.Topics[1].Bytes()),
		User:     common.BytesToAddress(l.Topics[2].Bytes()),
		Outcome:  data.Outcome,
		Amount:   data.Amount,
		Raw:      l,
	}, nil
}

func decodeMarketResolved(l types.Log) (*MarketResolvedEvent, error) {
	if len(l.Topics) < 2 {
		return nil, fmt.Errorf("MarketResolved: expected 2 topics, got %d", len(l.Topics))
	}
	var data struct {
		WinningOutcome *big.Int
		ResolutionTime *big.Int
	}
	if err := oracleABI.UnpackIntoInterface(&data, "MarketResolved", l.Data); err != nil {
		return nil, fmt.Errorf("MarketResolved: %w", err)
	}
	return &MarketResolvedEvent{
		MarketID:       new(big.Int).SetBytes(l.Topics[1].Bytes()),
		WinningOutcome: data.WinningOutcome,
		ResolutionTime: data.ResolutionTime,
		Raw:            l,
	}, nil
}
