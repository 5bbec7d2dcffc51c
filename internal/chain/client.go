package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"oraclex/internal/config"
)

// DefaultRPCURL is the public fallback when no candidate URL is configured.
const DefaultRPCURL = "https://bsc-dataseed.binance.org"

const defaultRequestTimeout = 15 * time.Second

// ErrMissingContract means the service has no contract to watch; the caller
// keeps serving HTTP with sync disabled rather than running against an
// undefined contract.
var ErrMissingContract = errors.New("chain: contract address not configured")

type Client struct {
	cfg      config.ChainConfig
	logger   *zap.Logger
	url      string
	contract common.Address

	eth *ethclient.Client
}

// New validates configuration only; no network traffic until Connect.
func New(cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	addr := strings.TrimSpace(cfg.ContractAddress)
	if addr == "" {
		return nil, ErrMissingContract
	}
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("chain: invalid contract address %q", addr)
	}
	return &Client{
		cfg:      cfg,
		logger:   logger,
		url:      SelectRPCURL(cfg.RPCURLs),
		contract: common.HexToAddress(addr),
	}, nil
}

// SelectRPCURL picks the first non-empty candidate, else the public fallback.
func SelectRPCURL(candidates []string) string {
	for _, raw := range candidates {
		if url := strings.TrimSpace(raw); url != "" {
			return url
		}
	}
	return DefaultRPCURL
}

// Connect dials the selected endpoint and verifies it serves the pinned chain
// id. A mismatch is an error: a wrong-network RPC must be caught here, not
// mirrored into the database.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return errors.New("chain: nil client")
	}
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()

	eth, err := ethclient.DialContext(callCtx, c.url)
	if err != nil {
		return fmt.Errorf("chain: dial %s: %w", c.url, err)
	}
	chainID, err := eth.ChainID(callCtx)
	if err != nil {
		eth.Close()
		return fmt.Errorf("chain: chain id probe: %w", err)
	}
	if want := c.cfg.ChainID; want != 0 && chainID.Uint64() != want {
		eth.Close()
		return fmt.Errorf("chain: endpoint %s serves chain %d, want %d (%s)",
			c.url, chainID.Uint64(), want, c.cfg.NetworkName)
	}
	c.eth = eth
	if c.logger != nil {
		c.logger.Info("chain connected",
			zap.String("url", c.url),
			zap.Uint64("chain_id", chainID.Uint64()),
			zap.String("network", c.cfg.NetworkName),
			zap.String("contract", c.contract.Hex()),
		)
	}
	return nil
}

func (c *Client) Close() {
	if c != nil && c.eth != nil {
		c.eth.Close()
	}
}

func (c *Client) ContractAddress() common.Address {
	return c.contract
}

func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	if c == nil || c.eth == nil {
		return 0, errors.New("chain: not connected")
	}
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.eth.BlockNumber(callCtx)
}

// BlockByApproxTimestamp estimates the block height near a wall-clock time
// using a fixed average block interval. Heuristic only; consumers must
// tolerate being off by some blocks.
func (c *Client) BlockByApproxTimestamp(ctx context.Context, t time.Time) (uint64, error) {
	if c == nil || c.eth == nil {
		return 0, errors.New("chain: not connected")
	}
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	header, err := c.eth.HeaderByNumber(callCtx, nil)
	if err != nil {
		return 0, err
	}
	return ApproxBlockAt(t, header.Number.Uint64(), int64(header.Time), c.blockInterval()), nil
}

// ApproxBlockAt walks back from a known head (height, unix time) assuming a
// constant block interval.
func ApproxBlockAt(t time.Time, headBlock uint64, headTime int64, interval time.Duration) uint64 {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	delta := headTime - t.Unix()
	if delta <= 0 {
		return headBlock
	}
	// Millisecond arithmetic: sub-second intervals would truncate to a zero
	// divisor in whole seconds.
	back := uint64(delta * 1000 / interval.Milliseconds())
	if back >= headBlock {
		return 0
	}
	return headBlock - back
}

func (c *Client) blockInterval() time.Duration {
	if c.cfg.BlockInterval > 0 {
		return c.cfg.BlockInterval
	}
	return 3 * time.Second
}

// FilterLogs fetches mirrored-event logs for one inclusive block range.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("chain: not connected")
	}
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.eth.FilterLogs(callCtx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{EventTopics()},
	})
}

// SubscribeLogs opens a live subscription for the mirrored events. The
// subscription lifetime is bounded by ctx, not by the request timeout.
func (c *Client) SubscribeLogs(ctx context.Context, ch chan<- types.Log) (ethereum.Subscription, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("chain: not connected")
	}
	return c.eth.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{EventTopics()},
	}, ch)
}

// GetMarket reads full market details from the contract; the events do not
// carry every field, so projections read after each MarketCreated.
func (c *Client) GetMarket(ctx context.Context, marketID *big.Int) (MarketInfo, error) {
	var info MarketInfo
	if c == nil || c.eth == nil {
		return info, errors.New("chain: not connected")
	}
	input, err := oracleABI.Pack("getMarket", marketID)
	if err != nil {
		return info, err
	}
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	output, err := c.eth.CallContract(callCtx, ethereum.CallMsg{
		To:   &c.contract,
		Data: input,
	}, nil)
	if err != nil {
		return info, err
	}
	if err := oracleABI.UnpackIntoInterface(&info, "getMarket", output); err != nil {
		return info, err
	}
	return info, nil
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
