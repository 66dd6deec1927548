package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const aggregatorV3ABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

var aggregatorABI = mustParseABI(aggregatorV3ABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("parsing aggregator ABI: %v", err))
	}
	return parsed
}

// Caller is the subset of an Ethereum RPC client the reader needs.
// *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type roundData struct {
	RoundId         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// Chainlink reads an AggregatorV3 contract.
type Chainlink struct {
	caller        Caller
	address       common.Address
	confirmations int

	mu       sync.Mutex
	decimals *uint8
}

// NewChainlink creates a reader for the feed at address. With more than one
// confirmation, rounds are read from head-(confirmations-1) so only answers
// buried that deep are used.
func NewChainlink(caller Caller, address common.Address, confirmations int) *Chainlink {
	if confirmations < 1 {
		confirmations = 1
	}
	return &Chainlink{caller: caller, address: address, confirmations: confirmations}
}

// Address returns the feed contract address.
func (c *Chainlink) Address() common.Address {
	return c.address
}

// LatestPrice reads the latest round. Decimals are read once.
func (c *Chainlink) LatestPrice(ctx context.Context) (*Price, error) {
	decimals, err := c.readDecimals(ctx)
	if err != nil {
		return nil, err
	}

	block, err := c.blockNumber(ctx)
	if err != nil {
		return nil, err
	}

	out, err := c.call(ctx, "latestRoundData", block)
	if err != nil {
		return nil, err
	}
	var rd roundData
	if err := aggregatorABI.UnpackIntoInterface(&rd, "latestRoundData", out); err != nil {
		return nil, fmt.Errorf("decoding latestRoundData: %w", err)
	}

	return &Price{
		RoundID:   rd.RoundId,
		Answer:    rd.Answer,
		Decimals:  decimals,
		UpdatedAt: time.Unix(rd.UpdatedAt.Int64(), 0).UTC(),
	}, nil
}

func (c *Chainlink) readDecimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decimals != nil {
		return *c.decimals, nil
	}

	out, err := c.call(ctx, "decimals", nil)
	if err != nil {
		return 0, err
	}
	values, err := aggregatorABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("decoding decimals: %w", err)
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decoding decimals: unexpected type %T", values[0])
	}
	c.decimals = &d
	return d, nil
}

func (c *Chainlink) blockNumber(ctx context.Context) (*big.Int, error) {
	if c.confirmations <= 1 {
		return nil, nil
	}
	head, err := c.caller.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading block number: %w", err)
	}
	lag := uint64(c.confirmations - 1)
	if head < lag {
		return new(big.Int), nil
	}
	return new(big.Int).SetUint64(head - lag), nil
}

func (c *Chainlink) call(ctx context.Context, method string, block *big.Int) ([]byte, error) {
	data, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", method, c.address.Hex(), err)
	}
	return out, nil
}
