package pricefeed

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Default mock parameters: 2000 USD at 8 decimals.
const (
	DefaultMockDecimals = 8
	DefaultMockAnswer   = 200000000000
)

// MockAggregator is an in-memory price feed for development networks.
type MockAggregator struct {
	mu        sync.RWMutex
	address   common.Address
	decimals  uint8
	round     *big.Int
	answer    *big.Int
	updatedAt time.Time
	now       func() time.Time
}

// NewMockAggregator creates a mock feed reporting answer at the given precision.
func NewMockAggregator(address common.Address, decimals uint8, answer *big.Int) *MockAggregator {
	m := &MockAggregator{
		address:  address,
		decimals: decimals,
		round:    new(big.Int),
		now:      time.Now,
	}
	m.UpdateAnswer(answer)
	return m
}

// UpdateAnswer starts a new round with the given answer.
func (m *MockAggregator) UpdateAnswer(answer *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answer = new(big.Int).Set(answer)
	m.round = new(big.Int).Add(m.round, big.NewInt(1))
	m.updatedAt = m.now()
}

// LatestPrice returns the current round.
func (m *MockAggregator) LatestPrice(ctx context.Context) (*Price, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Price{
		RoundID:   new(big.Int).Set(m.round),
		Answer:    new(big.Int).Set(m.answer),
		Decimals:  m.decimals,
		UpdatedAt: m.updatedAt,
	}, nil
}

// Address returns the address the mock was registered under.
func (m *MockAggregator) Address() common.Address {
	return m.address
}

// Decimals returns the mock's precision.
func (m *MockAggregator) Decimals() uint8 {
	return m.decimals
}
