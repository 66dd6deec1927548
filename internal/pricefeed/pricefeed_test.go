package pricefeed

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var feedAddress = common.HexToAddress("0x7b298DA61482cC1b0596eFdb1dAf02C246352cD8")

func TestPriceScaled(t *testing.T) {
	p := &Price{Answer: big.NewInt(200000000000), Decimals: 8}

	assert.Equal(t, "2000000000000000000000", p.Scaled(18).String())
	assert.Equal(t, "200000000000", p.Scaled(8).String())
	assert.Equal(t, "2000", p.Scaled(0).String())
	assert.Equal(t, "200000000000", p.Answer.String(), "Scaled must not mutate the answer")
}

func TestMockAggregator(t *testing.T) {
	m := NewMockAggregator(feedAddress, DefaultMockDecimals, big.NewInt(DefaultMockAnswer))

	p, err := m.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.RoundID.Int64())
	assert.Equal(t, uint8(8), p.Decimals)
	assert.Equal(t, "200000000000", p.Answer.String())
	assert.Equal(t, feedAddress, m.Address())

	m.UpdateAnswer(big.NewInt(300000000000))
	p2, err := m.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), p2.RoundID.Int64())
	assert.Equal(t, "300000000000", p2.Answer.String())

	// Earlier reads are snapshots.
	assert.Equal(t, "200000000000", p.Answer.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.LatestPrice(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeCaller answers aggregator calls with ABI-encoded values.
type fakeCaller struct {
	decimals  uint8
	answer    *big.Int
	updatedAt int64
	head      uint64

	decimalsCalls int
	blocks        []*big.Int
	err           error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	switch {
	case bytes.Equal(msg.Data, aggregatorABI.Methods["decimals"].ID):
		f.decimalsCalls++
		return aggregatorABI.Methods["decimals"].Outputs.Pack(f.decimals)
	case bytes.Equal(msg.Data, aggregatorABI.Methods["latestRoundData"].ID):
		f.blocks = append(f.blocks, block)
		return aggregatorABI.Methods["latestRoundData"].Outputs.Pack(
			big.NewInt(7), f.answer, big.NewInt(f.updatedAt), big.NewInt(f.updatedAt), big.NewInt(7),
		)
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeCaller) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func TestChainlink_LatestPrice(t *testing.T) {
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	caller := &fakeCaller{decimals: 8, answer: big.NewInt(250000000000), updatedAt: updated.Unix(), head: 100}
	feed := NewChainlink(caller, feedAddress, 1)

	p, err := feed.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "250000000000", p.Answer.String())
	assert.Equal(t, uint8(8), p.Decimals)
	assert.Equal(t, int64(7), p.RoundID.Int64())
	assert.True(t, updated.Equal(p.UpdatedAt))
	assert.Nil(t, caller.blocks[0], "single confirmation reads latest")

	caller.answer = big.NewInt(260000000000)
	p, err = feed.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "260000000000", p.Answer.String(), "answer is never cached")
	assert.Equal(t, 1, caller.decimalsCalls, "decimals are read once")
}

func TestChainlink_Confirmations(t *testing.T) {
	caller := &fakeCaller{decimals: 8, answer: big.NewInt(1), head: 100}
	feed := NewChainlink(caller, feedAddress, 6)

	_, err := feed.LatestPrice(context.Background())
	require.NoError(t, err)
	require.Len(t, caller.blocks, 1)
	assert.Equal(t, int64(95), caller.blocks[0].Int64())

	caller.head = 2
	_, err = feed.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), caller.blocks[1].Int64())
}

func TestChainlink_CallError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("connection refused")}
	feed := NewChainlink(caller, feedAddress, 1)

	_, err := feed.LatestPrice(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calling decimals")

	caller.err = nil
	caller.decimals = 8
	caller.answer = big.NewInt(5)
	_, err = feed.LatestPrice(context.Background())
	assert.NoError(t, err, "decimals are retried after a failure")
}

type staticSource struct {
	price *Price
	err   error
}

func (s *staticSource) LatestPrice(context.Context) (*Price, error) { return s.price, s.err }
func (s *staticSource) Address() common.Address                     { return feedAddress }

func TestWithMaxAge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		price   *Price
		srcErr  error
		maxAge  time.Duration
		wantErr error
	}{
		{
			name:   "fresh",
			price:  &Price{Answer: big.NewInt(10), UpdatedAt: now.Add(-time.Minute)},
			maxAge: time.Hour,
		},
		{
			name:    "stale",
			price:   &Price{Answer: big.NewInt(10), UpdatedAt: now.Add(-2 * time.Hour)},
			maxAge:  time.Hour,
			wantErr: ErrStalePrice,
		},
		{
			name:   "age check disabled",
			price:  &Price{Answer: big.NewInt(10), UpdatedAt: now.Add(-48 * time.Hour)},
			maxAge: 0,
		},
		{
			name:    "zero answer",
			price:   &Price{Answer: big.NewInt(0), UpdatedAt: now},
			maxAge:  time.Hour,
			wantErr: ErrInvalidAnswer,
		},
		{
			name:    "negative answer",
			price:   &Price{Answer: big.NewInt(-1), UpdatedAt: now},
			wantErr: ErrInvalidAnswer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := WithMaxAge(&staticSource{price: tt.price, err: tt.srcErr}, tt.maxAge).(*guarded)
			g.now = func() time.Time { return now }

			p, err := g.LatestPrice(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.price, p)
			assert.Equal(t, feedAddress, g.Address())
		})
	}
}

func TestWithMaxAge_ReportsRoundedAge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g := WithMaxAge(&staticSource{price: &Price{Answer: big.NewInt(10), UpdatedAt: now.Add(-1600 * time.Millisecond)}}, time.Second).(*guarded)
	g.now = func() time.Time { return now }

	_, err := g.LatestPrice(context.Background())
	require.ErrorIs(t, err, ErrStalePrice)
	assert.Contains(t, err.Error(), "updated 2s ago")
}

func TestInstrumented_PassesThrough(t *testing.T) {
	srcErr := errors.New("rpc down")
	src := NewInstrumented(&staticSource{err: srcErr})

	_, err := src.LatestPrice(context.Background())
	assert.ErrorIs(t, err, srcErr)
	assert.Equal(t, feedAddress, src.Address())

	assert.Equal(t, "stale", readResult(ErrStalePrice))
	assert.Equal(t, "invalid", readResult(ErrInvalidAnswer))
	assert.Equal(t, "success", readResult(nil))
}
