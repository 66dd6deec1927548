package domain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/fundme/internal/pricefeed"
	"github.com/pendergraft/fundme/internal/validation"
)

var (
	ownerAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	alice     = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob       = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	feedAddr  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

// eth converts a decimal ether string to wei.
func eth(t *testing.T, s string) *big.Int {
	t.Helper()
	wei, err := validation.ParseAmount(s + "eth")
	require.NoError(t, err)
	return wei
}

// recordingTransferer remembers every transfer and can be made to fail.
type recordingTransferer struct {
	mu        sync.Mutex
	transfers []*big.Int
	credited  map[common.Address]*big.Int
	fail      error
}

func newRecordingTransferer() *recordingTransferer {
	return &recordingTransferer{credited: make(map[common.Address]*big.Int)}
}

func (r *recordingTransferer) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.transfers = append(r.transfers, amount)
	if _, ok := r.credited[to]; !ok {
		r.credited[to] = new(big.Int)
	}
	r.credited[to].Add(r.credited[to], amount)
	return nil
}

type failingSource struct{}

func (failingSource) LatestPrice(context.Context) (*pricefeed.Price, error) {
	return nil, errors.New("rpc unreachable")
}
func (failingSource) Address() common.Address { return feedAddr }

// newTestLedger returns a ledger priced at 2000 USD per ETH.
func newTestLedger(t *testing.T) (*Ledger, *pricefeed.MockAggregator, *recordingTransferer) {
	t.Helper()
	mock := pricefeed.NewMockAggregator(feedAddr, pricefeed.DefaultMockDecimals, big.NewInt(pricefeed.DefaultMockAnswer))
	tr := newRecordingTransferer()
	return New(ownerAddr, mock, tr), mock, tr
}

func TestConversionRate(t *testing.T) {
	price := &pricefeed.Price{Answer: big.NewInt(200000000000), Decimals: 8}

	assert.Equal(t, "60000000000000000000", ConversionRate(price, eth(t, "0.03")).String())
	assert.Equal(t, "2000000000000000000000", ConversionRate(price, eth(t, "1")).String())
	assert.Equal(t, "0", ConversionRate(price, big.NewInt(0)).String())
}

func TestLedger_Construction(t *testing.T) {
	l, _, _ := newTestLedger(t)

	assert.Equal(t, ownerAddr, l.Owner())
	assert.Equal(t, feedAddr, l.PriceFeed())
	assert.Equal(t, "50000000000000000000", l.MinimumUSD().String())
	assert.Equal(t, 0, l.FunderCount())
	assert.Equal(t, int64(0), l.Balance().Int64())

	custom := New(ownerAddr, failingSource{}, newRecordingTransferer(), WithMinimumUSD(75))
	assert.Equal(t, "75000000000000000000", custom.MinimumUSD().String())
}

func TestLedger_FundBelowMinimum(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		amount  *big.Int
		wantErr error
	}{
		{"0.01 ETH at 2000 USD", eth(t, "0.01"), ErrInsufficientContribution},
		{"one wei under threshold", new(big.Int).Sub(eth(t, "0.025"), big.NewInt(1)), ErrInsufficientContribution},
		{"zero", big.NewInt(0), ErrInsufficientContribution},
		{"negative", big.NewInt(-1), ErrInvalidAmount},
		{"nil", nil, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Fund(ctx, alice, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int64(0), l.AmountFunded(alice).Int64())
			assert.Equal(t, 0, l.FunderCount())
			assert.Equal(t, int64(0), l.Balance().Int64())
		})
	}
}

func TestLedger_FundRecordsContribution(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	result, err := l.Fund(ctx, alice, eth(t, "0.03"))
	require.NoError(t, err)
	assert.Equal(t, "60000000000000000000", result.USDValue.String())
	assert.Equal(t, 1, result.FunderCount)

	assert.Equal(t, eth(t, "0.03"), l.AmountFunded(alice))
	funder, err := l.Funder(0)
	require.NoError(t, err)
	assert.Equal(t, alice, funder)
	assert.Equal(t, eth(t, "0.03"), l.Balance())
}

func TestLedger_FundAtExactThreshold(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Fund(context.Background(), alice, eth(t, "0.025"))
	require.NoError(t, err)
	assert.Equal(t, eth(t, "0.025"), l.AmountFunded(alice))
}

func TestLedger_RepeatFunding(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Fund(ctx, alice, eth(t, "0.03"))
	require.NoError(t, err)
	_, err = l.Fund(ctx, bob, eth(t, "0.05"))
	require.NoError(t, err)
	result, err := l.Fund(ctx, alice, eth(t, "0.04"))
	require.NoError(t, err)

	assert.Equal(t, eth(t, "0.07"), result.Contribution)
	assert.Equal(t, eth(t, "0.07"), l.AmountFunded(alice))
	assert.Equal(t, 3, l.FunderCount())

	for i, want := range []common.Address{alice, bob, alice} {
		got, err := l.Funder(i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "funder %d", i)
	}

	sum := new(big.Int).Add(l.AmountFunded(alice), l.AmountFunded(bob))
	assert.Equal(t, sum, l.Balance())
}

func TestLedger_PriceIsReadOnEveryFund(t *testing.T) {
	l, mock, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Fund(ctx, alice, eth(t, "0.03"))
	require.NoError(t, err)

	// 1000 USD per ETH: 0.03 ETH is now only 30 USD.
	mock.UpdateAnswer(big.NewInt(100000000000))
	_, err = l.Fund(ctx, alice, eth(t, "0.03"))
	assert.ErrorIs(t, err, ErrInsufficientContribution)
	assert.Equal(t, eth(t, "0.03"), l.AmountFunded(alice))
}

func TestLedger_PriceSourceUnavailable(t *testing.T) {
	l := New(ownerAddr, failingSource{}, newRecordingTransferer())

	_, err := l.Fund(context.Background(), alice, eth(t, "1"))
	assert.ErrorIs(t, err, ErrPriceSourceUnavailable)
	assert.Equal(t, 0, l.FunderCount())

	_, err = l.LatestPrice(context.Background())
	assert.ErrorIs(t, err, ErrPriceSourceUnavailable)
}

func TestLedger_NonPositivePriceRejected(t *testing.T) {
	mock := pricefeed.NewMockAggregator(feedAddr, 8, big.NewInt(-5))
	l := New(ownerAddr, pricefeed.WithMaxAge(mock, 0), newRecordingTransferer())

	_, err := l.Fund(context.Background(), alice, eth(t, "1"))
	assert.ErrorIs(t, err, ErrPriceSourceUnavailable)
	assert.ErrorContains(t, err, "non-positive")
}

func TestLedger_WithdrawSingleFunder(t *testing.T) {
	l, _, tr := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Fund(ctx, alice, eth(t, "0.03"))
	require.NoError(t, err)

	result, err := l.Withdraw(ctx, ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, eth(t, "0.03"), result.Amount)
	assert.Equal(t, 1, result.FundersCleared)

	assert.Equal(t, eth(t, "0.03"), tr.credited[ownerAddr])
	assert.Equal(t, int64(0), l.Balance().Int64())
	assert.Equal(t, int64(0), l.AmountFunded(alice).Int64())

	_, err = l.Funder(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestLedger_WithdrawMultipleFunders(t *testing.T) {
	l, _, tr := newTestLedger(t)
	ctx := context.Background()

	accounts := make([]common.Address, 6)
	for i := range accounts {
		accounts[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
		_, err := l.Fund(ctx, accounts[i], eth(t, "0.03"))
		require.NoError(t, err)
	}
	assert.Equal(t, eth(t, "0.18"), l.Balance())

	_, err := l.Withdraw(ctx, ownerAddr)
	require.NoError(t, err)

	assert.Equal(t, eth(t, "0.18"), tr.credited[ownerAddr])
	for _, a := range accounts {
		assert.Equal(t, int64(0), l.AmountFunded(a).Int64())
	}
	assert.Equal(t, 0, l.FunderCount())
	assert.Equal(t, int64(0), l.Balance().Int64())

	// The ledger keeps working after a withdrawal.
	_, err = l.Fund(ctx, alice, eth(t, "0.03"))
	require.NoError(t, err)
	assert.Equal(t, eth(t, "0.03"), l.AmountFunded(alice))
}

func TestLedger_WithdrawOnlyOwner(t *testing.T) {
	l, _, tr := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Fund(ctx, alice, eth(t, "0.03"))
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, alice)
	assert.ErrorIs(t, err, ErrNotOwner)

	assert.Empty(t, tr.transfers)
	assert.Equal(t, eth(t, "0.03"), l.AmountFunded(alice))
	assert.Equal(t, 1, l.FunderCount())
	assert.Equal(t, eth(t, "0.03"), l.Balance())
}

func TestLedger_WithdrawTransferFailureRollsBack(t *testing.T) {
	l, _, tr := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Fund(ctx, alice, eth(t, "0.03"))
	require.NoError(t, err)
	_, err = l.Fund(ctx, bob, eth(t, "0.04"))
	require.NoError(t, err)
	_, err = l.Fund(ctx, alice, eth(t, "0.05"))
	require.NoError(t, err)

	tr.fail = errors.New("recipient rejected")
	_, err = l.Withdraw(ctx, ownerAddr)
	assert.ErrorIs(t, err, ErrTransferFailed)

	assert.Equal(t, eth(t, "0.08"), l.AmountFunded(alice))
	assert.Equal(t, eth(t, "0.04"), l.AmountFunded(bob))
	assert.Equal(t, 3, l.FunderCount())
	assert.Equal(t, eth(t, "0.12"), l.Balance())

	tr.fail = nil
	result, err := l.Withdraw(ctx, ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, eth(t, "0.12"), result.Amount)
}

func TestLedger_WithdrawEmpty(t *testing.T) {
	l, _, tr := newTestLedger(t)

	result, err := l.Withdraw(context.Background(), ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Amount.Int64())
	assert.Equal(t, 0, result.FundersCleared)
	require.Len(t, tr.transfers, 1)
	assert.Equal(t, int64(0), tr.transfers[0].Int64())
}

func TestLedger_FunderIndex(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Funder(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = l.Funder(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = l.Fund(context.Background(), alice, eth(t, "0.03"))
	require.NoError(t, err)
	_, err = l.Funder(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestLedger_UnknownAccountHasZeroContribution(t *testing.T) {
	l, _, _ := newTestLedger(t)
	assert.Equal(t, int64(0), l.AmountFunded(bob).Int64())
}

func TestLedger_ConcurrentFunding(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	const workers = 32
	amount := eth(t, "0.03")
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := alice
			if i%2 == 1 {
				sender = bob
			}
			_, err := l.Fund(ctx, sender, amount)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, l.FunderCount())
	sum := new(big.Int).Add(l.AmountFunded(alice), l.AmountFunded(bob))
	assert.Equal(t, sum, l.Balance())
	assert.Equal(t, new(big.Int).Mul(amount, big.NewInt(workers)).String(), l.Balance().String())
}
