package domain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/fundme/internal/pricefeed"
)

// DefaultMinimumUSD is the smallest accepted contribution, in whole USD.
const DefaultMinimumUSD = 50

// usdDecimals is the fixed-point precision USD values are compared at.
const usdDecimals = 18

var ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(usdDecimals), nil)

// Ledger accepts contributions worth at least a minimum USD value and lets
// its owner withdraw everything held.
type Ledger struct {
	owner      common.Address
	feed       pricefeed.Source
	transferer Transferer
	minimumUSD *big.Int

	mu            sync.Mutex
	contributions map[common.Address]*big.Int
	funders       []common.Address
	balance       *big.Int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMinimumUSD sets the minimum contribution in whole USD.
func WithMinimumUSD(usd int64) Option {
	return func(l *Ledger) {
		l.minimumUSD = new(big.Int).Mul(big.NewInt(usd), ether)
	}
}

// New creates an empty ledger owned by owner.
func New(owner common.Address, feed pricefeed.Source, transferer Transferer, opts ...Option) *Ledger {
	l := &Ledger{
		owner:         owner,
		feed:          feed,
		transferer:    transferer,
		minimumUSD:    new(big.Int).Mul(big.NewInt(DefaultMinimumUSD), ether),
		contributions: make(map[common.Address]*big.Int),
		balance:       new(big.Int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ConversionRate returns the USD value of amount wei at the given price,
// as an 18-decimal fixed-point number.
func ConversionRate(price *pricefeed.Price, amount *big.Int) *big.Int {
	usd := price.Scaled(usdDecimals)
	usd.Mul(usd, amount)
	return usd.Quo(usd, ether)
}

// Fund records a contribution from sender. The price is read fresh on every
// call; the contribution is rejected when worth less than the minimum.
func (l *Ledger) Fund(ctx context.Context, sender common.Address, amount *big.Int) (*FundResult, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidAmount)
	}

	price, err := l.feed.LatestPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceSourceUnavailable, err)
	}

	usd := ConversionRate(price, amount)
	if amount.Sign() == 0 || usd.Cmp(l.minimumUSD) < 0 {
		return nil, ErrInsufficientContribution
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.contributions[sender]
	if !ok {
		current = new(big.Int)
	}
	total := new(big.Int).Add(current, amount)
	l.contributions[sender] = total
	l.funders = append(l.funders, sender)
	l.balance = new(big.Int).Add(l.balance, amount)

	return &FundResult{
		Sender:       sender,
		Amount:       new(big.Int).Set(amount),
		USDValue:     usd,
		Contribution: new(big.Int).Set(total),
		FunderCount:  len(l.funders),
	}, nil
}

// Withdraw pays the whole balance to the owner and resets every funder's
// contribution. A failed transfer restores the previous state.
func (l *Ledger) Withdraw(ctx context.Context, caller common.Address) (*WithdrawResult, error) {
	if caller != l.owner {
		return nil, ErrNotOwner
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prevContributions := make(map[common.Address]*big.Int, len(l.funders))
	for _, funder := range l.funders {
		if _, seen := prevContributions[funder]; seen {
			continue
		}
		prevContributions[funder] = l.contributions[funder]
		l.contributions[funder] = new(big.Int)
	}
	prevFunders := l.funders
	amount := l.balance

	l.funders = nil
	l.balance = new(big.Int)

	if err := l.transferer.Transfer(ctx, l.owner, new(big.Int).Set(amount)); err != nil {
		for funder, c := range prevContributions {
			l.contributions[funder] = c
		}
		l.funders = prevFunders
		l.balance = amount
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	return &WithdrawResult{
		Recipient:      l.owner,
		Amount:         new(big.Int).Set(amount),
		FundersCleared: len(prevFunders),
	}, nil
}

// Owner returns the account allowed to withdraw.
func (l *Ledger) Owner() common.Address {
	return l.owner
}

// PriceFeed returns the address of the price source.
func (l *Ledger) PriceFeed() common.Address {
	return l.feed.Address()
}

// LatestPrice reads the price source without funding.
func (l *Ledger) LatestPrice(ctx context.Context) (*pricefeed.Price, error) {
	price, err := l.feed.LatestPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceSourceUnavailable, err)
	}
	return price, nil
}

// MinimumUSD returns the minimum contribution as an 18-decimal USD value.
func (l *Ledger) MinimumUSD() *big.Int {
	return new(big.Int).Set(l.minimumUSD)
}

// AmountFunded returns the cumulative contribution of addr since the last
// withdrawal, zero if it never funded.
func (l *Ledger) AmountFunded(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.contributions[addr]; ok {
		return new(big.Int).Set(c)
	}
	return new(big.Int)
}

// Funder returns the funders log entry at index.
func (l *Ledger) Funder(index int) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.funders) {
		return common.Address{}, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(l.funders))
	}
	return l.funders[index], nil
}

// Balance returns the amount currently held.
func (l *Ledger) Balance() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance)
}

// FunderCount returns the length of the funders log.
func (l *Ledger) FunderCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.funders)
}

// State returns the balance and funders log length read together.
func (l *Ledger) State() (*big.Int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance), len(l.funders)
}
