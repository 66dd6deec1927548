package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/fundme/internal/observability/metrics"
	"github.com/pendergraft/fundme/internal/pricefeed"
	"github.com/pendergraft/fundme/internal/storage"
)

// EventStore defines the journal operations needed by the ledger service.
type EventStore interface {
	RecordEvent(ctx context.Context, e *storage.Event) error
	ListEvents(ctx context.Context, filter storage.EventFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Event], error)
}

// BalanceReader reports an account's external balance.
type BalanceReader interface {
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}

// Service is the ledger as exposed to transports.
type Service interface {
	// Fund credits amount to sender if it is worth at least the minimum.
	Fund(ctx context.Context, sender common.Address, amount *big.Int) (*FundResult, error)

	// Withdraw pays the whole balance to the owner and resets every funder.
	Withdraw(ctx context.Context, caller common.Address) (*WithdrawResult, error)

	Info(ctx context.Context) (*Info, error)
	AmountFunded(ctx context.Context, addr common.Address) (*big.Int, error)
	Funder(ctx context.Context, index int) (common.Address, error)
	Owner(ctx context.Context) common.Address
	PriceFeed(ctx context.Context) common.Address

	// Events lists journaled operations newest first.
	Events(ctx context.Context, filter EventFilter, pagination PaginationParams) (*EventsResult, error)

	// AccountBalance returns what has been paid out to an account.
	AccountBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	// SetPriceAnswer moves the development price feed. Owner only.
	SetPriceAnswer(ctx context.Context, caller common.Address, answer *big.Int) (*pricefeed.Price, error)
}

// service implements the Service interface.
type service struct {
	ledger   *Ledger
	events   EventStore
	balances BalanceReader
	logger   *slog.Logger

	network     string
	chainID     int
	development bool
	mock        *pricefeed.MockAggregator
}

// ServiceOption configures the ledger service.
type ServiceOption func(*service)

// WithNetwork records which network the ledger was deployed on.
func WithNetwork(name string, chainID int, development bool) ServiceOption {
	return func(s *service) {
		s.network = name
		s.chainID = chainID
		s.development = development
	}
}

// WithMockFeed exposes a development price feed for answer updates.
func WithMockFeed(m *pricefeed.MockAggregator) ServiceOption {
	return func(s *service) {
		s.mock = m
	}
}

// WithLogger sets the logger journal failures are reported to.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *service) {
		s.logger = logger
	}
}

// NewService creates a new ledger service.
func NewService(ledger *Ledger, events EventStore, balances BalanceReader, opts ...ServiceOption) *service {
	s := &service{
		ledger:   ledger,
		events:   events,
		balances: balances,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fund records a contribution and journals it.
func (s *service) Fund(ctx context.Context, sender common.Address, amount *big.Int) (*FundResult, error) {
	result, err := s.ledger.Fund(ctx, sender, amount)
	metrics.LedgerFund(resultLabel(err))
	if err != nil {
		return nil, err
	}
	s.publishState()

	s.journal(ctx, &storage.Event{
		Kind:        storage.EventFund,
		Account:     sender.Hex(),
		Amount:      result.Amount.String(),
		USDValue:    result.USDValue.String(),
		FunderCount: result.FunderCount,
	})
	return result, nil
}

// Withdraw pays out the held balance to the owner and journals it.
func (s *service) Withdraw(ctx context.Context, caller common.Address) (*WithdrawResult, error) {
	result, err := s.ledger.Withdraw(ctx, caller)
	metrics.LedgerWithdraw(resultLabel(err))
	if err != nil {
		return nil, err
	}
	s.publishState()

	s.journal(ctx, &storage.Event{
		Kind:    storage.EventWithdraw,
		Account: result.Recipient.Hex(),
		Amount:  result.Amount.String(),
	})
	return result, nil
}

// Info summarizes the ledger. A price source failure leaves Price nil
// rather than failing the call.
func (s *service) Info(ctx context.Context) (*Info, error) {
	balance, funders := s.ledger.State()
	info := &Info{
		Owner:       s.ledger.Owner(),
		PriceFeed:   s.ledger.PriceFeed(),
		Network:     s.network,
		ChainID:     s.chainID,
		Development: s.development,
		Balance:     balance,
		FunderCount: funders,
		MinimumUSD:  s.ledger.MinimumUSD(),
	}
	if price, err := s.ledger.LatestPrice(ctx); err == nil {
		info.Price = price
	} else {
		s.logger.Warn("reading price for ledger info", "error", err)
	}
	return info, nil
}

// AmountFunded returns the cumulative contribution of addr.
func (s *service) AmountFunded(ctx context.Context, addr common.Address) (*big.Int, error) {
	return s.ledger.AmountFunded(addr), nil
}

// Funder returns the funders log entry at index.
func (s *service) Funder(ctx context.Context, index int) (common.Address, error) {
	return s.ledger.Funder(index)
}

// Owner returns the ledger owner.
func (s *service) Owner(ctx context.Context) common.Address {
	return s.ledger.Owner()
}

// PriceFeed returns the price source address.
func (s *service) PriceFeed(ctx context.Context) common.Address {
	return s.ledger.PriceFeed()
}

// Events lists journaled operations newest first.
func (s *service) Events(ctx context.Context, filter EventFilter, pagination PaginationParams) (*EventsResult, error) {
	if pagination.Limit <= 0 || pagination.Limit > 100 {
		pagination.Limit = 20
	}

	result, err := s.events.ListEvents(ctx, storage.EventFilter{
		Kind:    filter.Kind,
		Account: filter.Account,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCursor, pagination.Cursor)
		}
		return nil, fmt.Errorf("listing events: %w", err)
	}

	events := make([]Event, 0, len(result.Data))
	for i := range result.Data {
		events = append(events, toEvent(&result.Data[i]))
	}
	return &EventsResult{
		Events:     events,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
	}, nil
}

// AccountBalance returns what has been paid out to an account.
func (s *service) AccountBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := s.balances.Balance(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("reading balance: %w", err)
	}
	return balance, nil
}

// SetPriceAnswer starts a new round on the development price feed.
// Only the owner may move the price.
func (s *service) SetPriceAnswer(ctx context.Context, caller common.Address, answer *big.Int) (*pricefeed.Price, error) {
	if s.mock == nil {
		return nil, ErrMockFeedUnavailable
	}
	if caller != s.ledger.Owner() {
		return nil, ErrNotOwner
	}
	if answer == nil || answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: answer must be positive", ErrInvalidAmount)
	}
	s.mock.UpdateAnswer(answer)
	return s.mock.LatestPrice(ctx)
}

// journal appends to the audit log. The ledger operation has already
// committed, so a failure here is reported and counted only.
func (s *service) journal(ctx context.Context, e *storage.Event) {
	if err := s.events.RecordEvent(context.WithoutCancel(ctx), e); err != nil {
		metrics.JournalFailure(e.Kind)
		s.logger.Error("journaling ledger event",
			"kind", e.Kind,
			"account", e.Account,
			"amount", e.Amount,
			"error", err,
		)
	}
}

func (s *service) publishState() {
	balance, funders := s.ledger.State()
	metrics.LedgerState(balance, funders)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInsufficientContribution):
		return "insufficient"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrPriceSourceUnavailable):
		return "price_unavailable"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid"
	default:
		return "error"
	}
}

func toEvent(e *storage.Event) Event {
	var createdAt time.Time
	if e.CreatedAt != "" {
		createdAt, _ = time.Parse("2006-01-02 15:04:05", e.CreatedAt)
	}
	amount, ok := new(big.Int).SetString(e.Amount, 10)
	if !ok {
		amount = new(big.Int)
	}
	var usd *big.Int
	if e.USDValue != "" {
		usd, _ = new(big.Int).SetString(e.USDValue, 10)
	}
	return Event{
		Seq:         e.Seq,
		ID:          e.ID,
		Kind:        e.Kind,
		Account:     common.HexToAddress(e.Account),
		Amount:      amount,
		USDValue:    usd,
		FunderCount: e.FunderCount,
		CreatedAt:   createdAt,
	}
}
