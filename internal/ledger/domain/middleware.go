package domain

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/fundme/internal/pricefeed"
)

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(Service) *loggingMiddleware {
	return func(next Service) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) Fund(ctx context.Context, sender common.Address, amount *big.Int) (*FundResult, error) {
	start := time.Now()
	result, err := m.next.Fund(ctx, sender, amount)
	attrs := []any{
		"sender", sender.Hex(),
		"amount", amount,
		"duration", time.Since(start),
		"error", err,
	}
	if result != nil {
		attrs = append(attrs, "usd_value", result.USDValue, "funders", result.FunderCount)
	}
	m.logger.Info("Fund", attrs...)
	return result, err
}

func (m *loggingMiddleware) Withdraw(ctx context.Context, caller common.Address) (*WithdrawResult, error) {
	start := time.Now()
	result, err := m.next.Withdraw(ctx, caller)
	attrs := []any{
		"caller", caller.Hex(),
		"duration", time.Since(start),
		"error", err,
	}
	if result != nil {
		attrs = append(attrs, "amount", result.Amount, "funders_cleared", result.FundersCleared)
	}
	m.logger.Info("Withdraw", attrs...)
	return result, err
}

func (m *loggingMiddleware) Info(ctx context.Context) (*Info, error) {
	start := time.Now()
	info, err := m.next.Info(ctx)
	m.logger.Debug("Info",
		"duration", time.Since(start),
		"error", err,
	)
	return info, err
}

func (m *loggingMiddleware) AmountFunded(ctx context.Context, addr common.Address) (*big.Int, error) {
	start := time.Now()
	amount, err := m.next.AmountFunded(ctx, addr)
	m.logger.Debug("AmountFunded",
		"address", addr.Hex(),
		"duration", time.Since(start),
		"error", err,
	)
	return amount, err
}

func (m *loggingMiddleware) Funder(ctx context.Context, index int) (common.Address, error) {
	start := time.Now()
	funder, err := m.next.Funder(ctx, index)
	m.logger.Debug("Funder",
		"index", index,
		"duration", time.Since(start),
		"error", err,
	)
	return funder, err
}

func (m *loggingMiddleware) Owner(ctx context.Context) common.Address {
	return m.next.Owner(ctx)
}

func (m *loggingMiddleware) PriceFeed(ctx context.Context) common.Address {
	return m.next.PriceFeed(ctx)
}

func (m *loggingMiddleware) Events(ctx context.Context, filter EventFilter, pagination PaginationParams) (*EventsResult, error) {
	start := time.Now()
	result, err := m.next.Events(ctx, filter, pagination)
	m.logger.Debug("Events",
		"kind", filter.Kind,
		"account", filter.Account,
		"limit", pagination.Limit,
		"cursor", pagination.Cursor,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) AccountBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	start := time.Now()
	balance, err := m.next.AccountBalance(ctx, addr)
	m.logger.Debug("AccountBalance",
		"address", addr.Hex(),
		"duration", time.Since(start),
		"error", err,
	)
	return balance, err
}

func (m *loggingMiddleware) SetPriceAnswer(ctx context.Context, caller common.Address, answer *big.Int) (*pricefeed.Price, error) {
	start := time.Now()
	price, err := m.next.SetPriceAnswer(ctx, caller, answer)
	m.logger.Info("SetPriceAnswer",
		"caller", caller.Hex(),
		"answer", answer,
		"duration", time.Since(start),
		"error", err,
	)
	return price, err
}
