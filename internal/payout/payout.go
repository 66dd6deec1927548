// Package payout pays withdrawals into per-account balances kept in storage.
package payout

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/fundme/internal/observability/metrics"
	"github.com/pendergraft/fundme/internal/storage"
)

// Store defines the storage operations payouts need.
type Store interface {
	CreditPayout(ctx context.Context, p *storage.Payout) error
	ListPayouts(ctx context.Context, account string) ([]storage.Payout, error)
}

// StoreTransferer credits withdrawals to the recipient's stored balance.
type StoreTransferer struct {
	store Store
}

// NewStoreTransferer creates a transferer backed by store.
func NewStoreTransferer(store Store) *StoreTransferer {
	return &StoreTransferer{store: store}
}

// Transfer credits amount to the recipient. Zero amounts succeed without
// writing a row.
func (t *StoreTransferer) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		metrics.Payout("rejected")
		return fmt.Errorf("negative payout: %s", amount)
	}
	if amount.Sign() == 0 {
		metrics.Payout("empty")
		return nil
	}
	if err := t.store.CreditPayout(ctx, &storage.Payout{Account: to.Hex(), Amount: amount.String()}); err != nil {
		metrics.Payout("error")
		return fmt.Errorf("crediting %s: %w", to.Hex(), err)
	}
	metrics.Payout("success")
	return nil
}

// Balance sums every payout made to account.
func (t *StoreTransferer) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	payouts, err := t.store.ListPayouts(ctx, account.Hex())
	if err != nil {
		return nil, fmt.Errorf("listing payouts: %w", err)
	}
	total := new(big.Int)
	for _, p := range payouts {
		v, ok := new(big.Int).SetString(p.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("payout %s has malformed amount %q", p.ID, p.Amount)
		}
		total.Add(total, v)
	}
	return total, nil
}
