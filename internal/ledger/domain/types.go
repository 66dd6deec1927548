// Package domain contains the contribution ledger and the service around it.
package domain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/fundme/internal/pricefeed"
)

// Errors returned by the ledger and its service.
var (
	ErrInsufficientContribution = errors.New("you need to spend more ETH")
	ErrNotOwner                 = errors.New("caller is not the owner")
	ErrTransferFailed           = errors.New("transfer to owner failed")
	ErrIndexOutOfRange          = errors.New("funder index out of range")
	ErrPriceSourceUnavailable   = errors.New("price source unavailable")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrMockFeedUnavailable      = errors.New("price feed is not a development mock")
	ErrInvalidCursor            = errors.New("invalid cursor")
)

// Transferer moves value out of the ledger. Transfer reports synchronously
// whether the recipient was credited.
type Transferer interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// FundResult describes a committed contribution.
type FundResult struct {
	Sender       common.Address
	Amount       *big.Int
	USDValue     *big.Int // 18 decimals
	Contribution *big.Int // sender's cumulative contribution after the call
	FunderCount  int
}

// WithdrawResult describes a committed withdrawal.
type WithdrawResult struct {
	Recipient      common.Address
	Amount         *big.Int
	FundersCleared int
}

// Info is a point-in-time summary of the ledger.
type Info struct {
	Owner       common.Address
	PriceFeed   common.Address
	Network     string
	ChainID     int
	Development bool
	Balance     *big.Int
	FunderCount int
	MinimumUSD  *big.Int // 18 decimals
	Price       *pricefeed.Price
}

// Event is a journaled ledger operation.
type Event struct {
	Seq         int64
	ID          string
	Kind        string
	Account     common.Address
	Amount      *big.Int
	USDValue    *big.Int
	FunderCount int
	CreatedAt   time.Time
}

// EventFilter contains filter options for listing events.
type EventFilter struct {
	Kind    string
	Account string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// EventsResult is a page of journal events.
type EventsResult struct {
	Events     []Event
	HasMore    bool
	NextCursor string
}
