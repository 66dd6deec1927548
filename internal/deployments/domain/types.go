// Package domain exposes the history of ledger deployments.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Deployment records the parameters a ledger was created with.
type Deployment struct {
	ID                 string
	Network            string
	ChainID            int
	Owner              common.Address
	PriceFeed          common.Address
	MockPriceFeed      bool
	MinimumUSD         int64
	BlockConfirmations int
	CreatedAt          time.Time
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	Network string
	Limit   int
}

const (
	// DefaultLimit is used when a list request gives no limit.
	DefaultLimit = 20
	// MaxLimit caps a single list request.
	MaxLimit = 100
)
