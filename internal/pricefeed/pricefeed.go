// Package pricefeed reads the ETH/USD price the ledger converts contributions
// with. Sources are either a live AggregatorV3 contract or an in-memory mock
// used on development networks.
package pricefeed

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAnswer = errors.New("price feed returned a non-positive answer")
	ErrStalePrice    = errors.New("price feed answer is stale")
)

// Source is a price oracle that reports the latest ETH/USD answer.
type Source interface {
	LatestPrice(ctx context.Context) (*Price, error)
	Address() common.Address
}

// Price is one round of a price feed.
type Price struct {
	RoundID   *big.Int
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Scaled returns the answer rescaled to the given number of decimals.
// Scaling down truncates toward zero.
func (p *Price) Scaled(decimals uint8) *big.Int {
	out := new(big.Int).Set(p.Answer)
	switch {
	case decimals > p.Decimals:
		return out.Mul(out, pow10(decimals-p.Decimals))
	case decimals < p.Decimals:
		return out.Quo(out, pow10(p.Decimals-decimals))
	}
	return out
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
