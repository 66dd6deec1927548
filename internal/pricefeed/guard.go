package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type guarded struct {
	src    Source
	maxAge time.Duration
	now    func() time.Time
}

// WithMaxAge rejects non-positive answers and, when maxAge is positive,
// answers last updated more than maxAge ago.
func WithMaxAge(src Source, maxAge time.Duration) Source {
	return &guarded{src: src, maxAge: maxAge, now: time.Now}
}

func (g *guarded) LatestPrice(ctx context.Context) (*Price, error) {
	p, err := g.src.LatestPrice(ctx)
	if err != nil {
		return nil, err
	}
	if p.Answer == nil || p.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: round %v", ErrInvalidAnswer, p.RoundID)
	}
	if g.maxAge > 0 {
		if age := g.now().Sub(p.UpdatedAt); age > g.maxAge {
			return nil, fmt.Errorf("%w: updated %s ago", ErrStalePrice, age.Round(time.Second))
		}
	}
	return p, nil
}

func (g *guarded) Address() common.Address {
	return g.src.Address()
}
