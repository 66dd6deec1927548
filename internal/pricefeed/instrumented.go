package pricefeed

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/fundme/internal/observability/metrics"
)

type instrumented struct {
	src Source
}

// NewInstrumented records the outcome and latency of every read.
func NewInstrumented(src Source) Source {
	return &instrumented{src: src}
}

func (i *instrumented) LatestPrice(ctx context.Context) (*Price, error) {
	start := time.Now()
	p, err := i.src.LatestPrice(ctx)
	metrics.PriceFeedRead(readResult(err), time.Since(start))
	return p, err
}

func (i *instrumented) Address() common.Address {
	return i.src.Address()
}

func readResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrStalePrice):
		return "stale"
	case errors.Is(err, ErrInvalidAnswer):
		return "invalid"
	default:
		return "error"
	}
}
