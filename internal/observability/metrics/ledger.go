package metrics

import (
	"math/big"
	"time"
)

// LedgerFund records a fund attempt.
func LedgerFund(result string) {
	if !enabled {
		return
	}
	ledgerFundTotal.WithLabelValues(result).Inc()
}

// LedgerWithdraw records a withdraw attempt.
func LedgerWithdraw(result string) {
	if !enabled {
		return
	}
	ledgerWithdrawTotal.WithLabelValues(result).Inc()
}

// LedgerState publishes the current held balance and funders log length.
// Balances beyond float64 precision are approximated.
func LedgerState(balance *big.Int, funders int) {
	if !enabled {
		return
	}
	f, _ := new(big.Float).SetInt(balance).Float64()
	ledgerBalanceWei.Set(f)
	ledgerFunders.Set(float64(funders))
}

// JournalFailure records an event that could not be journaled.
func JournalFailure(kind string) {
	if !enabled {
		return
	}
	journalFailureTotal.WithLabelValues(kind).Inc()
}

// PriceFeedRead records a price feed read and its latency.
func PriceFeedRead(result string, d time.Duration) {
	if !enabled {
		return
	}
	priceFeedReadTotal.WithLabelValues(result).Inc()
	priceFeedDuration.Observe(d.Seconds())
}

// Payout records a payout attempt.
func Payout(result string) {
	if !enabled {
		return
	}
	payoutTotal.WithLabelValues(result).Inc()
}
