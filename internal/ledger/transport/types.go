// Package transport provides HTTP request/response types for the ledger.
// Amounts cross the wire as base-10 wei strings.
package transport

import (
	"math/big"
	"time"

	"github.com/pendergraft/fundme/internal/ledger/domain"
	"github.com/pendergraft/fundme/internal/pricefeed"
	"github.com/pendergraft/fundme/internal/validation"
)

// FundRequest is the body of POST /fund. Amount accepts the forms
// validation.ParseAmount does, e.g. "30000000000000000" or "0.03eth".
type FundRequest struct {
	Amount string `json:"amount"`
}

// SetAnswerRequest is the body of PUT /price-feed/answer.
type SetAnswerRequest struct {
	Answer string `json:"answer"`
}

// PriceResponse is a price feed round.
type PriceResponse struct {
	RoundID   string `json:"roundId"`
	Answer    string `json:"answer"`
	Decimals  uint8  `json:"decimals"`
	UpdatedAt string `json:"updatedAt"`
}

// InfoResponse summarizes the ledger.
type InfoResponse struct {
	Owner       string         `json:"owner"`
	PriceFeed   string         `json:"priceFeed"`
	Network     string         `json:"network"`
	ChainID     int            `json:"chainId"`
	Development bool           `json:"development"`
	Balance     string         `json:"balance"`
	BalanceEth  string         `json:"balanceEth"`
	FunderCount int            `json:"funderCount"`
	MinimumUSD  string         `json:"minimumUsd"`
	Price       *PriceResponse `json:"price,omitempty"`
}

// FundResponse describes an accepted contribution.
type FundResponse struct {
	Sender       string `json:"sender"`
	Amount       string `json:"amount"`
	USDValue     string `json:"usdValue"`
	Contribution string `json:"contribution"`
	FunderCount  int    `json:"funderCount"`
}

// WithdrawResponse describes a completed withdrawal.
type WithdrawResponse struct {
	Recipient      string `json:"recipient"`
	Amount         string `json:"amount"`
	FundersCleared int    `json:"fundersCleared"`
}

// FunderResponse is one entry of the funders log.
type FunderResponse struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
}

// ContributionResponse is an address's current contribution.
type ContributionResponse struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// BalanceResponse is what has been paid out to an account.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// WhoAmIResponse identifies the caller's API key.
type WhoAmIResponse struct {
	Account string `json:"account"`
	KeyName string `json:"keyName,omitempty"`
	IsOwner bool   `json:"isOwner"`
}

// EventResponse is a journaled ledger operation.
type EventResponse struct {
	Seq         int64  `json:"seq"`
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	USDValue    string `json:"usdValue,omitempty"`
	FunderCount int    `json:"funderCount"`
	CreatedAt   string `json:"createdAt"`
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ToPriceResponse converts a price round.
func ToPriceResponse(p *pricefeed.Price) *PriceResponse {
	if p == nil {
		return nil
	}
	resp := &PriceResponse{
		RoundID:  weiString(p.RoundID),
		Answer:   weiString(p.Answer),
		Decimals: p.Decimals,
	}
	if !p.UpdatedAt.IsZero() {
		resp.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ToInfoResponse converts a domain summary.
func ToInfoResponse(info *domain.Info) InfoResponse {
	return InfoResponse{
		Owner:       info.Owner.Hex(),
		PriceFeed:   info.PriceFeed.Hex(),
		Network:     info.Network,
		ChainID:     info.ChainID,
		Development: info.Development,
		Balance:     weiString(info.Balance),
		BalanceEth:  validation.FormatEther(info.Balance),
		FunderCount: info.FunderCount,
		MinimumUSD:  weiString(info.MinimumUSD),
		Price:       ToPriceResponse(info.Price),
	}
}

// ToFundResponse converts a fund result.
func ToFundResponse(r *domain.FundResult) FundResponse {
	return FundResponse{
		Sender:       r.Sender.Hex(),
		Amount:       weiString(r.Amount),
		USDValue:     weiString(r.USDValue),
		Contribution: weiString(r.Contribution),
		FunderCount:  r.FunderCount,
	}
}

// ToWithdrawResponse converts a withdraw result.
func ToWithdrawResponse(r *domain.WithdrawResult) WithdrawResponse {
	return WithdrawResponse{
		Recipient:      r.Recipient.Hex(),
		Amount:         weiString(r.Amount),
		FundersCleared: r.FundersCleared,
	}
}

// ToEventResponse converts a journal event.
func ToEventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		Seq:         e.Seq,
		ID:          e.ID,
		Kind:        e.Kind,
		Account:     e.Account.Hex(),
		Amount:      weiString(e.Amount),
		FunderCount: e.FunderCount,
	}
	if e.USDValue != nil && e.USDValue.Sign() > 0 {
		resp.USDValue = e.USDValue.String()
	}
	if !e.CreatedAt.IsZero() {
		resp.CreatedAt = e.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
