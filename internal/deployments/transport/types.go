// Package transport provides HTTP handlers and types for deployment history.
package transport

import (
	"time"

	"github.com/pendergraft/fundme/internal/deployments/domain"
)

// DeploymentResponse is one recorded ledger deployment.
type DeploymentResponse struct {
	ID                 string `json:"id"`
	Network            string `json:"network"`
	ChainID            int    `json:"chainId"`
	Owner              string `json:"owner"`
	PriceFeed          string `json:"priceFeed"`
	MockPriceFeed      bool   `json:"mockPriceFeed"`
	MinimumUSD         int64  `json:"minimumUsd"`
	BlockConfirmations int    `json:"blockConfirmations"`
	CreatedAt          string `json:"createdAt,omitempty"`
}

// DeploymentListResponse is the response for listing deployments.
type DeploymentListResponse struct {
	Data  []DeploymentResponse `json:"data"`
	Limit int                  `json:"limit"`
}

// ToDeploymentResponse converts a domain deployment.
func ToDeploymentResponse(d domain.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		ID:                 d.ID,
		Network:            d.Network,
		ChainID:            d.ChainID,
		Owner:              d.Owner.Hex(),
		PriceFeed:          d.PriceFeed.Hex(),
		MockPriceFeed:      d.MockPriceFeed,
		MinimumUSD:         d.MinimumUSD,
		BlockConfirmations: d.BlockConfirmations,
	}
	if !d.CreatedAt.IsZero() {
		resp.CreatedAt = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
