package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/fundme/internal/networks"
	"github.com/pendergraft/fundme/internal/storage"
)

// Common errors returned by the deployment service.
var (
	ErrNotFound       = errors.New("deployment not found")
	ErrUnknownNetwork = errors.New("unknown network")
)

// Service defines the deployment service interface.
type Service interface {
	// Latest returns the most recent deployment on a network.
	Latest(ctx context.Context, network string) (*Deployment, error)

	// List returns deployments newest first.
	List(ctx context.Context, filter ListFilter) ([]Deployment, error)
}

// Store is the storage the deployment service reads from.
type Store interface {
	GetLatestDeployment(ctx context.Context, network string) (*storage.Deployment, error)
	ListDeployments(ctx context.Context, network string, limit int) ([]storage.Deployment, error)
}

// service implements the Service interface.
type service struct {
	store    Store
	networks *networks.Table
}

// NewService creates a new deployment service. Network names are checked
// against table.
func NewService(store Store, table *networks.Table) Service {
	return &service{store: store, networks: table}
}

// Latest returns the most recent deployment on a network.
func (s *service) Latest(ctx context.Context, network string) (*Deployment, error) {
	if err := s.checkNetwork(network); err != nil {
		return nil, err
	}

	d, err := s.store.GetLatestDeployment(ctx, network)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w on %s", ErrNotFound, network)
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	return toDeployment(d), nil
}

// List returns deployments newest first.
func (s *service) List(ctx context.Context, filter ListFilter) ([]Deployment, error) {
	if filter.Network != "" {
		if err := s.checkNetwork(filter.Network); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}

	rows, err := s.store.ListDeployments(ctx, filter.Network, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	deployments := make([]Deployment, len(rows))
	for i := range rows {
		deployments[i] = *toDeployment(&rows[i])
	}
	return deployments, nil
}

func (s *service) checkNetwork(name string) error {
	if s.networks == nil {
		return nil
	}
	if _, err := s.networks.ByName(name); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return nil
}

func toDeployment(d *storage.Deployment) *Deployment {
	var createdAt time.Time
	if d.CreatedAt != "" {
		createdAt, _ = time.Parse("2006-01-02 15:04:05", d.CreatedAt)
	}
	return &Deployment{
		ID:                 d.ID,
		Network:            d.Network,
		ChainID:            d.ChainID,
		Owner:              common.HexToAddress(d.Owner),
		PriceFeed:          common.HexToAddress(d.PriceFeed),
		MockPriceFeed:      d.MockPriceFeed,
		MinimumUSD:         d.MinimumUSD,
		BlockConfirmations: d.BlockConfirmations,
		CreatedAt:          createdAt,
	}
}
