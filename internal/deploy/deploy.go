// Package deploy creates a ledger for a network: it picks the price source
// the network calls for, builds the ledger, and records the deployment.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/fundme/internal/ledger/domain"
	"github.com/pendergraft/fundme/internal/networks"
	"github.com/pendergraft/fundme/internal/pricefeed"
	"github.com/pendergraft/fundme/internal/storage"
)

var (
	ErrMissingRPCURL   = errors.New("RPC_URL is required for live networks")
	ErrChainIDMismatch = errors.New("RPC endpoint reports a different chain id")
)

// RPCClient is the node connection live networks read prices through.
// *ethclient.Client satisfies it.
type RPCClient interface {
	pricefeed.Caller
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// DialFunc connects to a node.
type DialFunc func(ctx context.Context, url string) (RPCClient, error)

// DialEthereum dials a JSON-RPC endpoint with go-ethereum's client.
func DialEthereum(ctx context.Context, url string) (RPCClient, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// DeploymentStore records deployments.
type DeploymentStore interface {
	RecordDeployment(ctx context.Context, d *storage.Deployment) error
}

// Params are the deployment inputs.
type Params struct {
	Network      string
	ChainID      int // overrides Network when non-zero
	Owner        common.Address
	MinimumUSD   int64
	RPCURL       string
	PriceMaxAge  time.Duration
	MockDecimals uint8
	MockAnswer   *big.Int
}

// Deployment is a ready-to-serve ledger.
type Deployment struct {
	Ledger  *domain.Ledger
	Network networks.Network
	Mock    *pricefeed.MockAggregator // nil on live networks
	Record  *storage.Deployment

	client RPCClient
}

// Close releases the node connection, if any.
func (d *Deployment) Close() {
	if d.client != nil {
		d.client.Close()
	}
}

// Deployer builds ledgers.
type Deployer struct {
	networks   *networks.Table
	store      DeploymentStore
	transferer domain.Transferer
	logger     *slog.Logger
	dial       DialFunc
}

// NewDeployer creates a deployer. dial may be nil to use DialEthereum.
func NewDeployer(table *networks.Table, store DeploymentStore, transferer domain.Transferer, logger *slog.Logger, dial DialFunc) *Deployer {
	if dial == nil {
		dial = DialEthereum
	}
	return &Deployer{
		networks:   table,
		store:      store,
		transferer: transferer,
		logger:     logger,
		dial:       dial,
	}
}

// Deploy resolves the network, builds its price source and ledger, and
// records the deployment.
func (d *Deployer) Deploy(ctx context.Context, p Params) (*Deployment, error) {
	network, err := d.networks.Resolve(p.Network, p.ChainID)
	if err != nil {
		return nil, err
	}

	dep := &Deployment{Network: network}
	var source pricefeed.Source
	if network.Development {
		if p.MockAnswer == nil {
			p.MockAnswer = big.NewInt(pricefeed.DefaultMockAnswer)
		}
		d.logger.Info("local network detected, deploying mock price feed",
			"network", network.Name,
			"decimals", p.MockDecimals,
			"answer", p.MockAnswer,
		)
		// Where the mock would land if the owner deployed it as its first contract.
		mockAddr := crypto.CreateAddress(p.Owner, 0)
		dep.Mock = pricefeed.NewMockAggregator(mockAddr, p.MockDecimals, p.MockAnswer)
		// The mock only moves when the owner sets it, so its age is not checked.
		source = pricefeed.WithMaxAge(dep.Mock, 0)
	} else {
		feedAddr, err := networks.ResolvePriceFeed(network)
		if err != nil {
			return nil, err
		}
		if p.RPCURL == "" {
			return nil, ErrMissingRPCURL
		}
		client, err := d.dial(ctx, p.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", network.Name, err)
		}
		if err := checkChainID(ctx, client, network); err != nil {
			client.Close()
			return nil, err
		}
		dep.client = client
		source = pricefeed.WithMaxAge(pricefeed.NewChainlink(client, feedAddr, network.Confirmations()), p.PriceMaxAge)
	}

	source = pricefeed.NewInstrumented(source)

	d.logger.Info("deploying ledger",
		"network", network.Name,
		"chain_id", network.ChainID,
		"owner", p.Owner.Hex(),
		"price_feed", source.Address().Hex(),
		"minimum_usd", p.MinimumUSD,
		"block_confirmations", network.Confirmations(),
	)
	dep.Ledger = domain.New(p.Owner, source, d.transferer, domain.WithMinimumUSD(p.MinimumUSD))

	dep.Record = &storage.Deployment{
		Network:            network.Name,
		ChainID:            network.ChainID,
		Owner:              p.Owner.Hex(),
		PriceFeed:          source.Address().Hex(),
		MockPriceFeed:      network.Development,
		MinimumUSD:         p.MinimumUSD,
		BlockConfirmations: network.Confirmations(),
	}
	if err := d.store.RecordDeployment(ctx, dep.Record); err != nil {
		dep.Close()
		return nil, fmt.Errorf("recording deployment: %w", err)
	}

	d.logger.Info("ledger deployed", "deployment_id", dep.Record.ID, "network", network.Name)
	d.logger.Info("----------------------------------------------------")
	return dep, nil
}

func checkChainID(ctx context.Context, client RPCClient, network networks.Network) error {
	id, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("reading chain id: %w", err)
	}
	if id.Int64() != int64(network.ChainID) {
		return fmt.Errorf("%w: %s expects %d, endpoint reports %s", ErrChainIDMismatch, network.Name, network.ChainID, id)
	}
	return nil
}
