// Package networks holds the table of networks the ledger can be deployed
// against and the price feed each one uses.
package networks

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrNoPriceFeed    = errors.New("no price feed configured for network")
)

// DevelopmentChainID is the chain id local development nodes report.
const DevelopmentChainID = 31337

// Network describes one deployment target.
type Network struct {
	Name               string
	ChainID            int
	PriceFeed          common.Address // zero on development networks
	BlockConfirmations int
	Development        bool
}

// Confirmations returns the configured confirmation count, at least 1.
func (n Network) Confirmations() int {
	if n.BlockConfirmations < 1 {
		return 1
	}
	return n.BlockConfirmations
}

// Table is a set of networks keyed by name.
type Table struct {
	networks map[string]Network
}

// Default returns the built-in network table.
func Default() *Table {
	t := &Table{networks: make(map[string]Network)}
	t.Add(Network{Name: "hardhat", ChainID: DevelopmentChainID, Development: true})
	t.Add(Network{Name: "localhost", ChainID: DevelopmentChainID, Development: true})
	t.Add(Network{
		Name:               "celo_alfajores",
		ChainID:            44787,
		PriceFeed:          common.HexToAddress("0x7b298DA61482cC1b0596eFdb1dAf02C246352cD8"),
		BlockConfirmations: 6,
	})
	t.Add(Network{
		Name:      "polygon_amoy",
		ChainID:   80002,
		PriceFeed: common.HexToAddress("0xF0d50568e3A7e8259E16663972b11910F89BD8e7"),
	})
	return t
}

// Add inserts or replaces a network.
func (t *Table) Add(n Network) {
	t.networks[n.Name] = n
}

// ByName looks up a network by name.
func (t *Table) ByName(name string) (Network, error) {
	n, ok := t.networks[name]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return n, nil
}

// ByChainID looks up a live network by chain id. Development networks share
// a chain id, so they are only matched when no live network claims it.
func (t *Table) ByChainID(chainID int) (Network, error) {
	var dev *Network
	for _, n := range t.networks {
		if n.ChainID != chainID {
			continue
		}
		if !n.Development {
			return n, nil
		}
		if dev == nil || n.Name < dev.Name {
			n := n
			dev = &n
		}
	}
	if dev != nil {
		return *dev, nil
	}
	return Network{}, fmt.Errorf("%w: chain id %d", ErrUnknownNetwork, chainID)
}

// Resolve finds a network by chain id when non-zero, otherwise by name.
func (t *Table) Resolve(name string, chainID int) (Network, error) {
	if chainID != 0 {
		return t.ByChainID(chainID)
	}
	return t.ByName(name)
}

// IsDevelopment reports whether the named network uses a mock price feed.
func (t *Table) IsDevelopment(name string) bool {
	n, ok := t.networks[name]
	return ok && n.Development
}

// List returns all networks sorted by name.
func (t *Table) List() []Network {
	out := make([]Network, 0, len(t.networks))
	for _, n := range t.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolvePriceFeed returns the live price feed for a network.
// Development networks have none; callers deploy a mock instead.
func ResolvePriceFeed(n Network) (common.Address, error) {
	if n.Development {
		return common.Address{}, fmt.Errorf("%w: %s is a development network", ErrNoPriceFeed, n.Name)
	}
	if n.PriceFeed == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNoPriceFeed, n.Name)
	}
	return n.PriceFeed, nil
}

// fileNetwork is the YAML shape of one network entry.
type fileNetwork struct {
	ChainID            int    `yaml:"chain_id"`
	PriceFeed          string `yaml:"eth_usd_price_feed,omitempty"`
	BlockConfirmations int    `yaml:"block_confirmations,omitempty"`
	Development        bool   `yaml:"development,omitempty"`
}

type fileTable struct {
	Networks map[string]fileNetwork `yaml:"networks"`
}

// LoadFile merges networks from a YAML file into the table:
//
//	networks:
//	  sepolia:
//	    chain_id: 11155111
//	    eth_usd_price_feed: "0x694AA1769357215DE4FAC081bf1f309aDC325306"
//	    block_confirmations: 3
func (t *Table) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading networks file: %w", err)
	}
	return t.merge(data)
}

func (t *Table) merge(data []byte) error {
	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return fmt.Errorf("parsing networks file: %w", err)
	}

	for name, fn := range ft.Networks {
		if fn.ChainID <= 0 {
			return fmt.Errorf("network %s: chain_id must be positive", name)
		}
		n := Network{
			Name:               name,
			ChainID:            fn.ChainID,
			BlockConfirmations: fn.BlockConfirmations,
			Development:        fn.Development,
		}
		if fn.PriceFeed != "" {
			if !common.IsHexAddress(fn.PriceFeed) {
				return fmt.Errorf("network %s: invalid price feed address %q", name, fn.PriceFeed)
			}
			n.PriceFeed = common.HexToAddress(fn.PriceFeed)
		}
		t.Add(n)
	}
	return nil
}
