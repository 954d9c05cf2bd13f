// Package networks holds the table of indexing networks the radio understands
// and the block grid used to line up messages across operators.
package networks

import (
	"github.com/pkg/errors"
)

// NetworkName is the graph-node name of an indexing network.
type NetworkName string

// Networks the radio can cross check on. Unknown networks fall back to
// UnsupportedNetwork and are skipped by the scheduler.
const (
	Mainnet            NetworkName = "mainnet"
	Goerli             NetworkName = "goerli"
	Gnosis             NetworkName = "gnosis"
	Polygon            NetworkName = "matic"
	Arbitrum           NetworkName = "arbitrum-one"
	ArbitrumGoerli     NetworkName = "arbitrum-goerli"
	Avalanche          NetworkName = "avalanche"
	Optimism           NetworkName = "optimism"
	Celo               NetworkName = "celo"
	Fantom             NetworkName = "fantom"
	Hardhat            NetworkName = "hardhat"
	UnsupportedNetwork NetworkName = "unsupported"
)

// BlockPointer is the most recent known block number and hash for a network.
type BlockPointer struct {
	Number uint64 `json:"number"`
	Hash   string `json:"hash"`
}

// Network couples a network name with the interval of its message block grid.
// Peers quantize their chain head onto the grid so that they attempt to sign
// the same (deployment, block) pair; the interval loosely tracks each chain's
// block production rate.
type Network struct {
	Name     NetworkName
	Interval uint64
}

var supportedNetworks = map[NetworkName]Network{
	Mainnet:        {Name: Mainnet, Interval: 10},
	Goerli:         {Name: Goerli, Interval: 10},
	Gnosis:         {Name: Gnosis, Interval: 15},
	Polygon:        {Name: Polygon, Interval: 50},
	Arbitrum:       {Name: Arbitrum, Interval: 100},
	ArbitrumGoerli: {Name: ArbitrumGoerli, Interval: 100},
	Avalanche:      {Name: Avalanche, Interval: 30},
	Optimism:       {Name: Optimism, Interval: 50},
	Celo:           {Name: Celo, Interval: 15},
	Fantom:         {Name: Fantom, Interval: 50},
	Hardhat:        {Name: Hardhat, Interval: 10},
}

// ErrUnsupportedNetwork is returned when no grid is known for a network.
var ErrUnsupportedNetwork = errors.New("network is not supported")

// FromString parses a graph-node network name, mapping unknown names to
// UnsupportedNetwork rather than failing.
func FromString(s string) NetworkName {
	if _, ok := supportedNetworks[NetworkName(s)]; ok {
		return NetworkName(s)
	}
	return UnsupportedNetwork
}

// Interval returns the message block grid interval for the named network.
func Interval(name NetworkName) (uint64, error) {
	n, ok := supportedNetworks[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedNetwork, "%s", name)
	}
	return n.Interval, nil
}

// DetermineMessageBlock quantizes the network's latest block onto its message
// grid. The result is deterministic for a given chain head, so independent
// operators converge on the same (deployment, block) pair to attest to.
func DetermineMessageBlock(heads map[NetworkName]BlockPointer, name NetworkName) (uint64, error) {
	head, ok := heads[name]
	if !ok {
		return 0, errors.Errorf("no chain head known for network %s", name)
	}
	interval, err := Interval(name)
	if err != nil {
		return 0, err
	}
	return head.Number - head.Number%interval, nil
}
