package oracle

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"
)

// NetworkClient queries the network subgraph for indexer stakes and active
// allocations.
type NetworkClient struct {
	client *Client
}

// NewNetworkClient dials the network subgraph endpoint.
func NewNetworkClient(endpoint string, timeout time.Duration) *NetworkClient {
	return &NetworkClient{client: NewClient(endpoint, timeout)}
}

const stakeQuery = `
query indexerStake($address: String!) {
  indexer(id: $address) {
    stakedTokens
  }
}`

// StakeOf returns the indexer's staked tokens, in whole tokens. Indexers
// absent from the network subgraph have zero stake.
func (n *NetworkClient) StakeOf(ctx context.Context, indexer common.Address) (uint64, error) {
	var resp struct {
		Indexer *struct {
			StakedTokens string `json:"stakedTokens"`
		} `json:"indexer"`
	}
	vars := map[string]interface{}{"address": strings.ToLower(indexer.Hex())}
	if err := n.client.query(ctx, stakeQuery, vars, &resp); err != nil {
		return 0, errors.Wrap(err, "could not query network subgraph")
	}
	if resp.Indexer == nil {
		return 0, nil
	}
	return tokensFromWei(resp.Indexer.StakedTokens)
}

const allocationsQuery = `
query indexerAllocations($address: String!) {
  indexer(id: $address) {
    allocations(where: { status: Active }) {
      subgraphDeployment {
        ipfsHash
      }
    }
  }
}`

// ActiveAllocations lists the deployments the indexer currently allocates on,
// used by the on-chain coverage policy to pick gossip topics.
func (n *NetworkClient) ActiveAllocations(ctx context.Context, indexer common.Address) ([]string, error) {
	var resp struct {
		Indexer *struct {
			Allocations []struct {
				SubgraphDeployment struct {
					IpfsHash string `json:"ipfsHash"`
				} `json:"subgraphDeployment"`
			} `json:"allocations"`
		} `json:"indexer"`
	}
	vars := map[string]interface{}{"address": strings.ToLower(indexer.Hex())}
	if err := n.client.query(ctx, allocationsQuery, vars, &resp); err != nil {
		return nil, errors.Wrap(err, "could not query allocations")
	}
	if resp.Indexer == nil {
		return nil, nil
	}
	deployments := make([]string, 0, len(resp.Indexer.Allocations))
	for _, alloc := range resp.Indexer.Allocations {
		if alloc.SubgraphDeployment.IpfsHash != "" {
			deployments = append(deployments, alloc.SubgraphDeployment.IpfsHash)
		}
	}
	return deployments, nil
}

// tokensFromWei converts a base-10 wei amount into whole tokens, the unit
// stake weights are summed in.
func tokensFromWei(wei string) (uint64, error) {
	amount, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return 0, errors.Errorf("bad token amount %q", wei)
	}
	tokens := new(big.Int).Div(amount, big.NewInt(params.Ether))
	if !tokens.IsUint64() {
		return 0, errors.Errorf("token amount %q out of range", wei)
	}
	return tokens.Uint64(), nil
}
