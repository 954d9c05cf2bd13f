package oracle

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/graphops/poi-crosschecker-radio/radio/networks"
)

// IndexingStatus describes one deployment the local graph node indexes: the
// network it indexes on and that network's latest block.
type IndexingStatus struct {
	Deployment  string
	Network     networks.NetworkName
	LatestBlock networks.BlockPointer
}

// GraphNodeClient queries the local graph node's index-node status API for
// chain heads, canonical block hashes and proofs of indexing.
type GraphNodeClient struct {
	client *Client
}

// NewGraphNodeClient dials the graph node status endpoint.
func NewGraphNodeClient(endpoint string, timeout time.Duration) *GraphNodeClient {
	return &GraphNodeClient{client: NewClient(endpoint, timeout)}
}

const indexingStatusesQuery = `
query {
  indexingStatuses {
    subgraph
    chains {
      network
      chainHeadBlock { number hash }
      latestBlock { number hash }
    }
  }
}`

type blockFields struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

func (b blockFields) pointer() (networks.BlockPointer, error) {
	number, err := strconv.ParseUint(b.Number, 10, 64)
	if err != nil {
		return networks.BlockPointer{}, errors.Wrapf(err, "bad block number %q", b.Number)
	}
	return networks.BlockPointer{Number: number, Hash: b.Hash}, nil
}

// UpdateChainheadBlocks queries the indexing statuses of every deployment the
// graph node tracks, returning the chain head per network and the per
// deployment status used to pick message blocks.
func (g *GraphNodeClient) UpdateChainheadBlocks(ctx context.Context) (map[networks.NetworkName]networks.BlockPointer, map[string]IndexingStatus, error) {
	var resp struct {
		IndexingStatuses []struct {
			Subgraph string `json:"subgraph"`
			Chains   []struct {
				Network        string      `json:"network"`
				ChainHeadBlock blockFields `json:"chainHeadBlock"`
				LatestBlock    blockFields `json:"latestBlock"`
			} `json:"chains"`
		} `json:"indexingStatuses"`
	}
	if err := g.client.query(ctx, indexingStatusesQuery, nil, &resp); err != nil {
		return nil, nil, errors.Wrap(err, "could not query indexing statuses")
	}

	heads := make(map[networks.NetworkName]networks.BlockPointer)
	statuses := make(map[string]IndexingStatus)
	for _, status := range resp.IndexingStatuses {
		if len(status.Chains) == 0 {
			continue
		}
		chain := status.Chains[0]
		name := networks.FromString(chain.Network)
		head, err := chain.ChainHeadBlock.pointer()
		if err != nil {
			log.WithError(err).WithField("subgraph", status.Subgraph).Debug("Skipping status with bad chain head")
			continue
		}
		latest, err := chain.LatestBlock.pointer()
		if err != nil {
			log.WithError(err).WithField("subgraph", status.Subgraph).Debug("Skipping status with bad latest block")
			continue
		}
		if existing, ok := heads[name]; !ok || head.Number > existing.Number {
			heads[name] = head
		}
		statuses[status.Subgraph] = IndexingStatus{
			Deployment:  status.Subgraph,
			Network:     name,
			LatestBlock: latest,
		}
	}
	return heads, statuses, nil
}

const blockHashQuery = `
query blockHashFromNumber($network: String!, $blockNumber: Int!) {
  blockHashFromNumber(network: $network, blockNumber: $blockNumber)
}`

// BlockHash returns the canonical hash the graph node knows for a block on a
// network.
func (g *GraphNodeClient) BlockHash(ctx context.Context, network string, blockNumber uint64) (string, error) {
	var resp struct {
		BlockHashFromNumber string `json:"blockHashFromNumber"`
	}
	vars := map[string]interface{}{"network": network, "blockNumber": blockNumber}
	if err := g.client.query(ctx, blockHashQuery, vars, &resp); err != nil {
		return "", errors.Wrapf(err, "could not query block hash for %s #%d", network, blockNumber)
	}
	if resp.BlockHashFromNumber == "" {
		return "", errors.Errorf("graph node has no hash for %s #%d", network, blockNumber)
	}
	return resp.BlockHashFromNumber, nil
}

const poiQuery = `
query proofOfIndexing($subgraph: String!, $blockNumber: Int!, $blockHash: String!) {
  proofOfIndexing(subgraph: $subgraph, blockNumber: $blockNumber, blockHash: $blockHash)
}`

// QueryPOI asks the local graph node for the normalized proof of indexing of
// a deployment at (blockHash, blockNumber).
func (g *GraphNodeClient) QueryPOI(ctx context.Context, deployment, blockHash string, blockNumber uint64) (string, error) {
	var resp struct {
		ProofOfIndexing string `json:"proofOfIndexing"`
	}
	vars := map[string]interface{}{
		"subgraph":    deployment,
		"blockNumber": blockNumber,
		"blockHash":   blockHash,
	}
	if err := g.client.query(ctx, poiQuery, vars, &resp); err != nil {
		return "", errors.Wrapf(err, "could not query POI for %s", deployment)
	}
	if resp.ProofOfIndexing == "" {
		return "", errors.Errorf("graph node returned no POI for %s at block %d", deployment, blockNumber)
	}
	return resp.ProofOfIndexing, nil
}
