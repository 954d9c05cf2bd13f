package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrUnknownSigner is returned when a signer address has no registered
// indexer in the Graphcast registry.
var ErrUnknownSigner = errors.New("signer is not registered to an indexer")

// RegistryClient resolves Graphcast signer addresses to the indexer they
// operate for, via the registry subgraph.
type RegistryClient struct {
	client *Client
}

// NewRegistryClient dials the registry subgraph endpoint.
func NewRegistryClient(endpoint string, timeout time.Duration) *RegistryClient {
	return &RegistryClient{client: NewClient(endpoint, timeout)}
}

const registryQuery = `
query gossipOperatorOf($address: String!) {
  graphcastIds(where: { id: $address }) {
    indexer
  }
}`

// IndexerOf resolves the ephemeral signer to its on-chain indexer address.
func (r *RegistryClient) IndexerOf(ctx context.Context, signer common.Address) (common.Address, error) {
	var resp struct {
		GraphcastIds []struct {
			Indexer string `json:"indexer"`
		} `json:"graphcastIds"`
	}
	vars := map[string]interface{}{"address": strings.ToLower(signer.Hex())}
	if err := r.client.query(ctx, registryQuery, vars, &resp); err != nil {
		return common.Address{}, errors.Wrap(err, "could not query registry subgraph")
	}
	if len(resp.GraphcastIds) == 0 || !common.IsHexAddress(resp.GraphcastIds[0].Indexer) {
		return common.Address{}, errors.Wrapf(ErrUnknownSigner, "%s", signer.Hex())
	}
	return common.HexToAddress(resp.GraphcastIds[0].Indexer), nil
}
