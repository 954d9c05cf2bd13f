package oracle

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Resolver combines the registry and network subgraph clients into the
// signer -> operator -> stake lookup the aggregator needs.
type Resolver struct {
	Registry *RegistryClient
	Network  *NetworkClient
}

// IndexerOf resolves a signer to its operator via the registry subgraph.
func (r *Resolver) IndexerOf(ctx context.Context, signer common.Address) (common.Address, error) {
	return r.Registry.IndexerOf(ctx, signer)
}

// StakeOf resolves an operator's live stake via the network subgraph.
func (r *Resolver) StakeOf(ctx context.Context, indexer common.Address) (uint64, error) {
	return r.Network.StakeOf(ctx, indexer)
}
