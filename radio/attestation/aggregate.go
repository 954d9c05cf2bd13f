package attestation

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
)

// StakeResolver resolves a message signer to the operator it acts for and
// that operator's live stake.
type StakeResolver interface {
	IndexerOf(ctx context.Context, signer common.Address) (common.Address, error)
	StakeOf(ctx context.Context, indexer common.Address) (uint64, error)
}

// ErrOracleUnavailable is returned when signer stakes cannot be resolved;
// the comparison for the affected pair becomes BuildFailed and is retried on
// a later tick.
var ErrOracleUnavailable = errors.New("could not resolve sender stakes")

// ProcessMessages folds a bag of validated messages for one
// (deployment, block) pair into stake-weighted remote attestations, one per
// distinct npoi, sorted by descending stake weight. A signer reporting the
// same npoi twice counts once; a signer with zero live stake still counts as
// a sender but adds no weight.
func ProcessMessages(ctx context.Context, msgs []*messages.RemoteMessage, resolver StakeResolver) ([]Attestation, error) {
	type group struct {
		weight  uint64
		senders []common.Address
		seen    map[common.Address]bool
	}
	groups := make(map[string]*group)

	for _, msg := range msgs {
		npoi := msg.Envelope.Payload.NPOI
		g, ok := groups[npoi]
		if !ok {
			g = &group{seen: make(map[common.Address]bool)}
			groups[npoi] = g
		}
		indexer, err := resolver.IndexerOf(ctx, msg.Signer)
		if err != nil {
			return nil, errors.Wrapf(ErrOracleUnavailable, "indexer lookup for %s: %v", msg.Signer.Hex(), err)
		}
		if g.seen[indexer] {
			continue
		}
		g.seen[indexer] = true
		stake, err := resolver.StakeOf(ctx, indexer)
		if err != nil {
			return nil, errors.Wrapf(ErrOracleUnavailable, "stake lookup for %s: %v", indexer.Hex(), err)
		}
		g.senders = append(g.senders, indexer)
		g.weight += stake
	}

	remote := make([]Attestation, 0, len(groups))
	for npoi, g := range groups {
		remote = append(remote, Attestation{
			NPOI:        npoi,
			StakeWeight: g.weight,
			Senders:     g.senders,
		})
	}
	SortByWeight(remote)
	return remote, nil
}

// SortByWeight orders attestations by descending stake weight, breaking ties
// by ascending npoi so the order is deterministic.
func SortByWeight(atts []Attestation) {
	sort.Slice(atts, func(i, j int) bool {
		if atts[i].StakeWeight != atts[j].StakeWeight {
			return atts[i].StakeWeight > atts[j].StakeWeight
		}
		return atts[i].NPOI < atts[j].NPOI
	})
}
