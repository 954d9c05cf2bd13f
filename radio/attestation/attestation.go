// Package attestation implements the heart of the radio: the local
// attestation store, the stake-weighted aggregation of remote messages, and
// the comparison that decides whether this operator's POI agrees with the
// network.
package attestation

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "attestation")

// ErrAlreadyAttested is returned when a local attestation for a
// (deployment, block) pair is produced twice. A second production at the same
// pair is a bug in the caller, not a recoverable condition.
var ErrAlreadyAttested = errors.New("already attested for the deployment at this block")

// Attestation asserts a POI for one deployment at one block. A local
// attestation has no senders and carries the local operator's stake. A remote
// attestation aggregates every distinct operator that reported the same npoi,
// with their summed stake.
type Attestation struct {
	NPOI        string           `json:"npoi"`
	StakeWeight uint64           `json:"stake_weight"`
	Senders     []common.Address `json:"senders"`
}

// Entry is a flattened view of one stored local attestation, keyed for the
// query surface.
type Entry struct {
	Deployment  string      `json:"deployment"`
	BlockNumber uint64      `json:"block_number"`
	Attestation Attestation `json:"attestation"`
}

// Store holds this operator's own attestations, deployment by block. Entries
// are only ever added; comparison never mutates or prunes them.
type Store struct {
	lock  sync.Mutex
	local map[string]map[uint64]Attestation
}

// NewStore initializes an empty local attestation store.
func NewStore() *Store {
	return &Store{local: make(map[string]map[uint64]Attestation)}
}

// SaveLocal installs the attestation under (deployment, block). Saving twice
// for the same pair returns ErrAlreadyAttested.
func (s *Store) SaveLocal(att Attestation, deployment string, block uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	blocks, ok := s.local[deployment]
	if !ok {
		blocks = make(map[uint64]Attestation)
		s.local[deployment] = blocks
	}
	if _, exists := blocks[block]; exists {
		return errors.Wrapf(ErrAlreadyAttested, "deployment %s block %d", deployment, block)
	}
	blocks[block] = att
	localAttestationCount.Inc()
	log.WithFields(logrus.Fields{
		"deployment": deployment,
		"block":      block,
		"npoi":       att.NPOI,
	}).Debug("Saved local attestation")
	return nil
}

// GetLocal reads the attestation stored under (deployment, block), if any.
func (s *Store) GetLocal(deployment string, block uint64) (Attestation, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	att, ok := s.local[deployment][block]
	return att, ok
}

// Flatten returns every stored attestation as entries ordered by deployment
// and block, for the query surface.
func (s *Store) Flatten() []Entry {
	s.lock.Lock()
	defer s.lock.Unlock()
	entries := make([]Entry, 0)
	for deployment, blocks := range s.local {
		for block, att := range blocks {
			entries = append(entries, Entry{
				Deployment:  deployment,
				BlockNumber: block,
				Attestation: att,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Deployment != entries[j].Deployment {
			return entries[i].Deployment < entries[j].Deployment
		}
		return entries[i].BlockNumber < entries[j].BlockNumber
	})
	return entries
}

// Snapshot returns a deep copy of the underlying map for persistence.
func (s *Store) Snapshot() map[string]map[uint64]Attestation {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make(map[string]map[uint64]Attestation, len(s.local))
	for deployment, blocks := range s.local {
		cp := make(map[uint64]Attestation, len(blocks))
		for block, att := range blocks {
			cp[block] = att
		}
		out[deployment] = cp
	}
	return out
}

// Restore replaces the store contents from a persisted snapshot.
func (s *Store) Restore(local map[string]map[uint64]Attestation) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.local = make(map[string]map[uint64]Attestation, len(local))
	count := 0
	for deployment, blocks := range local {
		cp := make(map[uint64]Attestation, len(blocks))
		for block, att := range blocks {
			cp[block] = att
			count++
		}
		s.local[deployment] = cp
	}
	localAttestationCount.Set(float64(count))
}
