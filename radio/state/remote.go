// Package state tracks the radio's shared mutable state: the buffer of
// validated remote messages awaiting comparison and the persisted combination
// of that buffer with the local attestation store.
package state

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "state")

// ErrStaleNonce is returned when a message's nonce is not newer than the
// newest accepted nonce from the same (signer, identifier).
var ErrStaleNonce = errors.New("message nonce is stale for this signer and identifier")

type nonceKey struct {
	signer     common.Address
	identifier string
}

// RemoteMessages is the append-only buffer of validated messages pending
// comparison. One mutex guards it; the ingestion handler appends, the
// scheduler snapshots and prunes, the query surface reads.
type RemoteMessages struct {
	lock        sync.Mutex
	msgs        []*messages.RemoteMessage
	newestNonce map[nonceKey]uint64
}

// NewRemoteMessages initializes an empty buffer.
func NewRemoteMessages() *RemoteMessages {
	return &RemoteMessages{newestNonce: make(map[nonceKey]uint64)}
}

// Add appends a validated message. Messages whose nonce does not supersede
// the newest accepted from the same (signer, identifier) are rejected with
// ErrStaleNonce. When the same signer re-attests for a pair already buffered,
// the nonce-superseded record is dropped so at most one message per
// (identifier, block, signer) remains.
func (r *RemoteMessages) Add(msg *messages.RemoteMessage) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := nonceKey{signer: msg.Signer, identifier: msg.Envelope.Identifier}
	if newest, ok := r.newestNonce[key]; ok && msg.Envelope.Nonce <= newest {
		return errors.Wrapf(ErrStaleNonce, "nonce %d <= %d", msg.Envelope.Nonce, newest)
	}
	r.newestNonce[key] = msg.Envelope.Nonce

	for i, existing := range r.msgs {
		if existing.Signer == msg.Signer &&
			existing.Envelope.Identifier == msg.Envelope.Identifier &&
			existing.Envelope.BlockNumber == msg.Envelope.BlockNumber {
			r.msgs[i] = msg
			return nil
		}
	}
	r.msgs = append(r.msgs, msg)
	bufferedMessageCount.Set(float64(len(r.msgs)))
	return nil
}

// NewestNonce reports the newest accepted nonce from (signer, identifier).
func (r *RemoteMessages) NewestNonce(signer common.Address, identifier string) (uint64, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	nonce, ok := r.newestNonce[nonceKey{signer: signer, identifier: identifier}]
	return nonce, ok
}

// All returns a copy of every buffered message in arrival order.
func (r *RemoteMessages) All() []*messages.RemoteMessage {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]*messages.RemoteMessage, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Subset returns the buffered messages matching (identifier, block). The
// scheduler aggregates against this point-in-time copy with no lock held.
func (r *RemoteMessages) Subset(identifier string, block uint64) []*messages.RemoteMessage {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []*messages.RemoteMessage
	for _, msg := range r.msgs {
		if msg.Envelope.Identifier == identifier && msg.Envelope.BlockNumber == block {
			out = append(out, msg)
		}
	}
	return out
}

// ForDeployment returns the buffered messages for one identifier.
func (r *RemoteMessages) ForDeployment(identifier string) []*messages.RemoteMessage {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []*messages.RemoteMessage
	for _, msg := range r.msgs {
		if msg.Envelope.Identifier == identifier {
			out = append(out, msg)
		}
	}
	return out
}

// Prune drops every message matching (identifier, block) and reports how many
// were removed. Pruning a pair twice is a no-op.
func (r *RemoteMessages) Prune(identifier string, block uint64) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	kept := r.msgs[:0]
	removed := 0
	for _, msg := range r.msgs {
		if msg.Envelope.Identifier == identifier && msg.Envelope.BlockNumber == block {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	r.msgs = kept
	bufferedMessageCount.Set(float64(len(r.msgs)))
	return removed
}

// EarliestFor finds the comparison candidate for a deployment: the earliest
// buffered block number and the earliest arrival time of a message for that
// block. ok is false when nothing is buffered for the deployment.
func (r *RemoteMessages) EarliestFor(identifier string) (block uint64, firstSeen int64, ok bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, msg := range r.msgs {
		if msg.Envelope.Identifier != identifier {
			continue
		}
		if !ok || msg.Envelope.BlockNumber < block {
			block = msg.Envelope.BlockNumber
			firstSeen = msg.ReceivedAt
			ok = true
		} else if msg.Envelope.BlockNumber == block && msg.ReceivedAt < firstSeen {
			firstSeen = msg.ReceivedAt
		}
	}
	return block, firstSeen, ok
}

// Len reports the number of buffered messages.
func (r *RemoteMessages) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.msgs)
}

// Snapshot copies the buffer contents for persistence.
func (r *RemoteMessages) Snapshot() []*messages.RemoteMessage {
	return r.All()
}

// Restore replaces the buffer from a persisted snapshot, rebuilding the
// per-signer nonce watermarks.
func (r *RemoteMessages) Restore(msgs []*messages.RemoteMessage) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.msgs = make([]*messages.RemoteMessage, 0, len(msgs))
	r.newestNonce = make(map[nonceKey]uint64)
	for _, msg := range msgs {
		if msg == nil || msg.Envelope == nil {
			continue
		}
		r.msgs = append(r.msgs, msg)
		key := nonceKey{signer: msg.Signer, identifier: msg.Envelope.Identifier}
		if msg.Envelope.Nonce > r.newestNonce[key] {
			r.newestNonce[key] = msg.Envelope.Nonce
		}
	}
	bufferedMessageCount.Set(float64(len(r.msgs)))
}
