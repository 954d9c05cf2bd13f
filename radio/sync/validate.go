package sync

import (
	"context"

	"github.com/pkg/errors"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
	"github.com/graphops/poi-crosschecker-radio/radio/networks"
	"go.opencensus.io/trace"
)

// validateEnvelope runs the full ingestion pipeline on one decoded frame:
// shape, signature, anti-replay, network support, registry membership and
// chain consistency.
// It returns the validated record ready for the buffer, or a RejectionError.
func (s *Service) validateEnvelope(ctx context.Context, identifier string, data []byte, receivedAt int64) (*messages.RemoteMessage, error) {
	ctx, span := trace.StartSpan(ctx, "sync.validateEnvelope")
	defer span.End()

	env, err := messages.Decode(data)
	if err != nil {
		return nil, reject(RejectInvalid, err)
	}
	if env.Identifier != identifier {
		return nil, reject(RejectInvalid, errors.Errorf("message for %s arrived on topic for %s", env.Identifier, identifier))
	}
	if err := env.CheckPayload(); err != nil {
		return nil, reject(RejectInvalid, err)
	}

	signer, err := env.RecoverSigner()
	if err != nil {
		return nil, reject(RejectUnauthenticated, err)
	}

	// Anti-replay before any oracle round trips. The buffer re-checks under
	// its own lock on insert, so a racing duplicate still cannot land.
	if newest, ok := s.cfg.Buffer.NewestNonce(signer, env.Identifier); ok && env.Nonce <= newest {
		return nil, reject(RejectStale, errors.Errorf("nonce %d <= %d", env.Nonce, newest))
	}

	network := networks.FromString(env.Network)
	if network == networks.UnsupportedNetwork {
		return nil, reject(RejectInconsistent, errors.Errorf("unsupported network %s", env.Network))
	}

	indexer, err := s.cfg.Registry.IndexerOf(ctx, signer)
	if err != nil {
		return nil, reject(RejectUnregistered, err)
	}
	stake, err := s.cfg.Network.StakeOf(ctx, indexer)
	if err != nil {
		return nil, reject(RejectUnregistered, err)
	}
	if stake == 0 {
		return nil, reject(RejectUnregistered, errors.Errorf("indexer %s has no stake", indexer.Hex()))
	}

	canonical, err := s.cfg.GraphNode.BlockHash(ctx, env.Network, env.BlockNumber)
	if err != nil {
		return nil, reject(RejectInconsistent, err)
	}
	if canonical != env.BlockHash {
		return nil, reject(RejectInconsistent, errors.Errorf(
			"block hash mismatch at %s #%d: got %s, canonical %s",
			env.Network, env.BlockNumber, env.BlockHash, canonical,
		))
	}

	return &messages.RemoteMessage{
		Envelope:   env,
		Signer:     signer,
		ReceivedAt: receivedAt,
	}, nil
}
