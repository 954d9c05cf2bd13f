// Package sync validates inbound gossip frames and buffers them for the
// scheduler's comparison windows. It is registered with the gossip agent as
// the topic validator and message handler for every content topic.
package sync

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/pkg/errors"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
	"github.com/graphops/poi-crosschecker-radio/radio/p2p"
	"github.com/graphops/poi-crosschecker-radio/radio/state"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "sync")

const seenCacheSize = 4096

// Registry resolves message signers to operators.
type Registry interface {
	IndexerOf(ctx context.Context, signer common.Address) (common.Address, error)
}

// Network resolves operator stakes.
type Network interface {
	StakeOf(ctx context.Context, indexer common.Address) (uint64, error)
}

// GraphNode recomputes canonical block hashes.
type GraphNode interface {
	BlockHash(ctx context.Context, network string, blockNumber uint64) (string, error)
}

// Agent is the slice of the gossip agent the ingestion service needs.
type Agent interface {
	RegisterHandler(validator pubsub.Validator, handler p2p.MessageHandler)
	PeerID() peer.ID
}

// Config wires the ingestion service to its collaborators.
type Config struct {
	Agent     Agent
	Registry  Registry
	Network   Network
	GraphNode GraphNode
	Buffer    *state.RemoteMessages
}

// Service is the ingestion handler.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	seen   *lru.Cache
}

// NewService creates the ingestion service and registers its pipeline with
// the gossip agent.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	seen, err := lru.New(seenCacheSize)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not create seen cache")
	}
	s := &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		seen:   seen,
	}
	cfg.Agent.RegisterHandler(s.validatePubsubMessage, s.handleMessage)
	return s, nil
}

// validatePubsubMessage is the gossipsub topic validator. Validation runs on
// publish as well as on delivery, so messages from ourselves are approved
// without re-validation.
func (s *Service) validatePubsubMessage(ctx context.Context, pid peer.ID, msg *pubsub.Message) bool {
	if pid == s.cfg.Agent.PeerID() {
		return true
	}
	messageReceivedCounter.Inc()

	digest := common.BytesToHash(crypto.Keccak256(msg.Data))
	if _, ok := s.seen.Get(digest); ok {
		return false
	}
	s.seen.Add(digest, true)

	identifier := identifierFromTopic(msg.GetTopic())
	record, err := s.validateEnvelope(ctx, identifier, msg.Data, time.Now().Unix())
	if err != nil {
		s.countRejection(err)
		return false
	}
	msg.ValidatorData = record // Used in downstream handler
	return true
}

// handleMessage appends the validated record to the remote buffer. The nonce
// watermark is re-checked under the buffer lock, so a racing duplicate from
// the same signer resolves to exactly one accepted message.
func (s *Service) handleMessage(_ context.Context, identifier string, msg *pubsub.Message) {
	if msg.ReceivedFrom == s.cfg.Agent.PeerID() {
		return
	}
	record, ok := msg.ValidatorData.(*messages.RemoteMessage)
	if !ok || record == nil {
		return
	}
	if err := s.cfg.Buffer.Add(record); err != nil {
		s.countRejection(reject(RejectStale, err))
		return
	}
	messageValidatedCounter.Inc()
	log.WithFields(logrus.Fields{
		"deployment": identifier,
		"block":      record.Envelope.BlockNumber,
		"signer":     record.Signer.Hex(),
		"npoi":       record.Envelope.Payload.NPOI,
	}).Debug("Buffered remote message")
}

func (s *Service) countRejection(err error) {
	var rerr *RejectionError
	if errors.As(err, &rerr) {
		messageRejectedCounter.WithLabelValues(string(rerr.Kind)).Inc()
		log.WithError(rerr.Cause).WithField("kind", rerr.Kind).Debug("Dropped gossip message")
		return
	}
	messageRejectedCounter.WithLabelValues(string(RejectInvalid)).Inc()
	log.WithError(err).Debug("Dropped gossip message")
}

// identifierFromTopic strips the radio prefix from a content topic, leaving
// the deployment hash.
func identifierFromTopic(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}

// Start is a no-op; the pipeline runs on transport callbacks.
func (s *Service) Start() {
	log.Info("Ingestion pipeline registered")
}

// Stop halts validation contexts.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy; rejections are counted, not raised.
func (s *Service) Status() error {
	return nil
}
