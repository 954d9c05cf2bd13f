// Package p2p runs the radio's gossip agent: a libp2p host with gossipsub on
// one content topic per tracked deployment. The ingestion pipeline is
// registered by the sync service as a topic validator plus handler; the
// scheduler broadcasts through the agent. The agent holds no engine state.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	lcrypto "github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/peer"
	noise "github.com/libp2p/go-libp2p-noise"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	tcp "github.com/libp2p/go-tcp-transport"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "p2p")

// MessageHandler consumes one accepted pubsub message for a content topic.
type MessageHandler func(ctx context.Context, identifier string, msg *pubsub.Message)

// Config holds the gossip agent parameters.
type Config struct {
	RadioName   string
	TCPPort     int
	StaticPeers []string
	PrivKeyHex  string
}

type topicState struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

// Service manages the libp2p host, the gossipsub router and the set of
// subscribed content topics.
type Service struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *Config
	host      host.Host
	pubsub    *pubsub.PubSub
	validator pubsub.Validator
	handler   MessageHandler

	lock       sync.Mutex
	topics     map[string]*topicState
	startupErr error
}

// NewService builds the libp2p host and gossipsub router. No topics are
// joined until UpdateContentTopics is called.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	priv, err := privKey(cfg.PrivKeyHex)
	if err != nil {
		cancel()
		return nil, err
	}
	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.TCPPort)),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Transport(tcp.NewTCPTransport),
	}
	h, err := libp2p.New(ctx, opts...)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not create libp2p host")
	}
	gs, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageSigning(false),
		pubsub.WithStrictSignatureVerification(false),
	)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not start gossipsub")
	}
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		host:   h,
		pubsub: gs,
		topics: make(map[string]*topicState),
	}, nil
}

// RegisterHandler installs the ingestion pipeline: a per-topic validator and
// a handler for accepted messages. Must be called before topics are joined.
func (s *Service) RegisterHandler(validator pubsub.Validator, handler MessageHandler) {
	s.validator = validator
	s.handler = handler
}

// Start dials the configured static peers.
func (s *Service) Start() {
	log.WithField("peerID", s.host.ID().Pretty()).Info("Gossip agent started")
	for _, addr := range s.cfg.StaticPeers {
		if err := s.connectToPeer(addr); err != nil {
			log.WithError(err).WithField("peer", addr).Error("Could not connect to static peer")
		}
	}
}

func (s *Service) connectToPeer(addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return errors.Wrap(err, "invalid multiaddr")
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return errors.Wrap(err, "could not extract peer info")
	}
	return s.host.Connect(s.ctx, *info)
}

// ContentTopic renders the gossip topic string for one deployment.
func (s *Service) ContentTopic(identifier string) string {
	return fmt.Sprintf("/graphcast/0/%s/%s", s.cfg.RadioName, identifier)
}

// PeerID returns the agent's own libp2p identity.
func (s *Service) PeerID() peer.ID {
	return s.host.ID()
}

// PeerCount reports the number of connected gossip peers.
func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

// ContentIdentifiers lists the deployments currently subscribed to.
func (s *Service) ContentIdentifiers() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	ids := make([]string, 0, len(s.topics))
	for id := range s.topics {
		ids = append(ids, id)
	}
	return ids
}

// UpdateContentTopics reconciles subscriptions against the wanted set of
// deployments, joining new topics and leaving dropped ones.
func (s *Service) UpdateContentTopics(identifiers []string) {
	wanted := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		wanted[id] = true
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	for id, state := range s.topics {
		if wanted[id] {
			continue
		}
		state.sub.Cancel()
		if err := s.pubsub.UnregisterTopicValidator(s.ContentTopic(id)); err != nil {
			log.WithError(err).WithField("deployment", id).Debug("Could not unregister topic validator")
		}
		if err := state.topic.Close(); err != nil {
			log.WithError(err).WithField("deployment", id).Debug("Could not close topic")
		}
		delete(s.topics, id)
		log.WithField("deployment", id).Info("Left content topic")
	}
	for id := range wanted {
		if _, ok := s.topics[id]; ok {
			continue
		}
		if err := s.joinTopic(id); err != nil {
			log.WithError(err).WithField("deployment", id).Error("Could not join content topic")
		}
	}
	topicCount.Set(float64(len(s.topics)))
}

func (s *Service) joinTopic(identifier string) error {
	name := s.ContentTopic(identifier)
	if s.validator != nil {
		if err := s.pubsub.RegisterTopicValidator(name, s.validator); err != nil {
			return errors.Wrap(err, "could not register topic validator")
		}
	}
	topic, err := s.pubsub.Join(name)
	if err != nil {
		return errors.Wrap(err, "could not join topic")
	}
	sub, err := topic.Subscribe()
	if err != nil {
		if cerr := topic.Close(); cerr != nil {
			log.WithError(cerr).Debug("Could not close topic after failed subscribe")
		}
		return errors.Wrap(err, "could not subscribe to topic")
	}
	s.topics[identifier] = &topicState{topic: topic, sub: sub}
	go s.readLoop(identifier, sub)
	log.WithField("deployment", identifier).Info("Joined content topic")
	return nil
}

// readLoop drains one subscription, handing accepted messages to the
// registered handler. Validation already ran in the pubsub router.
func (s *Service) readLoop(identifier string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				log.WithError(err).WithField("deployment", identifier).Debug("Subscription closed")
			}
			return
		}
		if s.handler != nil {
			s.handler(s.ctx, identifier, msg)
		}
	}
}

// Broadcast publishes an encoded envelope on the deployment's content topic.
func (s *Service) Broadcast(ctx context.Context, identifier string, data []byte) error {
	s.lock.Lock()
	state, ok := s.topics[identifier]
	s.lock.Unlock()
	if !ok {
		return errors.Errorf("not subscribed to deployment %s", identifier)
	}
	if err := state.topic.Publish(ctx, data); err != nil {
		return errors.Wrap(err, "could not publish message")
	}
	messagesSentCounter.Inc()
	return nil
}

// Stop closes every subscription and the underlying host.
func (s *Service) Stop() error {
	s.cancel()
	s.lock.Lock()
	for _, state := range s.topics {
		state.sub.Cancel()
	}
	s.lock.Unlock()
	return s.host.Close()
}

// Status reports any startup failure.
func (s *Service) Status() error {
	return s.startupErr
}

// privKey parses the configured identity key, or generates an ephemeral one.
func privKey(hexKey string) (lcrypto.PrivKey, error) {
	if hexKey == "" {
		priv, _, err := lcrypto.GenerateSecp256k1Key(rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, "could not generate p2p key")
		}
		return priv, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode p2p private key")
	}
	priv, err := lcrypto.UnmarshalSecp256k1PrivateKey(raw)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse p2p private key")
	}
	return priv, nil
}
