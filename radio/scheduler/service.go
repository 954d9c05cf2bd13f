package scheduler

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/graphops/poi-crosschecker-radio/radio/attestation"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
	"github.com/graphops/poi-crosschecker-radio/radio/networks"
	"github.com/graphops/poi-crosschecker-radio/radio/oracle"
	"github.com/graphops/poi-crosschecker-radio/radio/state"
	"github.com/sirupsen/logrus"
)

// Coverage levels select which deployments become content topics.
const (
	CoverageMinimal       = "minimal"
	CoverageOnChain       = "on-chain"
	CoverageComprehensive = "comprehensive"
)

// Agent is the transport capability held by the engine: broadcast and topic
// management, never ingestion (that direction is wired through the sync
// service's registered handler).
type Agent interface {
	Broadcast(ctx context.Context, identifier string, data []byte) error
	UpdateContentTopics(identifiers []string)
	ContentIdentifiers() []string
	PeerCount() int
}

// GraphNodeOracle is the local node oracle: chain heads, canonical hashes
// and POIs.
type GraphNodeOracle interface {
	UpdateChainheadBlocks(ctx context.Context) (map[networks.NetworkName]networks.BlockPointer, map[string]oracle.IndexingStatus, error)
	BlockHash(ctx context.Context, network string, blockNumber uint64) (string, error)
	QueryPOI(ctx context.Context, deployment, blockHash string, blockNumber uint64) (string, error)
}

// AllocationLister feeds the on-chain coverage policy.
type AllocationLister interface {
	ActiveAllocations(ctx context.Context, indexer common.Address) ([]string, error)
}

// Notifier receives divergence summaries.
type Notifier interface {
	Notify(ctx context.Context, content string)
}

// Config wires the scheduler service.
type Config struct {
	Agent           Agent
	GraphNode       GraphNodeOracle
	Resolver        attestation.StakeResolver
	Allocations     AllocationLister
	State           *state.PersistedState
	Notifier        Notifier
	OperatorAddress common.Address
	OperatorStake   uint64
	SigningKey      *ecdsa.PrivateKey
	CollectWindow   time.Duration
	Coverage        string
	Topics          []string
	PanicIfDiverged bool
}

// Service implements Radio against the real collaborators.
type Service struct {
	cfg      *Config
	heads    map[networks.NetworkName]networks.BlockPointer
	statuses map[string]oracle.IndexingStatus
	sentAt   map[string]uint64 // deployment -> last successfully broadcast block
	now      func() time.Time
}

// NewService builds the production Radio implementation.
func NewService(cfg *Config) *Service {
	return &Service{
		cfg:    cfg,
		sentAt: make(map[string]uint64),
		now:    time.Now,
	}
}

// UpdateChainheads refreshes the per-network chain heads and the per
// deployment indexing statuses from the local graph node.
func (s *Service) UpdateChainheads(ctx context.Context) error {
	heads, statuses, err := s.cfg.GraphNode.UpdateChainheadBlocks(ctx)
	if err != nil {
		return err
	}
	s.heads = heads
	s.statuses = statuses
	for network, head := range heads {
		log.WithFields(logrus.Fields{
			"network": network,
			"block":   head.Number,
		}).Debug("Chain head")
	}
	return nil
}

// RefreshTopics reconciles the gossip subscriptions from the coverage policy
// or the explicit topic override.
func (s *Service) RefreshTopics(ctx context.Context) error {
	ids, err := s.generateTopics(ctx)
	if err != nil {
		return err
	}
	s.cfg.Agent.UpdateContentTopics(ids)
	return nil
}

func (s *Service) generateTopics(ctx context.Context) ([]string, error) {
	if len(s.cfg.Topics) > 0 {
		return s.cfg.Topics, nil
	}
	switch s.cfg.Coverage {
	case CoverageMinimal:
		// Without an explicit topic list, minimal coverage tracks nothing.
		return nil, nil
	case CoverageOnChain:
		return s.cfg.Allocations.ActiveAllocations(ctx, s.cfg.OperatorAddress)
	case CoverageComprehensive:
		if s.statuses == nil {
			if err := s.UpdateChainheads(ctx); err != nil {
				return nil, err
			}
		}
		ids := make([]string, 0, len(s.statuses))
		for deployment := range s.statuses {
			ids = append(ids, deployment)
		}
		return ids, nil
	default:
		return nil, errors.Errorf("unknown coverage level %q", s.cfg.Coverage)
	}
}

// Deployments lists the tracked content identifiers.
func (s *Service) Deployments() []string {
	return s.cfg.Agent.ContentIdentifiers()
}

// PeerCount reports connected gossip peers.
func (s *Service) PeerCount() int {
	return s.cfg.Agent.PeerCount()
}

// ProcessComparison checks whether the collection window for the
// deployment's earliest buffered block has elapsed and, if so, resolves the
// comparison: snapshot, aggregate, compare, record, notify, prune. The prune
// runs for every verdict except BuildFailed, which leaves the messages for a
// retry once the oracle recovers.
func (s *Service) ProcessComparison(ctx context.Context, deployment string) *attestation.ComparisonResult {
	buffer := s.cfg.State.Remote
	compareBlock, firstSeen, ok := buffer.EarliestFor(deployment)
	if !ok {
		return nil
	}
	trigger := time.Unix(firstSeen, 0).Add(s.cfg.CollectWindow)
	if s.now().Before(trigger) {
		return nil
	}

	msgs := buffer.Subset(deployment, compareBlock)
	log.WithFields(logrus.Fields{
		"deployment": deployment,
		"block":      compareBlock,
		"messages":   len(msgs),
	}).Debug("Comparing validated messages")

	remote, err := attestation.ProcessMessages(ctx, msgs, s.cfg.Resolver)
	if err != nil {
		result := attestation.ComparisonResult{
			Deployment:  deployment,
			BlockNumber: compareBlock,
			Type:        attestation.ResultBuildFailed,
			Reason:      err.Error(),
		}
		attestation.RecordResult(result)
		log.WithError(err).WithField("deployment", deployment).Error("Could not aggregate remote messages")
		return &result
	}

	result := attestation.Compare(compareBlock, remote, s.cfg.State.Local, deployment)
	attestation.RecordResult(result)

	if result.Type == attestation.ResultDivergent {
		s.cfg.Notifier.Notify(ctx, result.String())
		if s.cfg.PanicIfDiverged {
			log.Fatal(result.String())
		}
	}

	pruned := buffer.Prune(deployment, compareBlock)
	log.WithFields(logrus.Fields{
		"deployment": deployment,
		"block":      compareBlock,
		"pruned":     pruned,
		"result":     result.Type,
	}).Debug("Resolved comparison")
	return &result
}

// SendAttestation runs the send branch for one deployment: quantize the
// chain head onto the message grid, fetch the canonical hash and the local
// POI, commit the local attestation, then sign and broadcast. The local
// attestation is installed before the publish, so a failed send leaves the
// operator committed to its POI; later ticks re-broadcast the stored
// attestation without producing it again.
func (s *Service) SendAttestation(ctx context.Context, deployment string) (bool, error) {
	status, ok := s.statuses[deployment]
	if !ok {
		log.WithField("deployment", deployment).Debug("No indexing status for deployment, skipping send")
		return false, nil
	}
	messageBlock, err := networks.DetermineMessageBlock(s.heads, status.Network)
	if err != nil {
		return false, nil
	}
	if status.LatestBlock.Number < messageBlock {
		return false, nil
	}
	if s.sentAt[deployment] >= messageBlock {
		return false, nil
	}

	blockHash, err := s.cfg.GraphNode.BlockHash(ctx, string(status.Network), messageBlock)
	if err != nil {
		return false, errors.Wrap(err, "could not query block hash")
	}

	var npoi string
	if att, exists := s.cfg.State.Local.GetLocal(deployment, messageBlock); exists {
		// Committed on an earlier tick but the broadcast failed; re-send the
		// same content.
		npoi = att.NPOI
	} else {
		npoi, err = s.cfg.GraphNode.QueryPOI(ctx, deployment, blockHash, messageBlock)
		if err != nil {
			return false, errors.Wrap(err, "could not query POI")
		}
		att := attestation.Attestation{
			NPOI:        npoi,
			StakeWeight: s.cfg.OperatorStake,
		}
		if err := s.cfg.State.Local.SaveLocal(att, deployment, messageBlock); err != nil {
			return false, errors.Wrap(err, "could not save local attestation")
		}
	}

	env := messages.NewEnvelope(deployment, string(status.Network), messageBlock, blockHash, npoi, uint64(s.now().Unix()))
	if err := env.Sign(s.cfg.SigningKey); err != nil {
		return false, errors.Wrap(err, "could not sign envelope")
	}
	data, err := env.Encode()
	if err != nil {
		return false, errors.Wrap(err, "could not encode envelope")
	}
	if err := s.cfg.Agent.Broadcast(ctx, deployment, data); err != nil {
		// Commit-before-publish: the local attestation stays.
		return false, errors.Wrap(err, "could not broadcast attestation")
	}
	s.sentAt[deployment] = messageBlock
	log.WithFields(logrus.Fields{
		"deployment": deployment,
		"block":      messageBlock,
		"npoi":       npoi,
	}).Info("Broadcast local attestation")
	return true, nil
}
