// Package scheduler drives the attestation lifecycle: one logical tick per
// interval that refreshes network state, sends the local attestation for each
// tracked deployment, and resolves comparisons whose collection window has
// elapsed.
package scheduler

import (
	"context"
	"time"

	"github.com/graphops/poi-crosschecker-radio/radio/attestation"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
)

var log = logrus.WithField("prefix", "scheduler")

// Runner hosts the main loop as a registerable service.
type Runner struct {
	ctx           context.Context
	cancel        context.CancelFunc
	radio         Radio
	tickInterval  time.Duration
	topicInterval time.Duration
}

// NewRunner wraps a Radio in the service lifecycle.
func NewRunner(ctx context.Context, radio Radio, tickInterval, topicInterval time.Duration) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		ctx:           ctx,
		cancel:        cancel,
		radio:         radio,
		tickInterval:  tickInterval,
		topicInterval: topicInterval,
	}
}

// Start blocks driving the main loop until Stop cancels it.
func (r *Runner) Start() {
	Run(r.ctx, r.radio, r.tickInterval, r.topicInterval)
}

// Stop cancels the loop; the in-flight tick finishes best effort.
func (r *Runner) Stop() error {
	r.cancel()
	return nil
}

// Status always reports healthy; step failures are logged and retried.
func (r *Runner) Status() error {
	return nil
}

// Radio is the set of operations the main loop drives. The production
// implementation is Service; tests substitute their own.
type Radio interface {
	// UpdateChainheads refreshes the chain head and indexing status view.
	// An error skips the whole tick so stale heads never poison state.
	UpdateChainheads(ctx context.Context) error
	// RefreshTopics regenerates the content topic subscriptions from the
	// configured coverage policy.
	RefreshTopics(ctx context.Context) error
	// Deployments lists the currently tracked content identifiers.
	Deployments() []string
	// ProcessComparison resolves the comparison for a deployment if its
	// collection window has elapsed, returning nil when nothing was due.
	ProcessComparison(ctx context.Context, deployment string) *attestation.ComparisonResult
	// SendAttestation signs and broadcasts the local attestation when the
	// deployment's network has reached its next message block.
	SendAttestation(ctx context.Context, deployment string) (bool, error)
	// PeerCount reports connected gossip peers, for the tick summary.
	PeerCount() int
}

// Run the main radio routine. This routine exits if the context is canceled.
//
// Order of operations per tick:
// 1 - Refresh chain heads; skip the tick entirely on failure
// 2 - Refresh content topics at the coarser topic interval
// 3 - Per deployment: resolve a due comparison, then send for the current
//     message block
// 4 - Log the tick summary
func Run(ctx context.Context, r Radio, tickInterval, topicInterval time.Duration) {
	if err := r.RefreshTopics(ctx); err != nil {
		log.WithError(err).Error("Could not generate initial content topics")
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	lastTopicRefresh := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Info("Context canceled, stopping radio")
			return
		case <-ticker.C:
			tickCtx, span := trace.StartSpan(ctx, "scheduler.processTick")

			if err := r.UpdateChainheads(tickCtx); err != nil {
				log.WithError(err).Error("Could not query chain heads, pull again later")
				span.End()
				continue
			}
			if time.Since(lastTopicRefresh) >= topicInterval {
				if err := r.RefreshTopics(tickCtx); err != nil {
					log.WithError(err).Error("Could not refresh content topics")
				}
				lastTopicRefresh = time.Now()
			}

			deployments := r.Deployments()
			sent := 0
			counts := make(map[attestation.ResultType]int)
			var divergent []string
			for _, deployment := range deployments {
				if result := r.ProcessComparison(tickCtx, deployment); result != nil {
					counts[result.Type]++
					if result.Type == attestation.ResultDivergent {
						divergent = append(divergent, result.String())
					}
				}
				ok, err := r.SendAttestation(tickCtx, deployment)
				if err != nil {
					log.WithError(err).WithField("deployment", deployment).Error("Failed to send attestation")
				}
				if ok {
					sent++
				}
			}

			log.WithFields(logrus.Fields{
				"deployments":  len(deployments),
				"gossipPeers":  r.PeerCount(),
				"messagesSent": sent,
				"matched":      counts[attestation.ResultMatch],
				"notFound":     counts[attestation.ResultNotFound],
				"divergent":    counts[attestation.ResultDivergent],
			}).Info("Tick summary")
			for _, d := range divergent {
				log.Error(d)
			}
			span.End()
		}
	}
}
