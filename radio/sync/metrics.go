package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messageReceivedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_messages_received_total",
			Help: "Count of gossip frames delivered by the transport.",
		},
	)
	messageValidatedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_messages_validated_total",
			Help: "Count of messages that passed validation and were buffered.",
		},
	)
	messageRejectedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_messages_rejected_total",
			Help: "Count of messages dropped during validation, by rejection kind.",
		},
		[]string{"kind"},
	)
)
