package p2p

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	topicCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radio_content_topics",
			Help: "The number of content topics currently subscribed.",
		},
	)
	messagesSentCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_messages_sent_total",
			Help: "Count of gossip messages published by this operator.",
		},
	)
)
