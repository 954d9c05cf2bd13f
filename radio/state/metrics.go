package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bufferedMessageCount = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "radio_remote_messages_buffered",
		Help: "The number of validated remote messages awaiting comparison.",
	},
)
