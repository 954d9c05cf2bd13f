package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationCounter = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "radio_notifications_total",
		Help: "Count of divergence notifications dispatched.",
	},
)
