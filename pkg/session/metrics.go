package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "session_starts_total",
		Help:      "Started sessions by role.",
	}, []string{"role"})
	metricTeardowns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "session_teardowns_total",
		Help:      "Completed session teardowns.",
	})
	metricRenegotiations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "renegotiations_total",
		Help:      "Publisher offer/answer exchanges after the first.",
	})
	metricRosterSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "liveclass",
		Name:      "roster_size",
		Help:      "Participants currently known in the room.",
	})
)
