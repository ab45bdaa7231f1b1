package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_status_transitions_total",
		Help: "Status transition attempts by proposed status and outcome.",
	},
	[]string{"status", "outcome"},
)

func observeTransition(status Status, outcome Outcome) {
	transitionsTotal.WithLabelValues(string(status), string(outcome)).Inc()
}
