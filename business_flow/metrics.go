package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Compliance decisions partitioned by outcome (allowed or blocked)
var complianceDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "compliance_decisions_total",
		Help: "Total number of compliance decisions computed",
	},
	[]string{"outcome"},
)

func observeDecision(canSend bool) {
	outcome := "allowed"
	if !canSend {
		outcome = "blocked"
	}
	complianceDecisionsTotal.WithLabelValues(outcome).Inc()
}
