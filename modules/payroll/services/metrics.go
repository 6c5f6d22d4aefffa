package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	payrollTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payroll",
		Name:      "transitions_total",
		Help:      "Total number of payroll lifecycle operations broken down by operation and result.",
	}, []string{"operation", "result"})

	payrollSettlementActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payroll",
		Subsystem: "settlement",
		Name:      "actions_total",
		Help:      "Total number of applied settlement actions broken down by action.",
	}, []string{"action"})

	payrollWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payroll",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of payroll write conflicts broken down by kind.",
	}, []string{"kind"})
)

const (
	resultApplied  = "applied"
	resultReplay   = "replay"
	resultRejected = "rejected"
)

func recordTransition(operation, result string) {
	payrollTransitions.WithLabelValues(operation, result).Inc()
}

func recordSettlementAction(action string) {
	payrollSettlementActions.WithLabelValues(action).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	payrollWriteConflicts.WithLabelValues(kind).Inc()
}
