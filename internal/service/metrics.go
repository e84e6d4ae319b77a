package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	opList   = "list"
	opGet    = "get"
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// Outcome labels.
const (
	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

var itemOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "homelab",
		Name:      "item_operations_total",
		Help:      "Total number of item service operations by outcome.",
	},
	[]string{"operation", "outcome"},
)

func observe(operation, outcome string) {
	itemOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func foundOutcome(found bool) string {
	if found {
		return outcomeOK
	}
	return outcomeNotFound
}
