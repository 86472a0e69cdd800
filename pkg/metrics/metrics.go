// Package metrics holds the Prometheus counters of the bridge.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "walletbridge"

	LabelMethod    = "method"
	LabelOutcome   = "outcome"
	LabelBackend   = "backend"
	LabelOperation = "operation"
	LabelRole      = "role"
	LabelFrom      = "from"
	LabelTo        = "to"

	OutcomeResolved = "resolved"
	OutcomeRejected = "rejected"
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeSelect   = "needs_selection"

	OperationCreate = "create"
	OperationGet    = "get"
)

var (
	// BridgeCallsTotal counts settled bridge calls by method and outcome.
	BridgeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "bridge",
			Name:      "calls_total",
			Help:      "Total number of settled bridge calls by method and outcome",
		},
		[]string{LabelMethod, LabelOutcome},
	)

	// CeremoniesTotal counts WebAuthn ceremonies by backend, operation and outcome.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of WebAuthn ceremonies by backend, operation and outcome",
		},
		[]string{LabelBackend, LabelOperation, LabelOutcome},
	)

	// BLETransitionsTotal counts BLE state machine transitions.
	BLETransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ble",
			Name:      "transitions_total",
			Help:      "Total number of BLE state transitions by role",
		},
		[]string{LabelRole, LabelFrom, LabelTo},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordBridgeCall increments BridgeCallsTotal.
func RecordBridgeCall(method, outcome string) {
	if !enabled.Load() {
		return
	}
	BridgeCallsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordCeremony increments CeremoniesTotal.
func RecordCeremony(backend, operation, outcome string) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(backend, operation, outcome).Inc()
}

// RecordTransition increments BLETransitionsTotal. Self-transitions are not counted.
func RecordTransition(role, from, to string) {
	if !enabled.Load() || from == to {
		return
	}
	BLETransitionsTotal.WithLabelValues(role, from, to).Inc()
}

// Enable turns metrics collection on. It is on by default.
func Enable() {
	enabled.Store(true)
}

// Disable turns metrics collection off.
func Disable() {
	enabled.Store(false)
}

func IsEnabled() bool {
	return enabled.Load()
}
