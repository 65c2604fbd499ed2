// Package metrics defines the Prometheus instrumentation for spool
// writes, transforms, recovery actions and forwarded messages
// (SPEC_FULL.md §2 "Metrics"), grounded on the teacher's
// promhttp.Handler() wiring in cmd/server/main.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mppsDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpps_proxy_dispatch_total",
		Help: "MPPS requests dispatched by the MPPS Service, by DIMSE kind and outcome.",
	}, []string{"dimse_kind", "outcome"})

	spoolTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpps_proxy_spool_transition_total",
		Help: "Spool entry lifecycle transitions, by transition and outcome.",
	}, []string{"transition", "outcome"})

	doseSrConversionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpps_proxy_dose_sr_conversion_total",
		Help: "MPPS-to-Dose-SR conversions, by outcome.",
	}, []string{"outcome"})

	recoveryActionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpps_proxy_recovery_action_total",
		Help: "Recovery Sweeper actions taken, by action kind.",
	}, []string{"action"})

	spoolWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "mpps_proxy_spool_write_duration_seconds",
		Help: "Duration of Spool Writer create operations (temp file and sidecar write).",
	})
)

func MPPSDispatched(dimseKind, outcome string) {
	mppsDispatchTotal.WithLabelValues(dimseKind, outcome).Inc()
}

func SpoolTransition(transition, outcome string) {
	spoolTransitionTotal.WithLabelValues(transition, outcome).Inc()
}

func DoseSrConverted(outcome string) {
	doseSrConversionTotal.WithLabelValues(outcome).Inc()
}

func RecoveryAction(action string) {
	recoveryActionTotal.WithLabelValues(action).Inc()
}

// ObserveSpoolWrite records one successful Spool Writer create
// operation's wall-clock duration; rename is not included. Callers pass seconds directly since this package must not
// call time.Now() itself (keeps metrics free of hidden timing side
// effects for tests that drive Spool Writer synchronously).
func ObserveSpoolWrite(seconds float64) {
	spoolWriteDuration.Observe(seconds)
}
