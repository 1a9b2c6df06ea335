// Package metrics exposes Prometheus counters for the responder daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DecisionsTotal counts every decision by resulting action and category.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "responder_decisions_total",
		Help: "Decisions made, by action and prompt category.",
	}, []string{"action", "category"})

	// DispatchesTotal counts affirmative keystroke sequences actually sent.
	DispatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "responder_dispatches_total",
		Help: "Approval keystroke sequences sent to panes.",
	})

	// DispatchFailures counts sends that failed after the retry.
	DispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "responder_dispatch_failures_total",
		Help: "Keystroke dispatches that failed after one retry.",
	})

	// AuditWriteFailures counts audit records that could not be persisted.
	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "responder_audit_write_failures_total",
		Help: "Audit entries that failed to write.",
	})

	// RateLimitWaits counts entries into the rate-limit Waiting state.
	RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "responder_rate_limit_waits_total",
		Help: "Usage-limit cooldown windows entered.",
	})

	// ActiveMonitors tracks currently running session monitors.
	ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "responder_active_monitors",
		Help: "Session monitors currently polling.",
	})

	// WakesFired counts scheduled wakes that fired.
	WakesFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "responder_wakes_fired_total",
		Help: "Scheduled wakes delivered to their sessions.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
