// Package metrics exposes supervisor counters on the default Prometheus
// registry. The dashboard serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal counts completed sessions by terminal status.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_sessions_total",
		Help: "Completed agent sessions by terminal status.",
	}, []string{"status"})

	// KillsTotal counts watchdog and cancellation kills by cause.
	KillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_kills_total",
		Help: "Agent processes killed by the supervisor, by cause.",
	}, []string{"cause"})

	// TokensTotal counts tokens reported by the agent.
	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_tokens_total",
		Help: "Tokens consumed by supervised sessions.",
	}, []string{"direction"})
)
