// Package metrics defines and registers all custom Prometheus metrics for the
// nerdwiki API. It is the single source of truth for metric names, labels,
// and help strings.
//
// Collectors are created on package load and exposed once Register attaches
// them to the registry that backs /metrics. HTTP request metrics come from
// the echoprometheus middleware instead.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nerdwiki"

// AuthRequestsTotal counts auth and role operations by outcome.
// Labels:
//   - operation: signup, signin, signout, refresh, add_role, assign_role
//   - result: "success", "rejected" (validation or unauthorized) or "error"
var AuthRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "requests_total",
		Help:      "Total number of auth operations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// AuthRequestDuration measures how long each auth operation takes, including
// password hashing and store round trips.
var AuthRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "request_duration_seconds",
		Help:      "Duration of auth operations.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"operation"},
)

// Register adds every auth collector to reg. Registering on a registry that
// already holds them is not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{AuthRequestsTotal, AuthRequestDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
