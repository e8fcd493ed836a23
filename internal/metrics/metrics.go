// Package metrics provides Prometheus metrics for ncddns.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "ncddns"

var (
	// BuildInfo is a constant 1 labelled with version information.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "go_version"})

	// CyclesTotal counts update cycles by final status
	// (unchanged, updated, partial, failed, dry_run, resolve_failed).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "cycles_total",
		Help:      "Update cycles by status.",
	}, []string{"status"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Duration of update cycles.",
		Buckets:   prometheus.DefBuckets,
	})

	CyclePanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "cycle_panics_total",
		Help:      "Update cycles that panicked and were recovered.",
	})

	// IPLookupsTotal counts detection attempts per endpoint.
	IPLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ip_lookups_total",
		Help:      "Public IP detection attempts by endpoint and result.",
	}, []string{"endpoint", "result"})

	PublicIPChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "public_ip_changes_total",
		Help:      "Cycles in which the resolved address differed from the stored one.",
	})

	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "updates_total",
		Help:      "Provider update calls by host and result.",
	}, []string{"host", "result"})

	UpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "update_duration_seconds",
		Help:      "Duration of provider update calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"host"})

	StateCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "state_commits_total",
		Help:      "State store commits by result.",
	}, []string{"result"})

	HealthServerErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "health_server_errors_total",
		Help:      "Times the health server stopped with an error.",
	})

	// LastPublishTimestamp is the unix time of the last fully successful publish.
	LastPublishTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "last_publish_timestamp_seconds",
		Help:      "Unix time of the last publish that succeeded for every host.",
	})
)

// SetBuildInfo records the running version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.Reset()
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Result label values shared by the counters above.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
