// Package metrics exposes rotation runs as Prometheus metrics, either
// through a node_exporter textfile or an HTTP handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stupid-simple/rotate/rotation"
)

const namespace = "ssrotate"

type Metrics struct {
	registry *prometheus.Registry

	TierCopies       *prometheus.CounterVec
	Pruned           *prometheus.CounterVec
	ProducerFailures *prometheus.CounterVec
	SyncFailures     *prometheus.CounterVec
	LastRun          prometheus.Gauge
	RunDuration      prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		TierCopies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_copies_total",
			Help:      "Artifacts archived into a tier, by outcome.",
		}, []string{"tier", "status"}),
		Pruned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_total",
			Help:      "Files removed by tier retention, by result.",
		}, []string{"tier", "result"}),
		ProducerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "producer_failures_total",
			Help:      "Backup producers that failed to create an artifact.",
		}, []string{"producer"}),
		SyncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Remote mirror syncs that failed.",
		}, []string{"syncer"}),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run.",
		}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last finished run.",
		}),
	}
}

// ObserveOutcomes counts the tier copies and pruned files of one archive
// call.
func (m *Metrics) ObserveOutcomes(outcomes []rotation.Outcome) {
	for _, o := range outcomes {
		m.TierCopies.WithLabelValues(string(o.Tier), string(o.Status)).Inc()
		if o.Prune == nil {
			continue
		}
		failed := len(o.Prune.Failed())
		m.Pruned.WithLabelValues(string(o.Tier), "deleted").Add(float64(len(o.Prune.Deleted) - failed))
		m.Pruned.WithLabelValues(string(o.Tier), "failed").Add(float64(failed))
	}
}

func (m *Metrics) ProducerFailed(producer string) {
	m.ProducerFailures.WithLabelValues(producer).Inc()
}

func (m *Metrics) SyncFailed(syncer string) {
	m.SyncFailures.WithLabelValues(syncer).Inc()
}

func (m *Metrics) RunFinished(finishedAt time.Time, duration time.Duration) {
	m.LastRun.Set(float64(finishedAt.Unix()))
	m.RunDuration.Set(duration.Seconds())
}

// WriteTextfile writes every metric to path in the text exposition format,
// atomically, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
