// Package prom implements the observability hooks with Prometheus metrics.
//
// Every Metrics value owns a private registry, never the global default, so a
// process can hold several independent sets (tests do).
package prom

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/contentgraph/pkg/observability"
)

const namespace = "contentgraph"

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Metrics holds every collector. It satisfies all hook interfaces of package
// observability.
type Metrics struct {
	registry *prometheus.Registry

	packsParsed   prometheus.Counter
	packDuration  prometheus.Histogram
	itemsParsed   prometheus.Counter
	itemsSkipped  *prometheus.CounterVec
	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	graphNodes    prometheus.Gauge
	graphRels     prometheus.Gauge
	transitions   *prometheus.CounterVec

	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram
	imports        *prometheus.CounterVec
	exports        *prometheus.CounterVec
	packDeps       prometheus.Gauge
	cycles         prometheus.Gauge

	cacheLookups *prometheus.CounterVec
	cacheBytes   *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

var (
	_ observability.PipelineHooks = (*Metrics)(nil)
	_ observability.GraphHooks    = (*Metrics)(nil)
	_ observability.CacheHooks    = (*Metrics)(nil)
	_ observability.HTTPHooks     = (*Metrics)(nil)
)

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		packsParsed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "parse", Name: "packs_total",
			Help: "Packs walked by the graph builder",
		}),
		packDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "parse", Name: "pack_duration_seconds",
			Help: "Time to parse one pack", Buckets: durationBuckets,
		}),
		itemsParsed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "parse", Name: "items_total",
			Help: "Content items parsed",
		}),
		itemsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "parse", Name: "skipped_total",
			Help: "Paths skipped while parsing, by reason",
		}, []string{"reason"}),
		builds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "build", Name: "total",
			Help: "Graph builds by mode and status",
		}, []string{"mode", "status"}),
		buildDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "build", Name: "duration_seconds",
			Help: "Graph build duration", Buckets: durationBuckets,
		}, []string{"mode"}),
		graphNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "build", Name: "nodes",
			Help: "Nodes written by the last build",
		}),
		graphRels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "build", Name: "relationships",
			Help: "Relationships written by the last build",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "update", Name: "transitions_total",
			Help: "Update state machine transitions",
		}, []string{"from", "to", "fallback"}),

		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graph", Name: "commits_total",
			Help: "Batch commits by status",
		}, []string{"status"}),
		commitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "graph", Name: "commit_duration_seconds",
			Help: "Batch commit duration", Buckets: durationBuckets,
		}),
		imports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graph", Name: "imports_total",
			Help: "Snapshot imports by outcome",
		}, []string{"status"}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graph", Name: "exports_total",
			Help: "Snapshot exports by marketplace and status",
		}, []string{"marketplace", "status"}),
		packDeps: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "pack_dependencies",
			Help: "Pack dependencies from the last recomputation",
		}),
		cycles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "dependency_cycles",
			Help: "Pack dependency cycles from the last recomputation",
		}),

		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "lookups_total",
			Help: "Cache lookups by key type and result",
		}, []string{"key_type", "result"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "written_bytes_total",
			Help: "Bytes written to the cache",
		}, []string{"key_type"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Outgoing HTTP requests by host and status code",
		}, []string{"method", "host", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "Outgoing HTTP request duration", Buckets: durationBuckets,
		}, []string{"method", "host"}),
		httpErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "errors_total",
			Help: "Outgoing HTTP requests that failed before a response",
		}, []string{"method", "host"}),
	}
}

// Register installs m as the process-wide hook implementation.
func (m *Metrics) Register() {
	observability.SetPipelineHooks(m)
	observability.SetGraphHooks(m)
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteToTextfile writes the current metrics to path for the node exporter
// textfile collector. Batch runs use this instead of serving /metrics.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) OnPackParsed(_ context.Context, _ string, items, _ int, d time.Duration) {
	m.packsParsed.Inc()
	m.itemsParsed.Add(float64(items))
	m.packDuration.Observe(d.Seconds())
}

func (m *Metrics) OnItemSkipped(_ context.Context, reason string) {
	m.itemsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) OnBuildComplete(_ context.Context, mode string, nodes, rels int, d time.Duration, err error) {
	m.builds.WithLabelValues(mode, status(err)).Inc()
	m.buildDuration.WithLabelValues(mode).Observe(d.Seconds())
	if err == nil {
		m.graphNodes.Set(float64(nodes))
		m.graphRels.Set(float64(rels))
	}
}

func (m *Metrics) OnTransition(_ context.Context, from, to string, err error) {
	fallback := "false"
	if err != nil {
		fallback = "true"
	}
	m.transitions.WithLabelValues(from, to, fallback).Inc()
}

func (m *Metrics) OnCommit(_ context.Context, _, _ int, d time.Duration, err error) {
	m.commits.WithLabelValues(status(err)).Inc()
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) OnImport(_ context.Context, ok bool, _ time.Duration) {
	s := "fallback"
	if ok {
		s = "ok"
	}
	m.imports.WithLabelValues(s).Inc()
}

func (m *Metrics) OnExport(_ context.Context, marketplace string, _ time.Duration, err error) {
	m.exports.WithLabelValues(marketplace, status(err)).Inc()
}

func (m *Metrics) OnDependencies(_ context.Context, deps, cycles int, _ time.Duration) {
	m.packDeps.Set(float64(deps))
	m.cycles.Set(float64(cycles))
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheLookups.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheLookups.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, method, host, _ string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, host, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, host).Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, method, host, _ string, _ error) {
	m.httpErrors.WithLabelValues(method, host).Inc()
}
