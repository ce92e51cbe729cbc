// Package metrics records ledger operation metrics. Collector is the port
// used by services and transports; Prometheus is the production adapter and
// Nop is used when metrics are disabled.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives operation measurements.
type Collector interface {
	RecordAppend(backend string, success bool, duration time.Duration)
	RecordLoad(backend string, success bool, records int, duration time.Duration)
	RecordQuery(cacheHit bool, duration time.Duration)
	RecordPublish(success bool)
	RecordMirror(outcome string)
	RecordCircuitState(name string, state int)
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordAppend(string, bool, time.Duration)             {}
func (Nop) RecordLoad(string, bool, int, time.Duration)          {}
func (Nop) RecordQuery(bool, time.Duration)                      {}
func (Nop) RecordPublish(bool)                                   {}
func (Nop) RecordMirror(string)                                  {}
func (Nop) RecordCircuitState(string, int)                       {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}

// Prometheus implements Collector with client_golang vectors.
type Prometheus struct {
	appends      *prometheus.CounterVec
	appendTime   *prometheus.HistogramVec
	loads        *prometheus.CounterVec
	loadTime     *prometheus.HistogramVec
	loadedRows   prometheus.Gauge
	queries      *prometheus.CounterVec
	queryTime    prometheus.Histogram
	publishes    *prometheus.CounterVec
	mirrored     *prometheus.CounterVec
	circuitState *prometheus.GaugeVec
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates the collector vectors under namespace.
func NewPrometheus(namespace string) *Prometheus {
	return &Prometheus{
		appends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "record_appends_total",
				Help:      "Total number of record appends per backend and result",
			},
			[]string{"backend", "result"},
		),
		appendTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "record_append_duration_seconds",
				Help:      "Record append latency per backend",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_loads_total",
				Help:      "Total number of full store loads per backend and result",
			},
			[]string{"backend", "result"},
		),
		loadTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_load_duration_seconds",
				Help:      "Full store load latency per backend",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		loadedRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_records",
				Help:      "Number of records returned by the last successful load",
			},
		),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of range queries by cache outcome",
			},
			[]string{"cache"},
		),
		queryTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Range query latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of record events published by result",
			},
			[]string{"result"},
		),
		mirrored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mirror_messages_total",
				Help:      "Total number of mirror worker messages by outcome",
			},
			[]string{"outcome"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (p *Prometheus) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		p.appends, p.appendTime,
		p.loads, p.loadTime, p.loadedRows,
		p.queries, p.queryTime,
		p.publishes, p.mirrored, p.circuitState,
		p.httpRequests, p.httpLatency,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Prometheus) RecordAppend(backend string, success bool, duration time.Duration) {
	p.appends.WithLabelValues(backend, result(success)).Inc()
	p.appendTime.WithLabelValues(backend).Observe(duration.Seconds())
}

func (p *Prometheus) RecordLoad(backend string, success bool, records int, duration time.Duration) {
	p.loads.WithLabelValues(backend, result(success)).Inc()
	p.loadTime.WithLabelValues(backend).Observe(duration.Seconds())
	if success {
		p.loadedRows.Set(float64(records))
	}
}

func (p *Prometheus) RecordQuery(cacheHit bool, duration time.Duration) {
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	p.queries.WithLabelValues(outcome).Inc()
	p.queryTime.Observe(duration.Seconds())
}

func (p *Prometheus) RecordPublish(success bool) {
	p.publishes.WithLabelValues(result(success)).Inc()
}

func (p *Prometheus) RecordMirror(outcome string) {
	p.mirrored.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) RecordCircuitState(name string, state int) {
	p.circuitState.WithLabelValues(name).Set(float64(state))
}

func (p *Prometheus) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
