// Package metrics exposes the Prometheus metrics of the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/presensi/core/roster"
)

const namespace = "presensi"

// Ledgers
const (
	LedgerMonthly  = "monthly"
	LedgerSemester = "semester"
)

type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ledgerWrites    *prometheus.CounterVec
	importedRows    *prometheus.CounterVec
	rebuilds        prometheus.Counter
}

// New registers the app metrics, plus the Go and process collectors, on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "day_writes_total",
			Help:      "Attendance days written, by ledger.",
		}, []string{"ledger"}),
		importedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roster",
			Name:      "import_rows_total",
			Help:      "Imported student rows, by result (written or skipped).",
		}, []string{"result"}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roster",
			Name:      "projection_rebuilds_total",
			Help:      "Rebuilds of the rombel and program projections.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.ledgerWrites, m.importedRows, m.rebuilds,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) LedgerWrite(ledger string) {
	m.ledgerWrites.WithLabelValues(ledger).Inc()
}

func (m *Metrics) Imported(res roster.ImportResult) {
	m.importedRows.WithLabelValues("written").Add(float64(res.StudentsWritten))
	m.importedRows.WithLabelValues("skipped").Add(float64(res.Skipped))
}

func (m *Metrics) Rebuilt() {
	m.rebuilds.Inc()
}
