package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verida_ready",
		Help: "1 when the last readiness probe succeeded.",
	})

	contractCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verida_contract_calls_total",
			Help: "Contract invocations by outcome.",
		},
		[]string{"contract", "op", "outcome"},
	)

	contractCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verida_contract_call_duration_seconds",
			Help:    "Contract invocation latency including commit.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"contract", "op"},
	)

	custodyTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verida_custody_transfers_total",
			Help: "Committed custody movements by asset and reason.",
		},
		[]string{"asset", "reason"},
	)

	escrowSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verida_escrow_sweeps_total",
			Help: "Expiry sweeper attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all metrics in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
			contractCalls, contractCallDuration, custodyTransfers, escrowSweeps,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the result of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// ObserveContractCall records one contract invocation.
func ObserveContractCall(contract, op, outcome string, d time.Duration) {
	contractCalls.WithLabelValues(contract, op, outcome).Inc()
	contractCallDuration.WithLabelValues(contract, op).Observe(d.Seconds())
}

func CountCustodyTransfer(asset, reason string) {
	custodyTransfers.WithLabelValues(asset, reason).Inc()
}

func CountSweep(outcome string) {
	escrowSweeps.WithLabelValues(outcome).Inc()
}

// Instrument measures in-flight requests, totals and latency by canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// collections whose next path segment is an identifier.
var collections = map[string]string{
	"communities":     ":id",
	"deliveries":      ":id",
	"donations":       ":id",
	"escrows":         ":id",
	"representatives": ":principal",
	"donors":          ":principal",
	"recipients":      ":principal",
	"contracts":       ":contract",
	"assets":          ":asset",
	"accounts":        ":account",
}

// CanonicalPath collapses identifiers so metric label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if segs[0] != "v1" {
		return "/" + strings.Join(segs, "/")
	}
	for i := 1; i < len(segs)-1; i++ {
		if placeholder, ok := collections[segs[i]]; ok {
			segs[i+1] = placeholder
			i++
		}
	}
	return "/" + strings.Join(segs, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers stream through the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
