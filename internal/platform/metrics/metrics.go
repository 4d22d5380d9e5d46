package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the encode pipeline and its status server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	itemsProcessed   prometheus.Counter
	itemsFailed      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	bytesTransferred *prometheus.CounterVec
	currentStage     *prometheus.GaugeVec
	pendingItems     prometheus.Gauge
}

// New creates and registers the pipeline metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "epgenc_status_requests_total",
		Help: "Total number of HTTP requests received by the status server",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "epgenc_status_errors_total",
		Help: "Total number of status responses with error status (4xx or 5xx)",
	})
	itemsProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "epgenc_items_processed_total",
		Help: "Recorded items that completed every stage",
	})
	itemsFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epgenc_items_failed_total",
		Help: "Recorded items that failed, by the stage that failed",
	}, []string{"stage"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "epgenc_stage_duration_seconds",
		Help:    "Wall time spent in each pipeline stage",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"stage"})
	bytesTransferred := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epgenc_bytes_transferred_total",
		Help: "Bytes moved to or from EPGStation",
	}, []string{"direction"})
	currentStage := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "epgenc_current_stage",
		Help: "1 for the stage currently running, 0 otherwise",
	}, []string{"stage"})
	pendingItems := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "epgenc_pending_items",
		Help: "Items of the current run that have not started yet",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		itemsProcessed,
		itemsFailed,
		stageDuration,
		bytesTransferred,
		currentStage,
		pendingItems,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		errorsTotal:      errorsTotal,
		itemsProcessed:   itemsProcessed,
		itemsFailed:      itemsFailed,
		stageDuration:    stageDuration,
		bytesTransferred: bytesTransferred,
		currentStage:     currentStage,
		pendingItems:     pendingItems,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// IncItemsProcessed counts one item that finished cleanup.
func (m *Metrics) IncItemsProcessed() {
	if m != nil {
		m.itemsProcessed.Inc()
	}
}

// IncItemsFailed counts one item that failed in stage.
func (m *Metrics) IncItemsFailed(stage string) {
	if m != nil {
		m.itemsFailed.WithLabelValues(stage).Inc()
	}
}

// ObserveStage records how long stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// AddBytes adds n bytes to the counter for direction ("download" or "upload").
func (m *Metrics) AddBytes(direction string, n uint64) {
	if m != nil {
		m.bytesTransferred.WithLabelValues(direction).Add(float64(n))
	}
}

// SetStage marks stage as running. An empty stage clears all.
func (m *Metrics) SetStage(stage string, stages []string) {
	if m == nil {
		return
	}
	for _, s := range stages {
		v := 0.0
		if s == stage {
			v = 1
		}
		m.currentStage.WithLabelValues(s).Set(v)
	}
}

// SetPendingItems sets the pending items gauge.
func (m *Metrics) SetPendingItems(n int) {
	if m != nil {
		m.pendingItems.Set(float64(n))
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. pending items).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
