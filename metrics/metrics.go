package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the enrichment service.
// All recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	Registry            *prometheus.Registry
	FetchRequestsTotal  *prometheus.CounterVec
	FetchErrorsTotal    *prometheus.CounterVec
	StageItemsTotal     *prometheus.CounterVec
	LLMTokensTotal      prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration prometheus.Histogram
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetchRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_fetch_requests_total",
			Help: "Page fetches issued per candidate URL, by outcome.",
		},
		[]string{"outcome"},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_fetch_errors_total",
			Help: "Failed page fetches by error type.",
		},
		[]string{"error_type"},
	)
	stageItems := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_stage_items_total",
			Help: "Items handled by enrichment stages, by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)
	llmTokens := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enricher_llm_tokens_total",
			Help: "Output tokens generated by the language model.",
		},
	)
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_http_requests_total",
			Help: "API requests served, by method and status.",
		},
		[]string{"method", "status"},
	)
	httpDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enricher_http_request_duration_seconds",
			Help:    "API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(fetchRequests, fetchErrors, stageItems, llmTokens, httpRequests, httpDuration)

	return &Metrics{
		Registry:            registry,
		FetchRequestsTotal:  fetchRequests,
		FetchErrorsTotal:    fetchErrors,
		StageItemsTotal:     stageItems,
		LLMTokensTotal:      llmTokens,
		HTTPRequestsTotal:   httpRequests,
		HTTPRequestDuration: httpDuration,
	}
}

// IncFetch counts one candidate fetch.
func (m *Metrics) IncFetch(outcome string) {
	if m == nil {
		return
	}
	m.FetchRequestsTotal.WithLabelValues(outcome).Inc()
}

// IncFetchError counts a failed fetch under its error type label.
func (m *Metrics) IncFetchError(errorType string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncStageItem counts an item handled by a stage.
func (m *Metrics) IncStageItem(stage, outcome string) {
	if m == nil {
		return
	}
	m.StageItemsTotal.WithLabelValues(stage, outcome).Inc()
}

// AddTokens adds generated output tokens.
func (m *Metrics) AddTokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LLMTokensTotal.Add(float64(n))
}

// ObserveRequest records one served API request.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
