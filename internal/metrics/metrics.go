package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for label processing.
type Metrics struct {
	registry *prometheus.Registry

	// Documents by final status
	Documents *prometheus.CounterVec

	// Identifier recognition outcomes by kind ("order_number", "tracking_number")
	Identifiers *prometheus.CounterVec

	// Which cascade entry produced each accepted order number
	OrderPatternHits *prometheus.CounterVec

	// Stage latency: ocr, extract, fulfill, total
	DocumentDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered on its own registry, along
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Documents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "label_processor_documents_total",
			Help: "Total label documents processed by final status",
		}, []string{"status"}),

		Identifiers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "label_processor_identifiers_total",
			Help: "Identifier recognition outcomes by kind",
		}, []string{"kind", "outcome"}), // outcome: "found", "not_found"

		OrderPatternHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "label_processor_order_pattern_hits_total",
			Help: "Accepted order numbers by the cascade pattern that produced them",
		}, []string{"pattern"}),

		DocumentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "label_processor_document_duration_seconds",
			Help:    "Duration of document processing stages",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
	}
}

// IncrementDocument records a document's final status.
func (m *Metrics) IncrementDocument(status string) {
	if m != nil {
		m.Documents.WithLabelValues(status).Inc()
	}
}

// ObserveIdentifier records whether an identifier of the given kind was found.
func (m *Metrics) ObserveIdentifier(kind string, found bool) {
	if m == nil {
		return
	}
	outcome := "not_found"
	if found {
		outcome = "found"
	}
	m.Identifiers.WithLabelValues(kind, outcome).Inc()
}

// IncrementPatternHit records the cascade entry that matched.
func (m *Metrics) IncrementPatternHit(pattern string) {
	if m != nil {
		m.OrderPatternHits.WithLabelValues(pattern).Inc()
	}
}

// ObserveStage records the duration of one processing stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.DocumentDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
