package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IncrementDocument("fulfilled")
	m.IncrementDocument("fulfilled")
	m.IncrementDocument("failed")
	m.ObserveIdentifier("order_number", true)
	m.ObserveIdentifier("tracking_number", false)
	m.IncrementPatternHit("long_prefix")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Documents.WithLabelValues("fulfilled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Identifiers.WithLabelValues("order_number", "found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Identifiers.WithLabelValues("tracking_number", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderPatternHits.WithLabelValues("long_prefix")))
}

func TestMetrics_IndependentInstances(t *testing.T) {
	a := New()
	b := New()

	a.IncrementDocument("error")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Documents.WithLabelValues("error")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementDocument("fulfilled")
		m.ObserveIdentifier("order_number", true)
		m.IncrementPatternHit("six_digit")
		m.ObserveStage("ocr", time.Second)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveStage("ocr", 250*time.Millisecond)
	m.IncrementDocument("fulfilled")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `label_processor_documents_total{status="fulfilled"} 1`)
	assert.Contains(t, body, `label_processor_document_duration_seconds_count{stage="ocr"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
