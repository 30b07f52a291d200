package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.PageFetched("C1")
	m.PageFetched("C1")
	m.TransientRetry("C1")
	m.Harvested("C1", 5, 2)
	m.Classified("Sentry")
	m.RunFinished("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesFetched.WithLabelValues("C1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransientRetries.WithLabelValues("C1")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.MessagesHarvested.WithLabelValues("C1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DuplicatesDropped.WithLabelValues("C1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesByType.WithLabelValues("Sentry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PageFetched("C1")
		m.TransientRetry("C1")
		m.Harvested("C1", 1, 0)
		m.Classified("custom")
		m.RunFinished("failed")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.PageFetched("C9")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `harvest_pages_fetched_total{channel="C9"} 1`)
}
