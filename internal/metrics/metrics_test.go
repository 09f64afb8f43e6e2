package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveBuild(ResultSuccess)
	m.ObserveBuild(ResultSuccess)
	m.ObserveBuild(ResultFailure)
	m.ObserveRun(ResultSuccess)
	m.ObserveStep("image", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.builds.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.builds.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.buildDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBuild(ResultSuccess)
		m.ObserveStep("image", time.Second)
		m.ObserveRun(ResultFailure)
		m.ObserveRequest("/", "2xx")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveBuild(ResultReused)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `preview_builds_total{result="reused"} 1`)
}
