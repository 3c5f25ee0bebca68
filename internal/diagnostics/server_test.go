package diagnostics

import (
	"log"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightpath-dev/sentinel-core/internal/config"
	"github.com/flightpath-dev/sentinel-core/internal/metrics"
)

type fixedStatus struct{ report StatusReport }

func (f fixedStatus) Status() StatusReport { return f.report }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Diagnostics.Host = "127.0.0.1"
	cfg.Diagnostics.Port = 8090
	cfg.Diagnostics.CORSOrigins = []string{"*"}
	return cfg
}

func TestHealthzReturnsOK(t *testing.T) {
	s := New(testConfig(), log.Default(), metrics.NewCollector(), nil)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.buildHandler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestStatusServesProviderReport(t *testing.T) {
	provider := fixedStatus{report: StatusReport{Mode: "RECONNAISSANCE", TrackerState: "TRACKING"}}
	s := New(testConfig(), log.Default(), metrics.NewCollector(), provider)

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	s.buildHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "RECONNAISSANCE")
	assert.Contains(t, rec.Body.String(), "TRACKING")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := New(testConfig(), log.Default(), metrics.NewCollector(), nil)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.buildHandler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}
