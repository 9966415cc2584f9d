package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(WritesTotal.WithLabelValues("patch", "success"))
	RecordWrite("patch", "success", 25*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(WritesTotal.WithLabelValues("patch", "success")))

	rejectedBefore := testutil.ToFloat64(EventsTotal.WithLabelValues("rejected"))
	RecordRejected("invalid_path")
	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(EventsTotal.WithLabelValues("rejected")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(EventsRejectedTotal.WithLabelValues("invalid_path")), 1.0)

	SetCircuitBreakerState("firebase", "open")
	assert.Equal(t, 2.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("firebase")))
	SetCircuitBreakerState("firebase", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("firebase")))

	SetComponentHealth("output", "firebase", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(ComponentHealth.WithLabelValues("output", "firebase")))
}

func TestMetricsServerExposesCollectors(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	server := NewMetricsServer(":0", "/metrics", logger)
	NewMetricsServer(":0", "/metrics", logger) // registering twice must not panic

	RecordRetry("put")
	RecordAuthRefresh()

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "firebase_output_write_retries_total")
	assert.Contains(t, string(body), "firebase_output_auth_token_refresh_total")

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
