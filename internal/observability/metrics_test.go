package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	m := NewMetrics("test_helpers")
	old := DefaultMetrics
	DefaultMetrics = m
	defer func() { DefaultMetrics = old }()

	RecordToken("updated")
	RecordToken("updated")
	RecordToken("failed")
	RecordCacheLookup("birdeye", true)
	RecordCacheLookup("birdeye", false)
	RecordProviderAttempt("dexscreener", errors.New("boom"))
	RecordBreakerState("birdeye", "open", 2)
	RecordDBQuery("sqlite", "checkpoint", 0.01, errors.New("locked"))
	UpdateDeadLetterSize(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TokensProcessed.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensProcessed.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("birdeye", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("dexscreener", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("birdeye")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DBQueryErrors.WithLabelValues("sqlite", "checkpoint")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DeadLetterSize))
}

func TestPushMetrics(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewMetrics("test_push")
	m.TokensProcessed.WithLabelValues("updated").Inc()

	require.NoError(t, PushMetrics(context.Background(), m, server.URL, "tracker_job"))
	assert.Equal(t, "/metrics/job/tracker_job", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPushMetrics_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := PushMetrics(context.Background(), NewMetrics("test_push_err"), server.URL, "job")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "push metrics"))
}
