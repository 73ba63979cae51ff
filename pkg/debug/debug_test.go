package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// Tests in this file share package state and do not run in parallel.

func getReady(t *testing.T, mux *http.ServeMux) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var body struct {
		Ready   bool              `json:"ready"`
		Failing map[string]string `json:"failing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, rec.Code == http.StatusOK, body.Ready)
	return rec.Code, body.Failing
}

func TestReady(t *testing.T) {
	t.Cleanup(func() {
		SetNotReady()
		RemoveReadyCheck("store")
	})
	mux := NewMux()

	SetNotReady()
	code, failing := getReady(t, mux)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not started", failing["server"])

	SetReady()
	code, _ = getReady(t, mux)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, IsReady(context.Background()))

	AddReadyCheck("store", func(context.Context) error { return errors.New("bucket unreachable") })
	code, failing = getReady(t, mux)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"store": "bucket unreachable"}, failing)

	AddReadyCheck("store", func(context.Context) error { return nil })
	code, _ = getReady(t, mux)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthAndMetrics(t *testing.T) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "zapupload_debug_test_total", Help: "test"})
	require.NoError(t, Registry().Register(c))
	t.Cleanup(func() { globalRegistry.Unregister(c) })
	c.Inc()

	RegisterHandlerFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("dev"))
	})
	t.Cleanup(func() {
		customHandlersMu.Lock()
		delete(customHandlers, "/version")
		customHandlersMu.Unlock()
	})

	mux := http.NewServeMux()
	Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zapupload_debug_test_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	families, err := Gatherer().Gather()
	require.NoError(t, err)
	mf := findFamily(families, "zapupload_debug_test_total")
	require.NotNil(t, mf)
	assert.Equal(t, dto.MetricType_COUNTER, mf.GetType())
	assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, "dev", rec.Body.String())
}
