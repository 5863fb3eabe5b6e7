package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/cleanskies/tempo-validation-service/internal/adapter/http"
	"github.com/cleanskies/tempo-validation-service/internal/report"
)

type mockRunner struct {
	err error
	rep *report.ValidationReport
}

func (m *mockRunner) CheckReadiness(_ context.Context) error { return m.err }
func (m *mockRunner) LatestReport() *report.ValidationReport { return m.rep }

func newTestServer(runner *mockRunner) *httpadapter.Server {
	return httpadapter.NewServer(":0", runner, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(&mockRunner{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenRunComplete(t *testing.T) {
	srv := newTestServer(&mockRunner{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503DuringRun(t *testing.T) {
	srv := newTestServer(&mockRunner{err: fmt.Errorf("validation run in progress")})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "validation run in progress", body["error"])
}

func TestReportReturns404BeforeRunCompletes(t *testing.T) {
	srv := newTestServer(&mockRunner{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/report", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportServesCompletedReport(t *testing.T) {
	rep := &report.ValidationReport{
		RunID: "run-1",
		Groups: []report.GroupReport{{
			GroupKey: report.GroupKey{Region: "Toronto", Pollutant: "no2"},
			Status:   report.StatusValidated,
		}},
	}
	srv := newTestServer(&mockRunner{rep: rep})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/report", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var got report.ValidationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Groups, 1)
	assert.Equal(t, "Toronto", got.Groups[0].Region)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockRunner{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
