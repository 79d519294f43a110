package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outreachlab/leadgen/internal/leads"
	"github.com/outreachlab/leadgen/internal/metrics"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// blockingRunner holds a pass open until release is closed.
type blockingRunner struct {
	release chan struct{}
	report  leads.RunReport
}

func (b *blockingRunner) Run(context.Context) leads.RunReport {
	if b.release != nil {
		<-b.release
	}
	return b.report
}

func newTestServer(runner Runner) *Server {
	metrics.Init()
	return NewServer(runner, fixedClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}, zap.NewNop())
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type statusResponse struct {
	IsRunning bool       `json:"is_running"`
	LastRun   *RunStatus `json:"last_run"`
}

func getStatus(t *testing.T, s *Server) statusResponse {
	t.Helper()
	rec := doRequest(t, s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(&blockingRunner{})
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/healthz").Code)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/readyz").Code)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/metrics").Code)
}

func TestStatusBeforeFirstRun(t *testing.T) {
	t.Parallel()

	s := newTestServer(&blockingRunner{})
	resp := getStatus(t, s)
	require.False(t, resp.IsRunning)
	require.Nil(t, resp.LastRun)
}

func TestRunSearchRejectsConcurrentTrigger(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	runner := &blockingRunner{
		release: release,
		report:  leads.RunReport{Signals: 2, Persisted: 3, Enriched: 3},
	}
	s := newTestServer(runner)

	first := doRequest(t, s, http.MethodPost, "/api/run-search")
	require.Equal(t, http.StatusAccepted, first.Code)

	second := doRequest(t, s, http.MethodPost, "/api/run-search")
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "busy")

	require.True(t, getStatus(t, s).IsRunning)

	close(release)
	require.Eventually(t, func() bool {
		return !getStatus(t, s).IsRunning
	}, time.Second, 10*time.Millisecond)

	resp := getStatus(t, s)
	require.NotNil(t, resp.LastRun)
	require.Equal(t, "completed", resp.LastRun.Status)
	require.Equal(t, runner.report, resp.LastRun.Output)

	// The busy flag is released; a new pass can start.
	runner.release = nil
	third := doRequest(t, s, http.MethodPost, "/api/run-search")
	require.Equal(t, http.StatusAccepted, third.Code)
}

func TestRunSearchReportsPartialFailure(t *testing.T) {
	t.Parallel()

	runner := &blockingRunner{report: leads.RunReport{Persisted: 1, Errors: 2, EnrichErrors: 1}}
	s := newTestServer(runner)

	rec := doRequest(t, s, http.MethodPost, "/api/run-search")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		resp := getStatus(t, s)
		return !resp.IsRunning && resp.LastRun != nil
	}, time.Second, 10*time.Millisecond)

	resp := getStatus(t, s)
	require.Equal(t, "completed_with_errors", resp.LastRun.Status)
	require.Contains(t, resp.LastRun.Message, "2 store errors")
	require.Contains(t, resp.LastRun.Message, "1 enrichment errors")
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	t.Parallel()

	s := newTestServer(&blockingRunner{})
	rec := doRequest(t, s, http.MethodGet, "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
