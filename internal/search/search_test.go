package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testClock = fixedClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}

func newExecutor(t *testing.T, serverURL string, num int) *Executor {
	t.Helper()
	exec, err := New(context.Background(), Config{
		APIKey:     "test-key",
		EngineID:   "cse-1",
		NumResults: num,
		Endpoint:   serverURL + "/",
	}, testClock, zap.NewNop())
	require.NoError(t, err)
	return exec
}

func TestSearchReturnsHits(t *testing.T) {
	t.Parallel()

	var gotQuery, gotCx, gotNum string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCx = r.URL.Query().Get("cx")
		gotNum = r.URL.Query().Get("num")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{
				{"title": "Housing thread", "link": "https://reddit.com/r/MBA/x", "snippet": "looking for a flat"},
				{"title": "no link, dropped"},
				{"title": "IE services", "link": "https://ie.edu/housing", "snippet": "student services"},
			},
		})
	}))
	defer server.Close()

	hits := newExecutor(t, server.URL, 5).Search(context.Background(), "housing madrid")
	require.Len(t, hits, 2)
	require.Equal(t, "housing madrid", gotQuery)
	require.Equal(t, "cse-1", gotCx)
	require.Equal(t, "5", gotNum)
	require.Equal(t, "Housing thread", hits[0].Title)
	require.Equal(t, "https://reddit.com/r/MBA/x", hits[0].URL)
	require.Equal(t, testClock.t, hits[0].DiscoveredAt)
}

func TestSearchCapsResultCount(t *testing.T) {
	t.Parallel()

	var gotNum string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotNum = r.URL.Query().Get("num")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	}))
	defer server.Close()

	newExecutor(t, server.URL, 50).Search(context.Background(), "q")
	require.Equal(t, "10", gotNum, "upstream cap of 10 enforced")
}

func TestSearchRateLimitedReturnsEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded"}}`))
	}))
	defer server.Close()

	hits := newExecutor(t, server.URL, 10).Search(context.Background(), "q")
	require.Empty(t, hits)
}

func TestSearchServerErrorReturnsEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	hits := newExecutor(t, server.URL, 10).Search(context.Background(), "q")
	require.Empty(t, hits)
}

func TestSearchNoItemsReturnsEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	hits := newExecutor(t, server.URL, 10).Search(context.Background(), "q")
	require.Empty(t, hits)
}
