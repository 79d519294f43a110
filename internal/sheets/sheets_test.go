package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outreachlab/leadgen/internal/leads"
)

func newFakeSheets(t *testing.T, values map[string][][]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Path shape: /v4/spreadsheets/{id}/values/{range}
		parts := strings.Split(r.URL.Path, "/values/")
		require.Len(t, parts, 2)
		rangeName := parts[1]

		vals, ok := values[rangeName]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"range":  rangeName,
			"values": vals,
		})
	}))
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := New(context.Background(), Config{
		APIKey:        "test-key",
		SpreadsheetID: "sheet-1",
		SignalsRange:  "Signals!A2:E",
		KeysRange:     "Claves!A:B",
		Endpoint:      serverURL + "/",
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestListSignals(t *testing.T) {
	t.Parallel()

	server := newFakeSheets(t, map[string][][]any{
		"Signals!A2:E": {
			{"1", "housing madrid 2026", "Alta", "SÍ", "core"},
			{"2", "student flats madrid", "Media", "NO", ""},
			{"3", "ie university housing", "Baja", "SI"},
			{"4", "too short", "SÍ"},
			{"5", "   ", "Alta", "SÍ", "blank query"},
			{"6", "rooms near ie", "whatever", "yes", "bad priority"},
		},
	})
	defer server.Close()

	signals := newTestClient(t, server.URL).ListSignals(context.Background())
	require.Len(t, signals, 3)

	require.Equal(t, "housing madrid 2026", signals[0].Query)
	require.Equal(t, leads.PriorityHigh, signals[0].Priority)
	require.Equal(t, "signals-sheet", signals[0].Origin)

	require.Equal(t, "ie university housing", signals[1].Query)
	require.Equal(t, leads.PriorityLow, signals[1].Priority)

	// Unrecognized priority falls back to Media; lowercase "yes" counts.
	require.Equal(t, "rooms near ie", signals[2].Query)
	require.Equal(t, leads.PriorityMedium, signals[2].Priority)
}

func TestListSignalsReadFailureReturnsEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	signals := newTestClient(t, server.URL).ListSignals(context.Background())
	require.Empty(t, signals)
}

func TestFetchKeys(t *testing.T) {
	t.Parallel()

	server := newFakeSheets(t, map[string][][]any{
		"Claves!A:B": {
			{"SIGNAL_LIMIT", "3"},
			{"ENRICHMENT_LIMIT", "25"},
			{"lonely"},
			{"", "orphan value"},
			{"SYSTEM_PROMPT", " You help students. "},
		},
	})
	defer server.Close()

	keys := newTestClient(t, server.URL).FetchKeys(context.Background())
	require.Equal(t, map[string]string{
		"SIGNAL_LIMIT":     "3",
		"ENRICHMENT_LIMIT": "25",
		"SYSTEM_PROMPT":    "You help students.",
	}, keys)
}

func TestFetchKeysFailureReturnsEmptyMap(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	keys := newTestClient(t, server.URL).FetchKeys(context.Background())
	require.NotNil(t, keys)
	require.Empty(t, keys)
}
