package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outreachlab/leadgen/internal/leads"
)

func chatReply(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func newFakeLLM(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatReply(content))
	}))
}

func testCard() leads.Card {
	return leads.Card{
		ID:       "SIG-20260115-9f3c21ab",
		URL:      "https://ie.edu/housing",
		Title:    "Student Housing | IE University",
		Snippet:  "We help you find accommodation",
		Keyword:  "housing madrid",
		Domain:   "ie.edu",
		Platform: leads.PlatformWeb,
	}
}

func TestEnrichParsesFullReply(t *testing.T) {
	t.Parallel()

	server := newFakeLLM(t, `{
		"institution": "IE University",
		"email": "housing@ie.edu",
		"phone": "+34 915 689 600",
		"has_contact_form": true,
		"recommended_channel": "Email",
		"communication_draft": "Hello, I am an international student arriving in 2026..."
	}`)
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", Endpoint: server.URL})
	e, err := client.Enrich(context.Background(), testCard())
	require.NoError(t, err)

	require.Equal(t, "IE University", *e.Institution)
	require.Equal(t, "housing@ie.edu", *e.Email)
	require.Equal(t, "+34 915 689 600", *e.Phone)
	require.True(t, *e.HasContactForm)
	require.Equal(t, "email", *e.RecommendedChannel, "channel is lowercased")
	require.NotNil(t, e.CommunicationDraft)
}

func TestEnrichToleratesCodeFences(t *testing.T) {
	t.Parallel()

	server := newFakeLLM(t, "```json\n{\"institution\": \"IE University\", \"has_contact_form\": \"NO\"}\n```")
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", Endpoint: server.URL})
	e, err := client.Enrich(context.Background(), testCard())
	require.NoError(t, err)
	require.Equal(t, "IE University", *e.Institution)
	require.NotNil(t, e.HasContactForm)
	require.False(t, *e.HasContactForm)
	require.Nil(t, e.Email, "missing fields decode to nil")
	require.Nil(t, e.RecommendedChannel)
}

func TestEnrichMissingFieldsBecomeNil(t *testing.T) {
	t.Parallel()

	server := newFakeLLM(t, `{"communication_draft": "Hi there"}`)
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", Endpoint: server.URL})
	e, err := client.Enrich(context.Background(), testCard())
	require.NoError(t, err)
	require.Nil(t, e.Institution)
	require.Nil(t, e.Email)
	require.Nil(t, e.Phone)
	require.Nil(t, e.HasContactForm)
	require.Equal(t, "Hi there", *e.CommunicationDraft)
}

func TestEnrichMalformedJSONErrors(t *testing.T) {
	t.Parallel()

	server := newFakeLLM(t, "Sorry, I cannot answer that in JSON.")
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", Endpoint: server.URL})
	_, err := client.Enrich(context.Background(), testCard())
	require.Error(t, err)
}

func TestEnrichHTTPErrorPropagates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", Endpoint: server.URL})
	_, err := client.Enrich(context.Background(), testCard())
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestEnrichMissingAPIKey(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{})
	_, err := client.Enrich(context.Background(), testCard())
	require.Error(t, err)
}

func TestParseTriStateVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want *bool
	}{
		{true, boolPtr(true)},
		{false, boolPtr(false)},
		{"SI", boolPtr(true)},
		{"sí", boolPtr(true)},
		{"YES", boolPtr(true)},
		{"no", boolPtr(false)},
		{"maybe", nil},
		{nil, nil},
		{float64(1), nil},
	}
	for _, tc := range cases {
		got := parseTriState(tc.in)
		if tc.want == nil {
			require.Nil(t, got, "input %v", tc.in)
		} else {
			require.NotNil(t, got, "input %v", tc.in)
			require.Equal(t, *tc.want, *got, "input %v", tc.in)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
