package enrich

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outreachlab/leadgen/internal/leads"
	"github.com/outreachlab/leadgen/internal/metrics"
	"github.com/outreachlab/leadgen/internal/store/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// scriptedEnricher fails for URLs listed in failures and otherwise returns
// a fixed enrichment.
type scriptedEnricher struct {
	failures map[string]bool
	calls    []string
}

func (s *scriptedEnricher) Enrich(_ context.Context, card leads.Card) (leads.Enrichment, error) {
	s.calls = append(s.calls, card.URL)
	if s.failures[card.URL] {
		return leads.Enrichment{}, errors.New("model unavailable")
	}
	institution := "IE University"
	channel := "email"
	return leads.Enrichment{Institution: &institution, RecommendedChannel: &channel}, nil
}

func seedPending(t *testing.T, store *memory.Store, n int) []string {
	t.Helper()
	urls := make([]string, 0, n)
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("https://example.com/page-%d", i)
		inserted, err := store.InsertIfNew(context.Background(), leads.Card{
			ID:        fmt.Sprintf("SIG-20260115-%08d", i),
			URL:       url,
			Title:     "Madrid housing",
			Status:    leads.StatusPending,
			CreatedAt: time.Date(2026, 1, 15, 10, 0, i, 0, time.UTC),
		})
		require.NoError(t, err)
		require.True(t, inserted)
		urls = append(urls, url)
	}
	return urls
}

func TestEnrichBatchSkipsFailedCard(t *testing.T) {
	t.Parallel()

	store := memory.New()
	urls := seedPending(t, store, 3)

	llm := &scriptedEnricher{failures: map[string]bool{urls[1]: true}}
	enricher := NewEnricher(store, llm, 0, zap.NewNop())

	stats := enricher.EnrichBatch(context.Background(), 0)
	require.Equal(t, Stats{Enriched: 2, Errors: 1}, stats)
	require.Equal(t, urls, llm.calls, "every pending card gets one attempt")

	first, _ := store.Get(urls[0])
	require.True(t, first.Processed)
	require.Equal(t, "IE University", *first.Institution)

	failed, _ := store.Get(urls[1])
	require.False(t, failed.Processed, "failed card stays pending for the next pass")
	require.Nil(t, failed.Institution)

	pending, err := store.FetchPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, urls[1], pending[0].URL)
}

func TestEnrichBatchHonorsLimit(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedPending(t, store, 5)

	llm := &scriptedEnricher{}
	enricher := NewEnricher(store, llm, 0, zap.NewNop())

	stats := enricher.EnrichBatch(context.Background(), 2)
	require.Equal(t, Stats{Enriched: 2}, stats)
	require.Len(t, llm.calls, 2)

	pending, err := store.FetchPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
}

func TestEnrichBatchNothingPending(t *testing.T) {
	t.Parallel()

	store := memory.New()
	llm := &scriptedEnricher{}
	enricher := NewEnricher(store, llm, 0, zap.NewNop())

	stats := enricher.EnrichBatch(context.Background(), 10)
	require.Equal(t, Stats{}, stats)
	require.Empty(t, llm.calls)
}

// failingStore wraps the in-memory store and rejects enrichment updates.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) UpdateEnrichment(context.Context, string, leads.Enrichment) (bool, error) {
	return false, errors.New("write failed")
}

func TestEnrichBatchCountsStoreFailures(t *testing.T) {
	t.Parallel()

	inner := memory.New()
	seedPending(t, inner, 2)

	llm := &scriptedEnricher{}
	enricher := NewEnricher(&failingStore{Store: inner}, llm, 0, zap.NewNop())

	stats := enricher.EnrichBatch(context.Background(), 0)
	require.Equal(t, Stats{Errors: 2}, stats)

	pending, err := inner.FetchPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 2, "cards stay pending when the write fails")
}
