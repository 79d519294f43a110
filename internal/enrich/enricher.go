package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/outreachlab/leadgen/internal/leads"
	"github.com/outreachlab/leadgen/internal/metrics"
)

// Stats summarizes one enrichment batch.
type Stats struct {
	Enriched int
	Errors   int
}

// Enricher drains pending cards through the LLM and writes the results
// back. Cards that fail stay pending; the next batch picks them up again.
type Enricher struct {
	store   leads.Store
	client  CardEnricher
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewEnricher constructs an Enricher. pace is the minimum delay between
// consecutive LLM calls; zero disables pacing (tests).
func NewEnricher(store leads.Store, client CardEnricher, pace time.Duration, logger *zap.Logger) *Enricher {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if pace > 0 {
		limiter = rate.NewLimiter(rate.Every(pace), 1)
	}
	return &Enricher{
		store:   store,
		client:  client,
		limiter: limiter,
		logger:  logger,
	}
}

// EnrichBatch fetches up to limit pending cards (oldest first) and enriches
// them one at a time. Every failure mode skips the card and moves on:
// a single malformed model reply must not stall the rest of the batch.
// There is no in-batch retry.
func (e *Enricher) EnrichBatch(ctx context.Context, limit int) Stats {
	var stats Stats

	cards, err := e.store.FetchPending(ctx, limit)
	if err != nil {
		e.logger.Error("fetch pending cards", zap.Error(err))
		stats.Errors++
		return stats
	}
	if len(cards) == 0 {
		e.logger.Info("no pending cards to enrich")
		return stats
	}

	e.logger.Info("enriching pending cards", zap.Int("count", len(cards)), zap.Int("limit", limit))

	for _, card := range cards {
		if err := e.limiter.Wait(ctx); err != nil {
			e.logger.Warn("enrichment pass interrupted", zap.Error(err))
			stats.Errors++
			return stats
		}

		enrichment, err := e.client.Enrich(ctx, card)
		if err != nil {
			e.logger.Warn("enrich card failed, card stays pending",
				zap.String("id", card.ID),
				zap.String("url", truncate(card.URL, 60)),
				zap.Error(err))
			stats.Errors++
			metrics.ObserveEnrichment("llm_error")
			continue
		}

		ok, err := e.store.UpdateEnrichment(ctx, card.ID, enrichment)
		if err != nil {
			e.logger.Error("store enrichment failed, card stays pending",
				zap.String("id", card.ID),
				zap.String("url", truncate(card.URL, 60)),
				zap.Error(err))
			stats.Errors++
			metrics.ObserveEnrichment("store_error")
			continue
		}
		if !ok {
			e.logger.Warn("card disappeared before enrichment update", zap.String("id", card.ID))
			stats.Errors++
			metrics.ObserveEnrichment("store_error")
			continue
		}

		stats.Enriched++
		metrics.ObserveEnrichment("ok")
	}

	e.logger.Info("enrichment batch done",
		zap.Int("enriched", stats.Enriched),
		zap.Int("errors", stats.Errors))
	return stats
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
