// Package pipeline runs one end-to-end lead generation pass: signals in,
// enriched cards out.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/outreachlab/leadgen/internal/enrich"
	"github.com/outreachlab/leadgen/internal/filter"
	"github.com/outreachlab/leadgen/internal/leads"
	"github.com/outreachlab/leadgen/internal/metrics"
	"github.com/outreachlab/leadgen/internal/normalize"
)

// BatchEnricher processes pending cards after a pass has persisted new ones.
type BatchEnricher interface {
	EnrichBatch(ctx context.Context, limit int) enrich.Stats
}

// Options carries the per-run knobs the runner needs.
type Options struct {
	// SignalLimit caps how many signals a single pass consumes, in sheet
	// order. Zero or negative means all of them.
	SignalLimit int

	// EnrichLimit caps how many pending cards one pass enriches.
	// Zero or negative means all of them.
	EnrichLimit int

	// SearchPace is the minimum gap between consecutive search calls.
	// Zero disables pacing.
	SearchPace time.Duration
}

// Runner wires the pipeline stages together. One Runner is built at startup
// and reused across triggered passes; a pass itself is single-flight, which
// the HTTP layer enforces.
type Runner struct {
	source     leads.SignalSource
	searcher   leads.Searcher
	normalizer *normalize.Normalizer
	store      leads.Store
	enricher   BatchEnricher
	limiter    *rate.Limiter
	clock      leads.Clock
	opts       Options
	logger     *zap.Logger
}

// NewRunner builds a Runner from its stages.
func NewRunner(source leads.SignalSource, searcher leads.Searcher, normalizer *normalize.Normalizer,
	store leads.Store, enricher BatchEnricher, clock leads.Clock, opts Options, logger *zap.Logger) *Runner {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.SearchPace > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.SearchPace), 1)
	}
	return &Runner{
		source:     source,
		searcher:   searcher,
		normalizer: normalizer,
		store:      store,
		enricher:   enricher,
		limiter:    limiter,
		clock:      clock,
		opts:       opts,
		logger:     logger,
	}
}

// Run executes one full pass and reports what happened. A pass never aborts
// on per-item failures: search misses collapse to zero hits, store errors are
// counted, and the remaining work continues.
func (r *Runner) Run(ctx context.Context) leads.RunReport {
	started := r.clock.Now()
	var report leads.RunReport

	signals := r.source.ListSignals(ctx)
	if r.opts.SignalLimit > 0 && len(signals) > r.opts.SignalLimit {
		signals = signals[:r.opts.SignalLimit]
	}
	report.Signals = len(signals)
	r.logger.Info("pass started", zap.Int("signals", len(signals)))

	for _, signal := range signals {
		if err := r.limiter.Wait(ctx); err != nil {
			r.logger.Warn("pass interrupted", zap.Error(err))
			break
		}

		hits := r.searcher.Search(ctx, signal.Query)
		report.Searches++
		report.Hits += len(hits)
		if len(hits) == 0 {
			metrics.ObserveSearch("empty")
			continue
		}
		metrics.ObserveSearch("ok")

		for _, card := range r.normalizer.Normalize(hits, signal.Query, signal.Priority) {
			keep, reason := filter.ShouldPersist(card)
			if !keep {
				report.Filtered++
				metrics.ObserveCard("filtered")
				r.logger.Debug("card filtered",
					zap.String("url", card.URL),
					zap.String("reason", reason))
				continue
			}

			inserted, err := r.store.InsertIfNew(ctx, card)
			if err != nil {
				report.Errors++
				metrics.ObserveCard("error")
				r.logger.Error("persist card",
					zap.String("url", card.URL),
					zap.Error(err))
				continue
			}
			if inserted {
				report.Persisted++
				metrics.ObserveCard("persisted")
			} else {
				report.Duplicates++
				metrics.ObserveCard("duplicate")
			}
		}
	}

	if report.Persisted > 0 {
		stats := r.enricher.EnrichBatch(ctx, r.opts.EnrichLimit)
		report.Enriched = stats.Enriched
		report.EnrichErrors = stats.Errors
	}

	duration := r.clock.Now().Sub(started)
	outcome := "ok"
	if report.Errors > 0 || report.EnrichErrors > 0 {
		outcome = "partial"
	}
	metrics.ObserveRun(outcome, duration)

	r.logger.Info("pass finished",
		zap.Int("signals", report.Signals),
		zap.Int("hits", report.Hits),
		zap.Int("persisted", report.Persisted),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("filtered", report.Filtered),
		zap.Int("errors", report.Errors),
		zap.Int("enriched", report.Enriched),
		zap.Int("enrich_errors", report.EnrichErrors),
		zap.Duration("duration", duration))

	return report
}
