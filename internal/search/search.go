// Package search executes web searches through the Google Custom Search API.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/outreachlab/leadgen/internal/leads"
)

// maxAPIResults is the hard per-call cap enforced upstream.
const maxAPIResults = 10

// Config controls the search executor.
type Config struct {
	APIKey     string
	EngineID   string
	NumResults int

	// Endpoint overrides the API base URL (tests only).
	Endpoint string
}

// Executor implements leads.Searcher over the Custom Search JSON API.
// It is deliberately pure: pacing between consecutive calls belongs to the
// orchestrator, not here.
type Executor struct {
	svc      *customsearch.Service
	engineID string
	num      int64
	clock    leads.Clock
	logger   *zap.Logger
}

// New builds an Executor.
func New(ctx context.Context, cfg Config, clock leads.Clock, logger *zap.Logger) (*Executor, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create customsearch service: %w", err)
	}

	num := cfg.NumResults
	if num < 1 || num > maxAPIResults {
		num = maxAPIResults
	}

	return &Executor{
		svc:      svc,
		engineID: cfg.EngineID,
		num:      int64(num),
		clock:    clock,
		logger:   logger,
	}, nil
}

// Search issues one search and returns its hits. All failure modes collapse
// to an empty slice: a 429 means the daily quota is gone and the caller can
// simply re-run later, and any other error loses one signal's results, not
// the whole pass.
func (e *Executor) Search(ctx context.Context, query string) []leads.SearchHit {
	resp, err := e.svc.Cse.List().Cx(e.engineID).Q(query).Num(e.num).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			e.logger.Warn("search quota exceeded", zap.String("query", query))
			return nil
		}
		e.logger.Error("search request failed", zap.String("query", query), zap.Error(err))
		return nil
	}

	now := e.clock.Now()
	hits := make([]leads.SearchHit, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Link == "" {
			continue
		}
		hits = append(hits, leads.SearchHit{
			Title:        item.Title,
			URL:          item.Link,
			Snippet:      item.Snippet,
			DiscoveredAt: now,
		})
	}

	e.logger.Debug("search completed", zap.String("query", query), zap.Int("hits", len(hits)))
	return hits
}
