package leads

import (
	"context"
	"time"
)

// SignalSource yields the active search signals for a pass. Implementations
// log and return an empty slice on any read failure; they never error out,
// so a broken sheet degrades a run to a no-op instead of aborting it.
type SignalSource interface {
	ListSignals(ctx context.Context) []Signal
}

// Searcher executes one external search per query. Rate-limit and transport
// failures are logged and collapse to an empty result; pacing between
// consecutive calls is the caller's job.
type Searcher interface {
	Search(ctx context.Context, query string) []SearchHit
}

// Store is the persistence contract shared by all backends. Business logic
// never branches on which backend is behind it.
type Store interface {
	// Init creates the backing table/collection and indexes if absent.
	Init(ctx context.Context) error

	// ExistsByURL reports whether a card with this URL is already stored.
	ExistsByURL(ctx context.Context, url string) (bool, error)

	// InsertIfNew inserts the card unless its URL is already present.
	// A uniqueness-constraint race resolves to (false, nil): duplicate,
	// not error.
	InsertIfNew(ctx context.Context, card Card) (bool, error)

	// FetchPending returns unprocessed cards oldest-created first.
	// limit <= 0 means unbounded.
	FetchPending(ctx context.Context, limit int) ([]Card, error)

	// UpdateEnrichment applies all enrichment fields and flips processed to
	// true atomically. Returns false if no card matched the id.
	UpdateEnrichment(ctx context.Context, id string, e Enrichment) (bool, error)

	Close(ctx context.Context) error
}

// Clock returns the current time (seam for deterministic tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces card ids.
type IDGenerator interface {
	NewID() (string, error)
}
