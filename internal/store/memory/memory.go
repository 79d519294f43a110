// Package memory provides an in-memory card store for tests and dry runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/outreachlab/leadgen/internal/leads"
)

// Store implements leads.Store with a mutex-guarded map. Insertion order is
// tracked so FetchPending can honor oldest-created-first.
type Store struct {
	mu    sync.Mutex
	byURL map[string]*leads.Card
	order []string // urls in insertion order
	now   func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byURL: make(map[string]*leads.Card),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Init is a no-op for the memory backend.
func (s *Store) Init(context.Context) error { return nil }

// ExistsByURL reports whether a card with this URL is stored.
func (s *Store) ExistsByURL(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byURL[url]
	return ok, nil
}

// InsertIfNew stores the card unless the URL is already present.
func (s *Store) InsertIfNew(_ context.Context, card leads.Card) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[card.URL]; ok {
		return false, nil
	}
	stored := card
	s.byURL[card.URL] = &stored
	s.order = append(s.order, card.URL)
	return true, nil
}

// FetchPending returns unprocessed cards oldest-created first.
func (s *Store) FetchPending(_ context.Context, limit int) ([]leads.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []leads.Card
	for _, url := range s.order {
		card := s.byURL[url]
		if card.Processed {
			continue
		}
		out = append(out, *card)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UpdateEnrichment applies enrichment and flips processed in one step.
func (s *Store) UpdateEnrichment(_ context.Context, id string, e leads.Enrichment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, card := range s.byURL {
		if card.ID == id {
			card.ApplyEnrichment(e, s.now())
			return true, nil
		}
	}
	return false, nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Get returns a copy of the stored card for a URL (test helper).
func (s *Store) Get(url string) (leads.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.byURL[url]
	if !ok {
		return leads.Card{}, false
	}
	return *card, true
}

// Len returns the number of stored cards (test helper).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byURL)
}
