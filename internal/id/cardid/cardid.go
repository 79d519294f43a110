// Package cardid generates card identifiers.
//
// Ids look like SIG-20260115-9f3c21ab: a date stamp for eyeballing age in the
// dashboard plus a random uuid fragment so concurrent runs never need to
// coordinate.
package cardid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const prefix = "SIG"

// Generator creates date-stamped card ids.
type Generator struct {
	now func() time.Time
}

// New creates a Generator using the real clock.
func New() *Generator {
	return &Generator{now: func() time.Time { return time.Now().UTC() }}
}

// NewWithClock creates a Generator with an injected time source for tests.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// NewID returns a fresh card id.
func (g *Generator) NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, g.now().Format("20060102"), u.String()[:8]), nil
}
