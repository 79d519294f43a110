// Package leads defines the core data model and component contracts for the
// lead-generation pipeline. Keeping the types and interfaces in one package
// decouples the orchestration code from any concrete search, sheet, LLM, or
// storage implementation.
package leads

import "time"

// Priority ranks how aggressively a signal's results should be worked.
type Priority string

// Known priorities. The spreadsheet uses the Spanish markers verbatim.
const (
	PriorityHigh   Priority = "Alta"
	PriorityMedium Priority = "Media"
	PriorityLow    Priority = "Baja"
)

// ParsePriority maps a raw cell value onto a Priority, defaulting to Media.
func ParsePriority(raw string) Priority {
	switch Priority(raw) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(raw)
	default:
		return PriorityMedium
	}
}

// Platform identifies which social platform (if any) a card's URL belongs to.
type Platform string

// Recognized platforms. Web is the fallback for anything unmatched.
const (
	PlatformWeb       Platform = "Web"
	PlatformReddit    Platform = "Reddit"
	PlatformFacebook  Platform = "Facebook"
	PlatformLinkedIn  Platform = "LinkedIn"
	PlatformInstagram Platform = "Instagram"
	PlatformTwitter   Platform = "Twitter"
)

// Status tracks a card through its outreach lifecycle. Transitions beyond
// pending happen manually through the dashboard, not in this pipeline.
type Status string

// Card lifecycle states.
const (
	StatusPending   Status = "pending"
	StatusContacted Status = "contacted"
	StatusDiscarded Status = "discarded"
)

// Signal is one configured search query, read from the signal sheet.
type Signal struct {
	Query    string
	Priority Priority
	Origin   string
}

// SearchHit is a single raw search result. Hits are transient: they exist
// only between the search call and normalization.
type SearchHit struct {
	Title        string
	URL          string
	Snippet      string
	DiscoveredAt time.Time
}

// Enrichment holds the LLM-derived fields for a card. All fields are
// pointers: nil means the model could not determine a value. HasContactForm
// is tri-state (nil = unknown).
type Enrichment struct {
	Institution        *string
	Email              *string
	Phone              *string
	HasContactForm     *bool
	RecommendedChannel *string
	CommunicationDraft *string
}

// Card is the durable record for one candidate contact opportunity.
// URL is the natural key: stores enforce uniqueness on it and treat repeated
// inserts as no-ops. ID is assigned exactly once, at normalization.
type Card struct {
	ID      string
	Type    string
	Keyword string
	URL     string
	Title   string
	Snippet string

	Domain        string
	Platform      Platform
	Username      string
	Subreddit     string
	FacebookGroup string
	Priority      Priority

	// Enrichment fields stay nil until an LLM pass fills them. They are
	// written all together with Processed; never partially.
	Institution        *string
	Email              *string
	Phone              *string
	HasContactForm     *bool
	RecommendedChannel *string
	CommunicationDraft *string

	Status      Status
	Processed   bool
	DetectedAt  time.Time
	ContactedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApplyEnrichment copies enrichment fields onto the card and marks it
// processed. Used by in-memory stores and tests; SQL stores do the same in a
// single statement.
func (c *Card) ApplyEnrichment(e Enrichment, now time.Time) {
	c.Institution = e.Institution
	c.Email = e.Email
	c.Phone = e.Phone
	c.HasContactForm = e.HasContactForm
	c.RecommendedChannel = e.RecommendedChannel
	c.CommunicationDraft = e.CommunicationDraft
	c.Processed = true
	c.UpdatedAt = now
}

// RunReport aggregates the counters for one orchestration pass. This is the
// unit the trigger API reports and the test suite asserts on.
type RunReport struct {
	Signals      int `json:"signals"`
	Searches     int `json:"searches"`
	Hits         int `json:"hits"`
	Persisted    int `json:"persisted"`
	Duplicates   int `json:"duplicates"`
	Filtered     int `json:"filtered"`
	Errors       int `json:"errors"`
	Enriched     int `json:"enriched"`
	EnrichErrors int `json:"enrich_errors"`
}
