// Package normalize converts raw search hits into canonical cards.
package normalize

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/outreachlab/leadgen/internal/leads"
)

// platformDomains maps domain substrings to platforms. Checked in order;
// first match wins, everything else is plain Web.
var platformDomains = []struct {
	fragment string
	platform leads.Platform
}{
	{"reddit.com", leads.PlatformReddit},
	{"facebook.com", leads.PlatformFacebook},
	{"linkedin.com", leads.PlatformLinkedIn},
	{"instagram.com", leads.PlatformInstagram},
	{"twitter.com", leads.PlatformTwitter},
	{"x.com", leads.PlatformTwitter},
}

// Normalizer derives card fields from raw hits and stamps identity.
type Normalizer struct {
	ids    leads.IDGenerator
	clock  leads.Clock
	logger *zap.Logger
}

// New constructs a Normalizer.
func New(ids leads.IDGenerator, clock leads.Clock, logger *zap.Logger) *Normalizer {
	return &Normalizer{ids: ids, clock: clock, logger: logger}
}

// Normalize deduplicates the batch by URL (first occurrence wins) and builds
// a pending card per surviving hit. The in-batch dedupe does not replace the
// store-level URL uniqueness check: historical duplicates are caught there.
func (n *Normalizer) Normalize(hits []leads.SearchHit, keyword string, priority leads.Priority) []leads.Card {
	cards := make([]leads.Card, 0, len(hits))
	seen := make(map[string]bool, len(hits))

	for _, hit := range hits {
		if hit.URL == "" || seen[hit.URL] {
			continue
		}
		seen[hit.URL] = true

		id, err := n.ids.NewID()
		if err != nil {
			n.logger.Error("generate card id", zap.Error(err), zap.String("url", truncate(hit.URL, 80)))
			continue
		}

		domain := extractDomain(hit.URL)
		platform := detectPlatform(domain)
		now := n.clock.Now()

		title := hit.Title
		if title == "" {
			title = "Untitled"
		}

		cards = append(cards, leads.Card{
			ID:         id,
			Type:       "search",
			Keyword:    keyword,
			URL:        hit.URL,
			Title:      title,
			Snippet:    hit.Snippet,
			Domain:     domain,
			Platform:   platform,
			Username:   extractUsername(hit.URL, platform),
			Subreddit:  extractSubreddit(hit.URL, platform),
			Priority:   priority,
			Status:     leads.StatusPending,
			Processed:  false,
			DetectedAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	return cards
}

// extractDomain returns the host portion of a URL with any www. prefix
// stripped; empty string on parse failure.
func extractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func detectPlatform(domain string) leads.Platform {
	for _, entry := range platformDomains {
		if strings.Contains(domain, entry.fragment) {
			return entry.platform
		}
	}
	return leads.PlatformWeb
}

// extractUsername pulls a user handle out of Reddit /user/<name> paths and
// the leading path segment of Facebook URLs. Parse errors collapse to "".
func extractUsername(raw string, platform leads.Platform) string {
	parts := pathSegments(raw)

	switch platform {
	case leads.PlatformReddit:
		for i, part := range parts {
			if part == "user" && i+1 < len(parts) {
				return "u/" + parts[i+1]
			}
		}
	case leads.PlatformFacebook:
		if len(parts) > 0 {
			return parts[0]
		}
	}
	return ""
}

// extractSubreddit pulls r/<name> out of Reddit URLs.
func extractSubreddit(raw string, platform leads.Platform) string {
	if platform != leads.PlatformReddit {
		return ""
	}
	parts := pathSegments(raw)
	for i, part := range parts {
		if part == "r" && i+1 < len(parts) {
			return "r/" + parts[i+1]
		}
	}
	return ""
}

func pathSegments(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
