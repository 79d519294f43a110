// Package filter decides whether a normalized card qualifies for storage.
//
// Social-media cards always pass: a Reddit thread or Facebook group has an
// obvious reply channel. Institutional pages (universities, admissions
// offices) are only worth keeping when they expose a way in, so without an
// email or a contact form they are dropped before they ever hit the store.
package filter

import (
	"strings"

	"github.com/outreachlab/leadgen/internal/leads"
)

// Reject/persist reasons reported by ShouldPersist.
const (
	ReasonSocial           = "social"
	ReasonNonInstitutional = "non-institutional"
	ReasonWithContact      = "institutional with contact"
	ReasonWithoutContact   = "institutional without contact"
)

var socialDomains = []string{
	"reddit.com",
	"facebook.com",
	"linkedin.com",
	"twitter.com",
	"x.com",
	"instagram.com",
}

var academicSuffixes = []string{
	".edu",
	".ac.uk",
	".edu.es",
	".edu.au",
	".ac.nz",
	".edu.mx",
}

var institutionalPathMarkers = []string{
	"/admissions/",
	"/programs/",
	"/housing/",
	"/international/",
	"/students/",
	"/study-abroad/",
}

var institutionalTitleKeywords = []string{
	"university",
	"business school",
	"college",
	"institute",
	"admissions",
	"study abroad",
}

// ShouldPersist reports whether the card should be stored, plus the rule
// that decided it. Pure predicate: no I/O, no mutation.
func ShouldPersist(card leads.Card) (bool, string) {
	if isSocial(card) {
		return true, ReasonSocial
	}
	if !isInstitutional(card) {
		return true, ReasonNonInstitutional
	}
	if hasContact(card) {
		return true, ReasonWithContact
	}
	return false, ReasonWithoutContact
}

func isSocial(card leads.Card) bool {
	domain := strings.ToLower(card.Domain)
	for _, social := range socialDomains {
		if strings.Contains(domain, social) {
			return true
		}
	}
	return false
}

func isInstitutional(card leads.Card) bool {
	domain := strings.ToLower(card.Domain)
	for _, suffix := range academicSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return true
		}
	}

	url := strings.ToLower(card.URL)
	for _, marker := range institutionalPathMarkers {
		if strings.Contains(url, marker) {
			return true
		}
	}

	title := strings.ToLower(card.Title)
	for _, keyword := range institutionalTitleKeywords {
		if strings.Contains(title, keyword) {
			return true
		}
	}

	return false
}

func hasContact(card leads.Card) bool {
	if card.Email != nil && strings.TrimSpace(*card.Email) != "" {
		return true
	}
	return card.HasContactForm != nil && *card.HasContactForm
}
