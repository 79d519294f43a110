// Package sqlite provides the embedded relational card store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/outreachlab/leadgen/internal/leads"
)

const schema = `
CREATE TABLE IF NOT EXISTS cards (
	id TEXT PRIMARY KEY,
	type TEXT,
	keyword TEXT,
	url TEXT UNIQUE NOT NULL,
	title TEXT,
	snippet TEXT,
	domain TEXT,
	platform TEXT,
	username TEXT,
	subreddit TEXT,
	facebook_group TEXT,
	priority TEXT,
	institution TEXT,
	email TEXT,
	phone TEXT,
	has_contact_form INTEGER,
	recommended_channel TEXT,
	communication_draft TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	processed INTEGER NOT NULL DEFAULT 0,
	detected_at TEXT,
	contacted_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_cards_status ON cards(status)",
	"CREATE INDEX IF NOT EXISTS idx_cards_processed ON cards(processed)",
	"CREATE INDEX IF NOT EXISTS idx_cards_created_at ON cards(created_at)",
}

// Store implements leads.Store on an embedded SQLite file.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database file. WAL mode keeps the dashboard's
// reads from blocking pipeline writes.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return &Store{db: db}, nil
}

// Init creates the cards table and indexes if absent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create cards table: %w", err)
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// ExistsByURL reports whether a card with this URL is already stored.
func (s *Store) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM cards WHERE url = ? LIMIT 1", url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query url existence: %w", err)
	}
	return true, nil
}

// InsertIfNew inserts the card; the UNIQUE constraint on url turns a racing
// duplicate into an ignored row rather than an error.
func (s *Store) InsertIfNew(ctx context.Context, card leads.Card) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO cards (
	id, type, keyword, url, title, snippet, domain, platform, username,
	subreddit, facebook_group, priority, institution, email, phone,
	has_contact_form, recommended_channel, communication_draft, status,
	processed, detected_at, contacted_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID, card.Type, card.Keyword, card.URL, card.Title, card.Snippet,
		card.Domain, string(card.Platform), card.Username, card.Subreddit,
		card.FacebookGroup, string(card.Priority), card.Institution, card.Email,
		card.Phone, card.HasContactForm, card.RecommendedChannel,
		card.CommunicationDraft, string(card.Status), card.Processed,
		formatTime(&card.DetectedAt), formatTime(card.ContactedAt),
		formatTime(&card.CreatedAt), formatTime(&card.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert card rows affected: %w", err)
	}
	return n > 0, nil
}

// FetchPending returns unprocessed cards oldest-created first.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]leads.Card, error) {
	query := `
SELECT id, type, keyword, url, title, snippet, domain, platform, username,
	subreddit, facebook_group, priority, institution, email, phone,
	has_contact_form, recommended_channel, communication_draft, status,
	processed, detected_at, contacted_at, created_at, updated_at
FROM cards WHERE processed = 0 ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending cards: %w", err)
	}
	defer rows.Close()

	var cards []leads.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending cards: %w", err)
	}
	return cards, nil
}

// UpdateEnrichment writes all enrichment fields and flips processed in one
// UPDATE, so a failure leaves the card fully pending.
func (s *Store) UpdateEnrichment(ctx context.Context, id string, e leads.Enrichment) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE cards SET
	institution = ?,
	email = ?,
	phone = ?,
	has_contact_form = ?,
	recommended_channel = ?,
	communication_draft = ?,
	processed = 1,
	updated_at = ?
WHERE id = ?`,
		e.Institution, e.Email, e.Phone, e.HasContactForm,
		e.RecommendedChannel, e.CommunicationDraft,
		time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return false, fmt.Errorf("update enrichment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update enrichment rows affected: %w", err)
	}
	return n > 0, nil
}

// Close closes the database.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func scanCard(rows *sql.Rows) (leads.Card, error) {
	var card leads.Card
	var platform, priority, status string
	var institution, email, phone, channel, draft, facebookGroup sql.NullString
	var hasForm sql.NullBool
	var detectedAt, contactedAt, createdAt, updatedAt sql.NullString
	err := rows.Scan(
		&card.ID, &card.Type, &card.Keyword, &card.URL, &card.Title,
		&card.Snippet, &card.Domain, &platform, &card.Username,
		&card.Subreddit, &facebookGroup, &priority, &institution, &email,
		&phone, &hasForm, &channel, &draft, &status, &card.Processed,
		&detectedAt, &contactedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return leads.Card{}, fmt.Errorf("scan card: %w", err)
	}

	card.Platform = leads.Platform(platform)
	card.Priority = leads.Priority(priority)
	card.Status = leads.Status(status)
	card.FacebookGroup = facebookGroup.String
	card.Institution = nullableString(institution)
	card.Email = nullableString(email)
	card.Phone = nullableString(phone)
	card.RecommendedChannel = nullableString(channel)
	card.CommunicationDraft = nullableString(draft)
	if hasForm.Valid {
		card.HasContactForm = &hasForm.Bool
	}
	card.DetectedAt = parseTime(detectedAt)
	card.CreatedAt = parseTime(createdAt)
	card.UpdatedAt = parseTime(updatedAt)
	if contactedAt.Valid && contactedAt.String != "" {
		t := parseTime(contactedAt)
		card.ContactedAt = &t
	}
	return card, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
