// Package postgres provides the hosted relational card store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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
	has_contact_form BOOLEAN,
	recommended_channel TEXT,
	communication_draft TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	detected_at TIMESTAMPTZ,
	contacted_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

var cardColumns = []string{
	"id", "type", "keyword", "url", "title", "snippet", "domain", "platform",
	"username", "subreddit", "facebook_group", "priority", "institution",
	"email", "phone", "has_contact_form", "recommended_channel",
	"communication_draft", "status", "processed", "detected_at",
	"contacted_at", "created_at", "updated_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// db is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in
// tests.
type db interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

// Store implements leads.Store on Postgres.
type Store struct {
	pool db
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Init creates the cards table if absent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create cards table: %w", err)
	}
	return nil
}

// ExistsByURL reports whether a card with this URL is already stored.
func (s *Store) ExistsByURL(ctx context.Context, url string) (bool, error) {
	query, args, err := psql.Select("1").From("cards").Where(sq.Eq{"url": url}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build existence query: %w", err)
	}
	var one int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query url existence: %w", err)
	}
	return true, nil
}

// InsertIfNew inserts the card; ON CONFLICT DO NOTHING turns a racing
// duplicate into zero affected rows rather than a constraint error.
func (s *Store) InsertIfNew(ctx context.Context, card leads.Card) (bool, error) {
	query, args, err := psql.Insert("cards").
		Columns(cardColumns...).
		Values(
			card.ID, card.Type, card.Keyword, card.URL, card.Title,
			card.Snippet, card.Domain, string(card.Platform), card.Username,
			card.Subreddit, card.FacebookGroup, string(card.Priority),
			card.Institution, card.Email, card.Phone, card.HasContactForm,
			card.RecommendedChannel, card.CommunicationDraft,
			string(card.Status), card.Processed, card.DetectedAt,
			card.ContactedAt, card.CreatedAt, card.UpdatedAt,
		).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert query: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("insert card: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FetchPending returns unprocessed cards oldest-created first.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]leads.Card, error) {
	builder := psql.Select(cardColumns...).
		From("cards").
		Where(sq.Eq{"processed": false}).
		OrderBy("created_at ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending cards: %w", err)
	}
	defer rows.Close()

	var cards []leads.Card
	for rows.Next() {
		var card leads.Card
		var platform, priority, status string
		err := rows.Scan(
			&card.ID, &card.Type, &card.Keyword, &card.URL, &card.Title,
			&card.Snippet, &card.Domain, &platform, &card.Username,
			&card.Subreddit, &card.FacebookGroup, &priority,
			&card.Institution, &card.Email, &card.Phone,
			&card.HasContactForm, &card.RecommendedChannel,
			&card.CommunicationDraft, &status, &card.Processed,
			&card.DetectedAt, &card.ContactedAt, &card.CreatedAt,
			&card.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		card.Platform = leads.Platform(platform)
		card.Priority = leads.Priority(priority)
		card.Status = leads.Status(status)
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending cards: %w", err)
	}
	return cards, nil
}

// UpdateEnrichment writes all enrichment fields and flips processed in a
// single UPDATE; there is no intermediate state a failure could leave
// behind.
func (s *Store) UpdateEnrichment(ctx context.Context, id string, e leads.Enrichment) (bool, error) {
	query, args, err := psql.Update("cards").
		Set("institution", e.Institution).
		Set("email", e.Email).
		Set("phone", e.Phone).
		Set("has_contact_form", e.HasContactForm).
		Set("recommended_channel", e.RecommendedChannel).
		Set("communication_draft", e.CommunicationDraft).
		Set("processed", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build enrichment update: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update enrichment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close(context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
