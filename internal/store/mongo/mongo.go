// Package mongo provides the hosted document card store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/outreachlab/leadgen/internal/leads"
)

const opTimeout = 10 * time.Second

// Config locates the card collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Store implements leads.Store on a MongoDB collection. The unique index on
// url is the only cross-writer safety mechanism, same as the relational
// variants.
type Store struct {
	client *mongo.Client
	cards  *mongo.Collection
}

// cardDoc is the BSON shape of a stored card.
type cardDoc struct {
	ID                 string     `bson:"_id"`
	Type               string     `bson:"type"`
	Keyword            string     `bson:"keyword"`
	URL                string     `bson:"url"`
	Title              string     `bson:"title"`
	Snippet            string     `bson:"snippet"`
	Domain             string     `bson:"domain"`
	Platform           string     `bson:"platform"`
	Username           string     `bson:"username"`
	Subreddit          string     `bson:"subreddit"`
	FacebookGroup      string     `bson:"facebook_group"`
	Priority           string     `bson:"priority"`
	Institution        *string    `bson:"institution"`
	Email              *string    `bson:"email"`
	Phone              *string    `bson:"phone"`
	HasContactForm     *bool      `bson:"has_contact_form"`
	RecommendedChannel *string    `bson:"recommended_channel"`
	CommunicationDraft *string    `bson:"communication_draft"`
	Status             string     `bson:"status"`
	Processed          bool       `bson:"processed"`
	DetectedAt         time.Time  `bson:"detected_at"`
	ContactedAt        *time.Time `bson:"contacted_at"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

// New connects to MongoDB and pings it to ensure the URI is usable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &Store{
		client: client,
		cards:  client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Init creates the unique url index and the pending-scan index.
func (s *Store) Init(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "processed", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}
	if _, err := s.cards.Indexes().CreateMany(opCtx, models); err != nil {
		return fmt.Errorf("create card indexes: %w", err)
	}
	return nil
}

// ExistsByURL reports whether a card with this URL is already stored.
func (s *Store) ExistsByURL(ctx context.Context, url string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := s.cards.FindOne(opCtx, bson.M{"url": url},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query url existence: %w", err)
	}
	return true, nil
}

// InsertIfNew inserts the card; a duplicate-key error from the unique url
// index resolves to "already exists".
func (s *Store) InsertIfNew(ctx context.Context, card leads.Card) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.cards.InsertOne(opCtx, toDoc(card))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert card: %w", err)
	}
	return true, nil
}

// FetchPending returns unprocessed cards oldest-created first.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]leads.Card, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.cards.Find(opCtx, bson.M{"processed": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("query pending cards: %w", err)
	}
	defer cursor.Close(opCtx)

	var cards []leads.Card
	for cursor.Next(opCtx) {
		var doc cardDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode card: %w", err)
		}
		cards = append(cards, fromDoc(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending cards: %w", err)
	}
	return cards, nil
}

// UpdateEnrichment sets all enrichment fields and processed in one
// single-document update, which MongoDB applies atomically.
func (s *Store) UpdateEnrichment(ctx context.Context, id string, e leads.Enrichment) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.cards.UpdateOne(opCtx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"institution":         e.Institution,
		"email":               e.Email,
		"phone":               e.Phone,
		"has_contact_form":    e.HasContactForm,
		"recommended_channel": e.RecommendedChannel,
		"communication_draft": e.CommunicationDraft,
		"processed":           true,
		"updated_at":          time.Now().UTC(),
	}})
	if err != nil {
		return false, fmt.Errorf("update enrichment: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Disconnect(opCtx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}

func toDoc(card leads.Card) cardDoc {
	return cardDoc{
		ID:                 card.ID,
		Type:               card.Type,
		Keyword:            card.Keyword,
		URL:                card.URL,
		Title:              card.Title,
		Snippet:            card.Snippet,
		Domain:             card.Domain,
		Platform:           string(card.Platform),
		Username:           card.Username,
		Subreddit:          card.Subreddit,
		FacebookGroup:      card.FacebookGroup,
		Priority:           string(card.Priority),
		Institution:        card.Institution,
		Email:              card.Email,
		Phone:              card.Phone,
		HasContactForm:     card.HasContactForm,
		RecommendedChannel: card.RecommendedChannel,
		CommunicationDraft: card.CommunicationDraft,
		Status:             string(card.Status),
		Processed:          card.Processed,
		DetectedAt:         card.DetectedAt,
		ContactedAt:        card.ContactedAt,
		CreatedAt:          card.CreatedAt,
		UpdatedAt:          card.UpdatedAt,
	}
}

func fromDoc(doc cardDoc) leads.Card {
	return leads.Card{
		ID:                 doc.ID,
		Type:               doc.Type,
		Keyword:            doc.Keyword,
		URL:                doc.URL,
		Title:              doc.Title,
		Snippet:            doc.Snippet,
		Domain:             doc.Domain,
		Platform:           leads.Platform(doc.Platform),
		Username:           doc.Username,
		Subreddit:          doc.Subreddit,
		FacebookGroup:      doc.FacebookGroup,
		Priority:           leads.Priority(doc.Priority),
		Institution:        doc.Institution,
		Email:              doc.Email,
		Phone:              doc.Phone,
		HasContactForm:     doc.HasContactForm,
		RecommendedChannel: doc.RecommendedChannel,
		CommunicationDraft: doc.CommunicationDraft,
		Status:             leads.Status(doc.Status),
		Processed:          doc.Processed,
		DetectedAt:         doc.DetectedAt,
		ContactedAt:        doc.ContactedAt,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}
