// Package enrich fills card contact fields by asking an LLM about each
// stored search result.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/outreachlab/leadgen/internal/leads"
)

const defaultSystemPrompt = `You are an assistant helping international students find housing in Madrid.

Analyze the following search result and extract useful contact information.

Return ONLY a valid JSON object with these fields:
{
  "institution": "Full name of the university or organization (null if not identifiable)",
  "email": "Contact email if present (null if not)",
  "phone": "Phone number with country code if present (null if not)",
  "has_contact_form": true | false (whether the URL looks like a contact form),
  "recommended_channel": "email" | "reddit" | "whatsapp" | "form" | "web",
  "communication_draft": "Short personalized message (2-4 lines) to make contact"
}

Rules for communication_draft:
- Friendly and polite
- Mention being an international student arriving in 2026
- Ask about housing
- Match the tone to the channel (formal for email, casual for reddit, brief for whatsapp)
- At most 4 lines`

// CardEnricher produces the enrichment fields for one card.
type CardEnricher interface {
	Enrich(ctx context.Context, card leads.Card) (leads.Enrichment, error)
}

// Config controls the chat-completions client.
type Config struct {
	APIKey       string
	Endpoint     string
	Model        string
	SystemPrompt string
}

// Client calls an OpenAI-compatible chat-completions endpoint and parses
// the structured reply.
type Client struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ CardEnricher = (*Client)(nil)

// NewClient builds a Client from configuration.
func NewClient(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Client{
		endpoint:     endpoint,
		model:        model,
		apiKey:       cfg.APIKey,
		systemPrompt: prompt,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// enrichmentPayload is the wire schema the model is instructed to emit.
// has_contact_form is decoded loosely: models reply with booleans, "YES",
// "SI", or omit it entirely.
type enrichmentPayload struct {
	Institution        *string `json:"institution"`
	Email              *string `json:"email"`
	Phone              *string `json:"phone"`
	HasContactForm     any     `json:"has_contact_form"`
	RecommendedChannel *string `json:"recommended_channel"`
	CommunicationDraft *string `json:"communication_draft"`
}

// Enrich asks the model about one card and parses the reply. Any HTTP or
// parse failure is returned as an error; the caller skips the card and the
// selection query re-surfaces it on a later pass.
func (c *Client) Enrich(ctx context.Context, card leads.Card) (leads.Enrichment, error) {
	if c.apiKey == "" {
		return leads.Enrichment{}, fmt.Errorf("openai api key is not configured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": c.systemPrompt},
			{"role": "user", "content": userPrompt(card)},
		},
		"temperature": 0.7,
		"max_tokens":  500,
	})
	if err != nil {
		return leads.Enrichment{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return leads.Enrichment{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return leads.Enrichment{}, fmt.Errorf("call chat completions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return leads.Enrichment{}, fmt.Errorf("chat completions %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return leads.Enrichment{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return leads.Enrichment{}, fmt.Errorf("chat response has no choices")
	}

	return parseEnrichment(chat.Choices[0].Message.Content)
}

func userPrompt(card leads.Card) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Title:** %s\n\n", card.Title)
	fmt.Fprintf(&b, "**Snippet:** %s\n\n", card.Snippet)
	fmt.Fprintf(&b, "**URL:** %s\n\n", card.URL)
	fmt.Fprintf(&b, "**Platform:** %s\n\n", card.Platform)
	fmt.Fprintf(&b, "**Search keyword:** %s\n\n", card.Keyword)
	fmt.Fprintf(&b, "**Domain:** %s\n", card.Domain)
	return b.String()
}

// parseEnrichment decodes the model's JSON reply, tolerating markdown code
// fences around it. Missing fields become nil, never an error.
func parseEnrichment(content string) (leads.Enrichment, error) {
	cleaned := stripCodeFences(content)

	var payload enrichmentPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return leads.Enrichment{}, fmt.Errorf("parse enrichment json: %w", err)
	}

	return leads.Enrichment{
		Institution:        cleanString(payload.Institution),
		Email:              cleanString(payload.Email),
		Phone:              cleanString(payload.Phone),
		HasContactForm:     parseTriState(payload.HasContactForm),
		RecommendedChannel: normalizeChannel(payload.RecommendedChannel),
		CommunicationDraft: cleanString(payload.CommunicationDraft),
	}, nil
}

// stripCodeFences removes a wrapping ```...``` block, with or without a
// language tag.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 && !strings.HasPrefix(trimmed, "{") {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// parseTriState normalizes boolean-ish model output to *bool: nil when the
// model did not (or could not) answer.
func parseTriState(v any) *bool {
	switch val := v.(type) {
	case bool:
		return &val
	case string:
		switch strings.ToUpper(strings.TrimSpace(val)) {
		case "SI", "SÍ", "YES", "TRUE":
			t := true
			return &t
		case "NO", "FALSE":
			f := false
			return &f
		}
	}
	return nil
}

func normalizeChannel(v *string) *string {
	if v == nil {
		return nil
	}
	channel := strings.ToLower(strings.TrimSpace(*v))
	if channel == "" {
		return nil
	}
	return &channel
}

func cleanString(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}
