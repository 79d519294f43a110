// Package sheets reads search signals and operator-editable settings from a
// Google spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/outreachlab/leadgen/internal/leads"
)

// Signal rows look like [id, query, priority, active, notes]. Shorter rows
// are skipped, not errored.
const minSignalColumns = 4

const signalOrigin = "signals-sheet"

// affirmative markers accepted in the "active" column.
var affirmativeTokens = map[string]bool{
	"SÍ":   true,
	"SI":   true,
	"YES":  true,
	"TRUE": true,
}

// Config locates the spreadsheet tabs.
type Config struct {
	APIKey        string
	SpreadsheetID string
	SignalsRange  string
	KeysRange     string

	// Endpoint overrides the Sheets API base URL (tests only).
	Endpoint string
}

// Client is a read-only spreadsheet client implementing leads.SignalSource.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	signalsRange  string
	keysRange     string
	logger        *zap.Logger
}

// New builds a Client authenticating with an API key (the sheet is shared
// read-only; no OAuth dance needed).
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		signalsRange:  cfg.SignalsRange,
		keysRange:     cfg.KeysRange,
		logger:        logger,
	}, nil
}

// ListSignals returns the active signals in row order. Any read failure is
// logged and yields an empty slice; a broken sheet must never abort a run.
func (c *Client) ListSignals(ctx context.Context) []leads.Signal {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.signalsRange).Context(ctx).Do()
	if err != nil {
		c.logger.Error("read signal sheet", zap.Error(err), zap.String("range", c.signalsRange))
		return nil
	}

	var signals []leads.Signal
	for _, row := range resp.Values {
		if len(row) < minSignalColumns {
			continue
		}
		query := strings.TrimSpace(cell(row, 1))
		active := strings.ToUpper(strings.TrimSpace(cell(row, 3)))
		if query == "" || !affirmativeTokens[active] {
			continue
		}
		signals = append(signals, leads.Signal{
			Query:    query,
			Priority: leads.ParsePriority(strings.TrimSpace(cell(row, 2))),
			Origin:   signalOrigin,
		})
	}

	c.logger.Info("signals loaded", zap.Int("count", len(signals)))
	return signals
}

// FetchKeys reads the key/value settings tab into a map. Rows with fewer
// than two cells are skipped. Returns an empty map on read failure so the
// caller falls back to environment configuration.
func (c *Client) FetchKeys(ctx context.Context) map[string]string {
	keys := make(map[string]string)

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.keysRange).Context(ctx).Do()
	if err != nil {
		c.logger.Warn("read settings sheet, using local config only", zap.Error(err))
		return keys
	}

	for _, row := range resp.Values {
		if len(row) < 2 {
			continue
		}
		name := strings.TrimSpace(cell(row, 0))
		if name == "" {
			continue
		}
		keys[name] = strings.TrimSpace(cell(row, 1))
	}
	return keys
}

func cell(row []any, idx int) string {
	if idx >= len(row) {
		return ""
	}
	s, ok := row[idx].(string)
	if !ok {
		return fmt.Sprint(row[idx])
	}
	return s
}
