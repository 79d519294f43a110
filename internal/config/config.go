// Package config loads and validates leadgen service configuration via Viper.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Sheets  SheetsConfig  `mapstructure:"sheets"`
	Search  SearchConfig  `mapstructure:"search"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Store   StoreConfig   `mapstructure:"store"`
	Limits  LimitsConfig  `mapstructure:"limits"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SheetsConfig locates the signal spreadsheet.
type SheetsConfig struct {
	APIKey        string `mapstructure:"api_key"`
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	SignalsRange  string `mapstructure:"signals_range"`
	KeysRange     string `mapstructure:"keys_range"`
}

// SearchConfig governs the Custom Search executor.
type SearchConfig struct {
	APIKey     string `mapstructure:"api_key"`
	EngineID   string `mapstructure:"engine_id"`
	NumResults int    `mapstructure:"num_results"`
	PaceMs     int    `mapstructure:"pace_ms"`
}

// OpenAIConfig governs the enrichment LLM boundary.
type OpenAIConfig struct {
	APIKey       string `mapstructure:"api_key"`
	Endpoint     string `mapstructure:"endpoint"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
	PaceMs       int    `mapstructure:"pace_ms"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

// SQLiteConfig configures the embedded relational backend.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig configures the hosted relational backend.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MongoConfig configures the hosted document backend.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// LimitsConfig caps per-run work.
type LimitsConfig struct {
	Signals    int `mapstructure:"signals"`
	Enrichment int `mapstructure:"enrichment"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("sheets.signals_range", "Signals!A2:E")
	v.SetDefault("sheets.keys_range", "Claves!A:B")
	v.SetDefault("search.num_results", 10)
	v.SetDefault("search.pace_ms", 1000)
	v.SetDefault("openai.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.pace_ms", 1000)
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite.path", "leads.db")
	v.SetDefault("store.mongo.database", "leadgen")
	v.SetDefault("store.mongo.collection", "cards")
	v.SetDefault("limits.signals", 0)
	v.SetDefault("limits.enrichment", 10)
}

// Validate is the fail-fast gate for missing credentials: the orchestrator
// must never start a pass that would die mid-flight on an unset key.
func (c Config) Validate() error {
	if c.Sheets.APIKey == "" {
		return fmt.Errorf("sheets.api_key is required")
	}
	if c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("sheets.spreadsheet_id is required")
	}
	if c.Search.APIKey == "" {
		return fmt.Errorf("search.api_key is required")
	}
	if c.Search.EngineID == "" {
		return fmt.Errorf("search.engine_id is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.Search.NumResults < 1 || c.Search.NumResults > 10 {
		return fmt.Errorf("search.num_results must be between 1 and 10, got %d", c.Search.NumResults)
	}
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	case "mongo":
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri is required for the mongo backend")
		}
	case "memory":
		// No settings; used by tests and dry runs.
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}
	return nil
}

// ApplyRemoteKeys overlays operator-editable settings fetched from the
// spreadsheet key/value tab. Only the per-run limits and the result cap may
// be overridden remotely; credentials always come from the environment.
func (c *Config) ApplyRemoteKeys(keys map[string]string) {
	if v, ok := intKey(keys, "SIGNAL_LIMIT"); ok {
		c.Limits.Signals = v
	}
	if v, ok := intKey(keys, "ENRICHMENT_LIMIT"); ok {
		c.Limits.Enrichment = v
	}
	if v, ok := intKey(keys, "SEARCH_NUM_RESULTS"); ok && v >= 1 && v <= 10 {
		c.Search.NumResults = v
	}
	if prompt, ok := keys["SYSTEM_PROMPT"]; ok && strings.TrimSpace(prompt) != "" {
		c.OpenAI.SystemPrompt = prompt
	}
}

func intKey(keys map[string]string, name string) (int, bool) {
	raw, ok := keys[name]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}
