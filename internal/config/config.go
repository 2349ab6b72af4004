// Package config defines service configuration and its loading order.
package config

import "time"

// Config contains process configuration for the Conclave service.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8001".
	Addr string `koanf:"addr"`

	// APIKey is the default gateway credential. Requests may override it.
	APIKey string `koanf:"api_key"`

	// GatewayURL is the chat completions endpoint of the model gateway.
	GatewayURL string `koanf:"gateway_url"`

	// CouncilModels is the default list of models queried in parallel.
	CouncilModels []string `koanf:"council_models"`

	// ChairmanModel is the default model used for final synthesis.
	ChairmanModel string `koanf:"chairman_model"`

	// TitleModel is the model used for conversation title generation.
	// Empty selects the built-in default.
	TitleModel string `koanf:"title_model"`

	// ModelQueryTimeout bounds a single council model query.
	ModelQueryTimeout time.Duration `koanf:"model_query_timeout"`

	// TitleTimeout bounds conversation title generation.
	TitleTimeout time.Duration `koanf:"title_timeout"`

	// FetchTimeout bounds URL content fetches.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// DataDir is the directory for conversation storage.
	DataDir string `koanf:"data_dir"`

	// CORSAllowedOrigins lists exact origins allowed by CORS. Empty means
	// any localhost origin is accepted (development mode).
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// MaxRequestBody caps request body size in bytes.
	MaxRequestBody int64 `koanf:"max_request_body"`

	// StatusTTL is how long deliberation status entries stay queryable.
	StatusTTL time.Duration `koanf:"status_ttl"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:   "info",
		Addr:       ":8001",
		GatewayURL: "https://openrouter.ai/api/v1/chat/completions",
		CouncilModels: []string{
			"openai/gpt-5.1",
			"google/gemini-3-pro-preview",
			"anthropic/claude-sonnet-4.5",
			"x-ai/grok-4",
		},
		ChairmanModel:     "google/gemini-3-pro-preview",
		ModelQueryTimeout: 120 * time.Second,
		TitleTimeout:      30 * time.Second,
		FetchTimeout:      15 * time.Second,
		DataDir:           "data/conversations",
		MaxRequestBody:    1 << 20,
		StatusTTL:         5 * time.Minute,
	}
}
