package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/conclave-ai/conclave/pkg/logger"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CONCLAVE_CONFIG is set
//  3. env (prefix CONCLAVE_)
//
// A .env file is loaded into the process environment first, so keys in it
// participate in layer 3.
func Load(ctx context.Context) (*Config, error) {
	loadDotEnv(ctx)

	cfg := *New()

	k := koanf.New(".")

	if path := os.Getenv("CONCLAVE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Environment variables: CONCLAVE_ADDR, CONCLAVE_CHAIRMAN_MODEL, ...
	// Map env keys like CONCLAVE_MODEL_QUERY_TIMEOUT -> model_query_timeout
	// to match the koanf tags on the struct.
	envProvider := env.Provider("CONCLAVE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "conclave_")
		if s == "config" {
			return ""
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Unprefixed names kept for compatibility with existing deployments.
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
			for _, origin := range strings.Split(origins, ",") {
				if origin = strings.TrimSpace(origin); origin != "" {
					cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
				}
			}
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads the first .env file found in the expected locations.
// Missing files are not an error; a key may arrive per request instead.
func loadDotEnv(ctx context.Context) {
	log := logger.Named("config")
	for _, envPath := range []string{".env", "../.env"} {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err != nil {
			continue
		}
		if err := godotenv.Load(absPath); err == nil {
			log.Info(ctx, "loaded .env", logger.String("path", absPath))
			return
		}
	}
	log.Debug(ctx, "no .env file found")
}

func validate(cfg *Config) error {
	if cfg.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if len(cfg.CouncilModels) == 0 {
		return errors.New("council_models must not be empty")
	}
	if cfg.ChairmanModel == "" {
		return errors.New("chairman_model must not be empty")
	}
	if cfg.ModelQueryTimeout <= 0 {
		return errors.New("model_query_timeout must be positive")
	}
	if cfg.TitleTimeout <= 0 {
		return errors.New("title_timeout must be positive")
	}
	if cfg.MaxRequestBody <= 0 {
		return errors.New("max_request_body must be positive")
	}
	return nil
}
