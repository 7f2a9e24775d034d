package main

import (
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-pager/pkg/logging"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix is prepended to every environment variable, e.g. CATALOG_PORT.
const envPrefix = "CATALOG"

// Config is the proxy configuration read from the environment.
type Config struct {
	Port           string        `default:"8080"`
	BaseURL        string        `split_words:"true" default:"https://gutendex.com/books"`
	UserAgent      string        `split_words:"true" default:"catalog-pager/0.1.0"`
	RequestTimeout time.Duration `split_words:"true" default:"30s"`

	// PrefsBackend selects the preference store: "redis" or "memory".
	PrefsBackend string `split_words:"true" default:"redis"`
	RedisURL     string `envconfig:"REDIS_URL" default:"localhost:6379"`
	RedisDB      int    `envconfig:"REDIS_DB" default:"0"`

	LogLevel  string `split_words:"true" default:"info"`
	LogPretty bool   `split_words:"true"`
}

// loadConfig reads and validates the configuration.
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.PrefsBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("prefs backend must be redis or memory (got %q)", c.PrefsBackend)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive (got %s)", c.RequestTimeout)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c Config) loggingConfig() logging.Config {
	level, _ := logging.ParseLevel(c.LogLevel)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.LogPretty
	cfg.Service = "catalog-proxy"
	return cfg
}
