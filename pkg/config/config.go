package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration. Values come from the YAML file
// first, then PAPERTRADE_* environment variables override field by field.
type Config struct {
	Listen        string        `yaml:"listen"`
	DBPath        string        `yaml:"db_path"`
	BinanceURL    string        `yaml:"binance_url"`
	StreamURL     string        `yaml:"stream_url"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	PriceCacheTTL time.Duration `yaml:"price_cache_ttl"`
	LogLevel      string        `yaml:"log_level"`
	LogFile       string        `yaml:"log_file"`
}

func Default() Config {
	return Config{
		Listen:        ":8080",
		DBPath:        "data/papertrade.db",
		BinanceURL:    "https://api.binance.com",
		StreamURL:     "wss://stream.binance.com:9443/ws",
		SweepInterval: 10 * time.Second,
		PriceCacheTTL: 5 * time.Second,
		LogLevel:      "info",
	}
}

// Load reads path if non-empty (a missing file is an error; an empty path
// is not), then applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := getenv("PAPERTRADE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := getenv("PAPERTRADE_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("PAPERTRADE_BINANCE_URL"); v != "" {
		cfg.BinanceURL = v
	}
	if v := getenv("PAPERTRADE_STREAM_URL"); v != "" {
		cfg.StreamURL = v
	}
	if v := getenv("PAPERTRADE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}
	if v := getenv("PAPERTRADE_PRICE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PriceCacheTTL = d
		}
	}
	if v := getenv("PAPERTRADE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("PAPERTRADE_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
