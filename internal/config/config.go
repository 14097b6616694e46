package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

type AppConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	WSAddr   string `yaml:"ws_addr"`

	StoreBackend        string `yaml:"store_backend"`
	RedisURL            string `yaml:"redis_url"`
	BadgerDir           string `yaml:"badger_dir"`
	StoreKeyPrefix      string `yaml:"store_key_prefix"`
	StoreTTLSec         int    `yaml:"store_ttl_sec"`
	StorePollIntervalMS int    `yaml:"store_poll_interval_ms"`

	DatabaseURL string `yaml:"database_url"`

	BotDepth int   `yaml:"bot_depth"`
	BotSeed  int64 `yaml:"bot_seed"`

	MessagesDir    string `yaml:"messages_dir"`
	WaitTimeoutSec int    `yaml:"wait_timeout_sec"`
	IdleTimeoutSec int    `yaml:"idle_timeout_sec"`
}

// Load reads the environment, then overlays CHESS_CONFIG_FILE when set.
// Keys present in the file win over the environment.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:            ":8080",
		WSAddr:              ":8081",
		StoreBackend:        BackendRedis,
		StoreKeyPrefix:      "chess:",
		StoreTTLSec:         86400,
		StorePollIntervalMS: 500,
		BotDepth:            2,
		IdleTimeoutSec:      1800,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("STORE_BACKEND")); v != "" {
		cfg.StoreBackend = strings.ToLower(v)
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.BadgerDir = strings.TrimSpace(os.Getenv("BADGER_DIR"))
	if v, ok := os.LookupEnv("STORE_KEY_PREFIX"); ok {
		cfg.StoreKeyPrefix = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("STORE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.StoreTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("STORE_POLL_INTERVAL_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.StorePollIntervalMS = n
		}
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	// Bot
	if v := strings.TrimSpace(os.Getenv("BOT_DEPTH")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("BOT_DEPTH: %w", err)
		}
		cfg.BotDepth = n
	}
	if v := strings.TrimSpace(os.Getenv("BOT_SEED")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BotSeed = n
		}
	}

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	if v := strings.TrimSpace(os.Getenv("WAIT_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.WaitTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("IDLE_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IdleTimeoutSec = n
		}
	}

	if path := strings.TrimSpace(os.Getenv("CHESS_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis store backend")
		}
	case BackendBadger:
		if c.BadgerDir == "" {
			return errors.New("BADGER_DIR is required for the badger store backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.BotDepth < 1 {
		return fmt.Errorf("BOT_DEPTH must be at least 1, got %d", c.BotDepth)
	}
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required")
	}
	return nil
}

func (c *AppConfig) StoreTTL() time.Duration { return time.Duration(c.StoreTTLSec) * time.Second }

// StorePollInterval is zero when the polling fallback is disabled.
func (c *AppConfig) StorePollInterval() time.Duration {
	return time.Duration(c.StorePollIntervalMS) * time.Millisecond
}

// WaitTimeout is zero when waits only end on cancellation.
func (c *AppConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSec) * time.Second
}

// IdleTimeout is how long an untouched, unfinished game lives.
func (c *AppConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}
