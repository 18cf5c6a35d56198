// Package config provides configuration for the agent directory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Search backends for the directory index.
const (
	SearchBackendStore = "store"
	SearchBackendBleve = "bleve"
)

// Weights are the negotiation scoring weights.
type Weights struct {
	Task        float64 `yaml:"task"`
	Negotiation float64 `yaml:"negotiation"`
	Budget      float64 `yaml:"budget"`
	Skill       float64 `yaml:"skill"`
}

// NegotiationConfig tunes the negotiation engine.
type NegotiationConfig struct {
	// MaxCandidates caps the ranked list; 0 disables the cap.
	MaxCandidates int     `yaml:"max_candidates"`
	Weights       Weights `yaml:"weights"`
}

// Config holds the directory configuration.
type Config struct {
	// Server settings
	HTTPPort     int `yaml:"http_port"`
	InternalPort int `yaml:"internal_port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Sessions
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SigningKey    string        `yaml:"signing_key"`
	SweepSchedule string        `yaml:"sweep_schedule"`

	// Optimistic concurrency retries
	CASMaxAttempts int           `yaml:"cas_max_attempts"`
	CASBaseDelay   time.Duration `yaml:"cas_base_delay"`

	Negotiation NegotiationConfig `yaml:"negotiation"`

	// Directory index
	SearchBackend  string `yaml:"search_backend"`
	SearchPageSize int    `yaml:"search_page_size"`

	// Timeouts
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:       8080,
		InternalPort:   8081,
		DatabaseURL:    "file:agentdir.db?cache=shared&mode=rwc&_busy_timeout=5000&_txlock=immediate",
		SessionTTL:     time.Hour,
		SweepSchedule:  "@every 30s",
		CASMaxAttempts: 3,
		CASBaseDelay:   10 * time.Millisecond,
		Negotiation: NegotiationConfig{
			MaxCandidates: 10,
			Weights:       Weights{Task: 0.5, Negotiation: 0.2, Budget: 0.2, Skill: 0.1},
		},
		SearchBackend:  SearchBackendStore,
		SearchPageSize: 100,
		RequestTimeout: 10 * time.Second,
		LogLevel:       "info",
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment variables, in increasing precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.InternalPort = getEnvInt("INTERNAL_PORT", cfg.InternalPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.SessionTTL = getEnvDuration("SESSION_TTL_MS", cfg.SessionTTL)
	cfg.SigningKey = getEnv("SIGNING_KEY", cfg.SigningKey)
	cfg.SweepSchedule = getEnv("SWEEP_SCHEDULE", cfg.SweepSchedule)
	cfg.CASMaxAttempts = getEnvInt("CAS_MAX_ATTEMPTS", cfg.CASMaxAttempts)
	cfg.CASBaseDelay = getEnvDuration("CAS_BASE_DELAY_MS", cfg.CASBaseDelay)
	cfg.Negotiation.MaxCandidates = getEnvInt("NEGOTIATION_MAX_CANDIDATES", cfg.Negotiation.MaxCandidates)
	cfg.Negotiation.Weights.Task = getEnvFloat("NEGOTIATION_WEIGHT_TASK", cfg.Negotiation.Weights.Task)
	cfg.Negotiation.Weights.Negotiation = getEnvFloat("NEGOTIATION_WEIGHT_NEGOTIATION", cfg.Negotiation.Weights.Negotiation)
	cfg.Negotiation.Weights.Budget = getEnvFloat("NEGOTIATION_WEIGHT_BUDGET", cfg.Negotiation.Weights.Budget)
	cfg.Negotiation.Weights.Skill = getEnvFloat("NEGOTIATION_WEIGHT_SKILL", cfg.Negotiation.Weights.Skill)
	cfg.SearchBackend = strings.ToLower(getEnv("SEARCH_BACKEND", cfg.SearchBackend))
	cfg.SearchPageSize = getEnvInt("SEARCH_PAGE_SIZE", cfg.SearchPageSize)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT_MS", cfg.RequestTimeout)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.CASMaxAttempts < 1 {
		return fmt.Errorf("cas_max_attempts must be at least 1, got %d", c.CASMaxAttempts)
	}
	if c.Negotiation.MaxCandidates < 0 {
		return fmt.Errorf("negotiation.max_candidates must be >= 0, got %d", c.Negotiation.MaxCandidates)
	}
	w := c.Negotiation.Weights
	if w.Task < 0 || w.Negotiation < 0 || w.Budget < 0 || w.Skill < 0 {
		return fmt.Errorf("negotiation weights must be non-negative")
	}
	switch c.SearchBackend {
	case SearchBackendStore, SearchBackendBleve:
	default:
		return fmt.Errorf("unknown search_backend %q", c.SearchBackend)
	}
	if c.SearchPageSize < 1 {
		return fmt.Errorf("search_page_size must be at least 1, got %d", c.SearchPageSize)
	}
	return nil
}

// SweepEnabled reports whether the scheduled expiration sweep should run.
func (c *Config) SweepEnabled() bool {
	s := strings.TrimSpace(c.SweepSchedule)
	return s != "" && s != "off"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
