// Package config loads course-scraper settings.
//
// Settings are resolved in order: built-in defaults, an optional YAML file,
// variables from a .env file, then the process environment (COURSES_* keys).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/course-scraper/internal/scraper"
)

// EnvPrefix namespaces every environment override
const EnvPrefix = "COURSES_"

type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`      // ex: ":8080"
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // ex: 10s

	LogLevel  string `yaml:"log_level"`  // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `yaml:"pretty_log"` // true => console encoder, false => JSON

	StorePath    string        `yaml:"store_path"`    // CSV file holding merged records
	SearchURL    string        `yaml:"search_url"`    // course search endpoint
	Term         string        `yaml:"term"`          // ex: "2024-SPRG"
	UserAgent    string        `yaml:"user_agent"`    // sent with every fetch
	FetchTimeout time.Duration `yaml:"fetch_timeout"` // HTTP client timeout

	Workers   int `yaml:"workers"`    // concurrent scrape runs
	QueueSize int `yaml:"queue_size"` // pending runs accepted before rejecting
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		PrettyLog:       false,
		StorePath:       "~/.local/share/course-scraper/course_data.csv",
		SearchURL:       scraper.SearchURL,
		Term:            scraper.DefaultTerm,
		UserAgent:       scraper.UserAgent,
		FetchTimeout:    scraper.Timeout,
		Workers:         2,
		QueueSize:       16,
	}
}

// Load resolves the configuration. path may be empty, in which case only
// defaults, .env and the environment are consulted.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// loadDotEnv exports the variables of an env file that are not already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getenv("LISTEN_ADDR", c.ListenAddr)
	c.ShutdownTimeout = mustDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.PrettyLog = mustBool("PRETTY_LOG", c.PrettyLog)
	c.StorePath = getenv("STORE_PATH", c.StorePath)
	c.SearchURL = getenv("SEARCH_URL", c.SearchURL)
	c.Term = getenv("TERM", c.Term)
	c.UserAgent = getenv("USER_AGENT", c.UserAgent)
	c.FetchTimeout = mustDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.Workers = getenvInt("WORKERS", c.Workers)
	c.QueueSize = getenvInt("QUEUE_SIZE", c.QueueSize)
}

// Validate reports the first setting that cannot work
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.StorePath) == "":
		return errors.New("store_path must not be empty")
	case strings.TrimSpace(c.SearchURL) == "":
		return errors.New("search_url must not be empty")
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.QueueSize < 0:
		return fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize)
	case c.FetchTimeout <= 0:
		return fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	return nil
}

// ScraperOptions translates the fetch settings into scraper options
func (c *Config) ScraperOptions() []scraper.Option {
	return []scraper.Option{
		scraper.WithBaseURL(c.SearchURL),
		scraper.WithTerm(c.Term),
		scraper.WithUserAgent(c.UserAgent),
		scraper.WithTimeout(c.FetchTimeout),
	}
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
