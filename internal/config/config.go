// Package config loads sovereign.yaml and applies environment overrides.
//
// Precedence, lowest first: built-in defaults, the config file, SOVEREIGN_*
// environment variables, then command-line flags (applied by the CLI).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in HomeDir when no path is given.
const FileName = "sovereign.yaml"

// Config is the process configuration.
type Config struct {
	// Path is the file the config was read from; empty when none existed.
	Path string `yaml:"-"`

	DBPath     string `yaml:"db_path"`
	CacheTTLMs int    `yaml:"cache_ttl_ms"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	DebounceMs int    `yaml:"debounce_ms"`

	// LogicFile is a YAML or JSON logic payload applied by "sovereign watch"
	// at start and whenever the file changes.
	LogicFile string `yaml:"logic_file"`

	// PollMs is how often "sovereign watch" checks the database for commits
	// made by other processes.
	PollMs int `yaml:"poll_ms"`

	Telemetry Telemetry `yaml:"telemetry"`
}

// Telemetry configures metric export.
type Telemetry struct {
	Enabled    bool   `yaml:"enabled"`
	Exporter   string `yaml:"exporter"`
	IntervalMs int    `yaml:"interval_ms"`
}

// Interval is IntervalMs as a duration.
func (t Telemetry) Interval() time.Duration {
	return time.Duration(t.IntervalMs) * time.Millisecond
}

// CacheTTL is CacheTTLMs as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMs) * time.Millisecond
}

// Debounce is DebounceMs as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Poll is PollMs as a duration.
func (c Config) Poll() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}

// HomeDir is $SOVEREIGN_HOME, or ~/.sovereign.
func HomeDir() string {
	if override := os.Getenv("SOVEREIGN_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".sovereign")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:     filepath.Join(HomeDir(), "ledger.db"),
		CacheTTLMs: 5000,
		LogLevel:   "info",
		LogFormat:  "text",
		DebounceMs: 250,
		PollMs:     1000,
		Telemetry: Telemetry{
			Exporter:   "log",
			IntervalMs: 60000,
		},
	}
}

// Load reads the config file at path, or HomeDir/sovereign.yaml when path
// is empty, and applies environment overrides. A missing default file is
// not an error; a missing explicit path is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(HomeDir(), FileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(bytes.NewReader(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Path = path
		resolveRelative(&cfg, filepath.Dir(path))
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decode parses YAML into cfg, rejecting unknown keys. An empty document
// leaves cfg unchanged.
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// resolveRelative makes file paths in the config relative to its directory.
func resolveRelative(cfg *Config, dir string) {
	if cfg.DBPath != "" && cfg.DBPath != ":memory:" && !filepath.IsAbs(cfg.DBPath) {
		cfg.DBPath = filepath.Join(dir, cfg.DBPath)
	}
	if cfg.LogicFile != "" && !filepath.IsAbs(cfg.LogicFile) {
		cfg.LogicFile = filepath.Join(dir, cfg.LogicFile)
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("SOVEREIGN_DB"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("SOVEREIGN_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("SOVEREIGN_LOG_FORMAT"); raw != "" {
		cfg.LogFormat = raw
	}
	if raw := os.Getenv("SOVEREIGN_CACHE_TTL_MS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.CacheTTLMs = v
		}
	}
	if raw := os.Getenv("SOVEREIGN_DEBOUNCE_MS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.DebounceMs = v
		}
	}
	if raw := os.Getenv("SOVEREIGN_POLL_MS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.PollMs = v
		}
	}
	if raw := os.Getenv("SOVEREIGN_TELEMETRY"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.Telemetry.Enabled = v
		}
	}
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = Default().DBPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.PollMs == 0 {
		cfg.PollMs = Default().PollMs
	}
	if cfg.Telemetry.IntervalMs == 0 {
		cfg.Telemetry.IntervalMs = Default().Telemetry.IntervalMs
	}
	if cfg.Telemetry.Exporter == "" {
		cfg.Telemetry.Exporter = "log"
	}
	cfg.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(cfg.Telemetry.Exporter))
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: log_level %q must be debug, info, warn or error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format %q must be text or json", c.LogFormat)
	}
	if c.CacheTTLMs < 0 {
		return fmt.Errorf("config: cache_ttl_ms must be >= 0, got %d", c.CacheTTLMs)
	}
	if c.DebounceMs < 0 {
		return fmt.Errorf("config: debounce_ms must be >= 0, got %d", c.DebounceMs)
	}
	if c.PollMs <= 0 {
		return fmt.Errorf("config: poll_ms must be > 0, got %d", c.PollMs)
	}
	if c.Telemetry.Exporter != "log" {
		return fmt.Errorf("config: telemetry.exporter %q must be log", c.Telemetry.Exporter)
	}
	if c.Telemetry.IntervalMs <= 0 {
		return fmt.Errorf("config: telemetry.interval_ms must be > 0, got %d", c.Telemetry.IntervalMs)
	}
	return nil
}
