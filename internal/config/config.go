// Package config loads mca settings from YAML or TOML with MCA_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/mca/internal/external"
	"github.com/abhisek/mca/internal/intervention"
	"github.com/abhisek/mca/internal/llm"
	"github.com/abhisek/mca/internal/logging"
	"github.com/abhisek/mca/internal/thresholds"
)

// Config holds all mca configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" toml:"store"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	External    external.Config   `yaml:"external" toml:"external"`
	LLM         llm.Config        `yaml:"llm" toml:"llm"`
	Learner     LearnerConfig     `yaml:"learner" toml:"learner"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
	Recommender RecommenderConfig `yaml:"recommender" toml:"recommender"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
}

type StoreConfig struct {
	// Path is the SQLite file. Empty means store.DefaultDBPath.
	Path string `yaml:"path" toml:"path"`
	// SnapshotRetention is how many stability snapshots are kept.
	SnapshotRetention int `yaml:"snapshot_retention" toml:"snapshot_retention"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type LearnerConfig struct {
	thresholds.Config `yaml:",inline"`

	// ArchiveDir receives feedback evicted from memory. Empty disables
	// archiving.
	ArchiveDir string `yaml:"archive_dir" toml:"archive_dir"`
}

type SessionConfig struct {
	WindowSize int `yaml:"window_size" toml:"window_size"`
	QueueSize  int `yaml:"queue_size" toml:"queue_size"`
}

type RecommenderConfig struct {
	MaxCount       int                           `yaml:"max_count" toml:"max_count"`
	FatiguePenalty int                           `yaml:"fatigue_penalty" toml:"fatigue_penalty"`
	Caps           map[intervention.Category]int `yaml:"caps" toml:"caps"`
}

type IngestConfig struct {
	// SpoolDir is watched by `mca feedback watch`.
	SpoolDir string `yaml:"spool_dir" toml:"spool_dir"`
	// Debounce coalesces bursts of writes to one file.
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Store:    StoreConfig{SnapshotRetention: 10000},
		Logging:  LoggingConfig{Level: "info", Format: logging.FormatConsole},
		External: external.DefaultConfig(),
		LLM:      llm.DefaultConfig(),
		Learner:  LearnerConfig{Config: thresholds.DefaultConfig()},
		Session:  SessionConfig{WindowSize: 10, QueueSize: 64},
		Recommender: RecommenderConfig{
			MaxCount:       intervention.DefaultMaxCount,
			FatiguePenalty: intervention.FatiguePenalty,
			Caps:           intervention.DefaultCaps(),
		},
		Ingest: IngestConfig{Debounce: 250 * time.Millisecond},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. The format follows the extension: .toml, or YAML otherwise.
// An empty path uses the first file found in DefaultPaths, if any.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		for _, p := range DefaultPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	cfg.Learner.ArchiveDir = expandHome(cfg.Learner.ArchiveDir)
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Ingest.SpoolDir = expandHome(cfg.Ingest.SpoolDir)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return nil
}

// DefaultPaths lists candidate config files in lookup order.
func DefaultPaths() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "mca"))
	}
	if home, _ := os.UserHomeDir(); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", "mca"))
	}

	var paths []string
	for _, d := range dirs {
		paths = append(paths,
			filepath.Join(d, "config.yaml"),
			filepath.Join(d, "config.toml"),
		)
	}
	return paths
}

// ApplyEnv overrides fields from MCA_* variables. LLM variables are
// handled by llm.Config.ApplyEnv.
func (c *Config) ApplyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Store.Path, "MCA_DB")
	setString(&c.Logging.Level, "MCA_LOG_LEVEL")
	setString(&c.Logging.Format, "MCA_LOG_FORMAT")
	setString(&c.External.Kind, "MCA_EXTERNAL_KIND")
	setString(&c.External.BaseURL, "MCA_EXTERNAL_URL")
	setString(&c.Learner.ArchiveDir, "MCA_ARCHIVE_DIR")
	setString(&c.Ingest.SpoolDir, "MCA_SPOOL_DIR")

	if v := os.Getenv("MCA_EXTERNAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MCA_EXTERNAL_TIMEOUT: %w", err)
		}
		c.External.Timeout = d
	}
	if v := os.Getenv("MCA_MAX_INTERVENTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MCA_MAX_INTERVENTIONS: %w", err)
		}
		c.Recommender.MaxCount = n
	}

	c.LLM.ApplyEnv()
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	switch c.Logging.Format {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	if err := c.External.Validate(); err != nil {
		return err
	}
	if c.External.Kind == external.KindLLM {
		if err := c.LLM.Validate(); err != nil {
			return fmt.Errorf("llm: %w", err)
		}
	}
	if c.Store.SnapshotRetention < 0 {
		return fmt.Errorf("store: snapshot_retention must not be negative")
	}
	if c.Recommender.MaxCount < 0 {
		return fmt.Errorf("recommender: max_count must not be negative")
	}
	for cat, n := range c.Recommender.Caps {
		switch cat {
		case intervention.Verification, intervention.Reflection, intervention.Planning,
			intervention.Learning, intervention.Agency:
		default:
			return fmt.Errorf("recommender: unknown category %q", cat)
		}
		if n < 0 {
			return fmt.Errorf("recommender: cap for %s must not be negative", cat)
		}
	}
	if c.Session.WindowSize < 0 || c.Session.QueueSize < 0 {
		return fmt.Errorf("session: sizes must not be negative")
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
