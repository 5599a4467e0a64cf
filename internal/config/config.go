package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

type MemgraphConfig struct {
	URI      string `toml:"uri" env:"MEMGRAPH_URI"`
	User     string `toml:"user" env:"MEMGRAPH_USER"`
	Password string `toml:"password" env:"MEMGRAPH_PASSWORD"`
}

type DiffConfig struct {
	DefaultBranch     string   `toml:"default_branch" env:"DIFF_DEFAULT_BRANCH"`
	LabelAttribute    string   `toml:"label_attribute" env:"DIFF_LABEL_ATTRIBUTE"`
	MergeBatchSize    int      `toml:"merge_batch_size" env:"DIFF_MERGE_BATCH_SIZE"`
	NamespacesInclude []string `toml:"namespaces_include" env:"DIFF_NAMESPACES_INCLUDE" envSeparator:","`
	NamespacesExclude []string `toml:"namespaces_exclude" env:"DIFF_NAMESPACES_EXCLUDE" envSeparator:","`
	KindsInclude      []string `toml:"kinds_include" env:"DIFF_KINDS_INCLUDE" envSeparator:","`
	KindsExclude      []string `toml:"kinds_exclude" env:"DIFF_KINDS_EXCLUDE" envSeparator:","`
	// Cache selects where enriched diffs are kept: "badger" or "graph".
	Cache string `toml:"cache" env:"DIFF_CACHE"`
}

type BadgerConfig struct {
	Path       string `toml:"path" env:"BADGER_PATH"`
	InMemory   bool   `toml:"in_memory" env:"BADGER_IN_MEMORY"`
	SyncWrites bool   `toml:"sync_writes" env:"BADGER_SYNC_WRITES"`
}

type ServerConfig struct {
	Address  string `toml:"address" env:"SERVER_ADDRESS"`
	LogLevel string `toml:"log_level" env:"LOG_LEVEL"`
}

type SchemaConfig struct {
	Path string `toml:"path" env:"SCHEMA_PATH"`
}

type Config struct {
	Memgraph MemgraphConfig `toml:"memgraph"`
	Diff     DiffConfig     `toml:"diff"`
	Badger   BadgerConfig   `toml:"badger"`
	Server   ServerConfig   `toml:"server"`
	Schema   SchemaConfig   `toml:"schema"`
}

func Default() *Config {
	return &Config{
		Memgraph: MemgraphConfig{URI: "bolt://localhost:7687"},
		Diff: DiffConfig{
			DefaultBranch:  "main",
			LabelAttribute: "name",
			MergeBatchSize: 100,
			Cache:          "badger",
		},
		Badger: BadgerConfig{Path: "data/diffcache"},
		Server: ServerConfig{Address: ":8080", LogLevel: "info"},
		Schema: SchemaConfig{Path: "config/schema.toml"},
	}
}

// Load reads the TOML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Diff.DefaultBranch == "" {
		return fmt.Errorf("diff.default_branch is required")
	}
	if c.Diff.MergeBatchSize <= 0 {
		return fmt.Errorf("diff.merge_batch_size must be positive, got %d", c.Diff.MergeBatchSize)
	}
	switch c.Diff.Cache {
	case "badger", "graph":
	default:
		return fmt.Errorf("diff.cache must be badger or graph, got %q", c.Diff.Cache)
	}
	return nil
}

func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
