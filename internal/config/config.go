package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const DefaultPath = "config/config.toml"

type GraphConfig struct {
	// Backend is one of memgraph, neo4j or memory.
	Backend  string `toml:"backend"`
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

type SourceConfig struct {
	APIURL            string   `toml:"api_url"`
	UserAgent         string   `toml:"user_agent"`
	BatchSize         int      `toml:"batch_size"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	MaxRetries        uint64   `toml:"max_retries"`
	Timeout           Duration `toml:"timeout"`
}

type ImportConfig struct {
	Resume      bool `toml:"resume"`
	VerifyOrder bool `toml:"verify_order"`
}

type EnrichmentConfig struct {
	SQLitePath  string `toml:"sqlite_path"`
	Table       string `toml:"table"`
	BatchSize   int    `toml:"batch_size"`
	LookupChunk int    `toml:"lookup_chunk"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type Config struct {
	Graph      GraphConfig      `toml:"graph"`
	Source     SourceConfig     `toml:"source"`
	Import     ImportConfig     `toml:"import"`
	Enrichment EnrichmentConfig `toml:"enrichment"`
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
}

// Duration reads TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Defaults() *Config {
	return &Config{
		Graph: GraphConfig{
			Backend: "memgraph",
			URI:     "bolt://localhost:7687",
		},
		Source: SourceConfig{
			APIURL:            "https://en.wikipedia.org/w/api.php",
			UserAgent:         "evotrees/1.0 (https://github.com/evoapps/evotrees)",
			BatchSize:         50,
			RequestsPerSecond: 5,
			Burst:             1,
			MaxRetries:        5,
			Timeout:           Duration{30 * time.Second},
		},
		Import: ImportConfig{
			VerifyOrder: true,
		},
		Enrichment: EnrichmentConfig{
			SQLitePath:  "data/qualities.sqlite",
			Table:       "qualities",
			BatchSize:   500,
			LookupChunk: 900,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// LoadEnv loads .env when present, reads the file named by CONFIG_PATH (or
// path) and applies environment overrides. A missing config file falls back
// to the defaults.
func LoadEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	if p := os.Getenv("CONFIG_PATH"); p != "" {
		path = p
	}
	if path == "" {
		path = DefaultPath
	}

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Defaults()
	} else if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"GRAPH_BACKEND", &c.Graph.Backend},
		{"GRAPH_URI", &c.Graph.URI},
		{"GRAPH_USER", &c.Graph.User},
		{"GRAPH_PASSWORD", &c.Graph.Password},
		{"GRAPH_DATABASE", &c.Graph.Database},
		{"MEDIAWIKI_API_URL", &c.Source.APIURL},
		{"QUALITIES_DB", &c.Enrichment.SQLitePath},
		{"LOG_LEVEL", &c.Log.Level},
		{"PORT", &c.Server.Port},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("IMPORT_RESUME"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid IMPORT_RESUME %q: %w", v, err)
		}
		c.Import.Resume = b
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Graph.Backend {
	case "memgraph", "neo4j":
		if c.Graph.URI == "" {
			return errors.New("graph.uri is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown graph.backend %q", c.Graph.Backend)
	}
	if c.Source.BatchSize < 1 || c.Source.BatchSize > 50 {
		return fmt.Errorf("source.batch_size must be between 1 and 50, got %d", c.Source.BatchSize)
	}
	if c.Source.RequestsPerSecond <= 0 {
		return errors.New("source.requests_per_second must be positive")
	}
	if c.Enrichment.BatchSize < 1 {
		return errors.New("enrichment.batch_size must be positive")
	}
	if c.Enrichment.LookupChunk < 1 {
		return errors.New("enrichment.lookup_chunk must be positive")
	}
	return nil
}
