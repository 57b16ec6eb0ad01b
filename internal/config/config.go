package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources   Sources   `yaml:"sources"`
	Storage   Storage   `yaml:"storage"`
	Dedup     Dedup     `yaml:"dedup"`
	Snapshots Snapshots `yaml:"snapshots"`
	Logging   Logging   `yaml:"logging"`
}

type Sources struct {
	Feeds       []Feed        `yaml:"feeds"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`

	// FetchAbstracts fills empty abstracts from the article page.
	FetchAbstracts bool `yaml:"fetch_abstracts"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Storage locates the persisted files. Relative paths are resolved
// against DataDir.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	Corpus     string `yaml:"corpus"`
	IndexCache string `yaml:"index_cache"`
	Embeddings string `yaml:"embeddings"`
	Impact     string `yaml:"impact"`
	Ledger     string `yaml:"ledger"`
	RawDir     string `yaml:"raw_dir"`
}

type Dedup struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	InfluenceDeadband   float64 `yaml:"influence_deadband"`
	RecentWindowDays    int     `yaml:"recent_window_days"`
	LookbackDays        int     `yaml:"lookback_days"`
}

type Snapshots struct {
	Enabled bool `yaml:"enabled"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for envscan.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "envscan")
}

// DataDir returns the XDG data directory for envscan.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "envscan")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/envscan/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'envscan init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			Concurrency: 4,
			Timeout:     30 * time.Second,
		},
		Storage: Storage{
			Corpus:     "signals/database.json",
			IndexCache: "cache/index-cache.json",
			Embeddings: "cache/embeddings-dedup.json",
			Impact:     "cache/impact-compressed.json",
			Ledger:     "ledger.db",
			RawDir:     "raw",
		},
		Dedup: Dedup{
			SimilarityThreshold: 0.95,
			InfluenceDeadband:   0.01,
			RecentWindowDays:    7,
			LookbackDays:        30,
		},
		Snapshots: Snapshots{Enabled: true},
		Logging:   Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if t := c.Dedup.SimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0, 1], got %v", t)
	}
	if c.Dedup.InfluenceDeadband < 0 {
		return fmt.Errorf("dedup.influence_deadband must not be negative, got %v", c.Dedup.InfluenceDeadband)
	}
	if c.Dedup.RecentWindowDays <= 0 {
		return fmt.Errorf("dedup.recent_window_days must be positive, got %d", c.Dedup.RecentWindowDays)
	}
	if c.Dedup.LookbackDays <= 0 {
		return fmt.Errorf("dedup.lookback_days must be positive, got %d", c.Dedup.LookbackDays)
	}
	if c.Sources.Concurrency <= 0 {
		c.Sources.Concurrency = 1
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DataDir()
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.GetDataDir(), p)
}

// CorpusPath returns the path of the signal corpus file.
func (c *Config) CorpusPath() string { return c.resolve(c.Storage.Corpus) }

// IndexCachePath returns the path of the index cache file.
func (c *Config) IndexCachePath() string { return c.resolve(c.Storage.IndexCache) }

// EmbeddingsPath returns the path of the deduplicated embedding document.
func (c *Config) EmbeddingsPath() string { return c.resolve(c.Storage.Embeddings) }

// ImpactPath returns the path of the compressed impact matrix.
func (c *Config) ImpactPath() string { return c.resolve(c.Storage.Impact) }

// LedgerPath returns the path of the SQLite run ledger.
func (c *Config) LedgerPath() string { return c.resolve(c.Storage.Ledger) }

// RawDir returns the directory scan files are written to.
func (c *Config) RawDir() string { return c.resolve(c.Storage.RawDir) }

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
