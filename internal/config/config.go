// Package config provides configuration loading and structs for the erabu server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"descriptor_store"`
	Neighbor   NeighborConfig   `yaml:"neighbor_index"`
	Relevancy  RelevancyConfig  `yaml:"relevancy"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Session    SessionConfig    `yaml:"session_control"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                  string  `yaml:"host"`
	Port                  int     `yaml:"port"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	RateLimitPerSecond    float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst        int     `yaml:"rate_limit_burst"`
}

// RequestTimeout returns the per-request deadline.
func (s *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// StoreConfig holds descriptor store settings. The store is read-only from
// the service's perspective; population happens out-of-band.
type StoreConfig struct {
	Backend         string `yaml:"backend"`
	DatabasePath    string `yaml:"database_path"`
	ReadOnly        *bool  `yaml:"read_only"`
	BatchSize       int    `yaml:"batch_size"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// ReadOnlyOrDefault returns the read_only flag; defaults to true when unset.
func (s *StoreConfig) ReadOnlyOrDefault() bool {
	if s.ReadOnly != nil {
		return *s.ReadOnly
	}
	return true
}

// NeighborConfig holds LSH neighbor index settings.
type NeighborConfig struct {
	DistanceMetric string       `yaml:"distance_metric"`
	BitLength      int          `yaml:"bit_length"`
	RandomSeed     int64        `yaml:"random_seed"`
	UseBucketTable *bool        `yaml:"use_bucket_table"`
	Reload         ReloadConfig `yaml:"reload"`
}

// UseBucketTableOrDefault returns whether the sorted bucket table is used;
// defaults to true when unset. When false, queries fall back to a linear
// scan over the bucket set.
func (n *NeighborConfig) UseBucketTableOrDefault() bool {
	if n.UseBucketTable != nil {
		return *n.UseBucketTable
	}
	return true
}

// ReloadConfig holds background index reload settings.
type ReloadConfig struct {
	Enabled             bool   `yaml:"enabled"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	SettleWindowSeconds int    `yaml:"settle_window_seconds"`
	SignalPath          string `yaml:"signal_path"`
}

// PollInterval returns the poll period for the reload monitor.
func (r *ReloadConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// SettleWindow returns the delay inserted before acting on a reload signal,
// so a storm of rapid update signals triggers a single rebuild.
func (r *ReloadConfig) SettleWindow() time.Duration {
	return time.Duration(r.SettleWindowSeconds) * time.Second
}

// RelevancyConfig holds per-session relevancy ranker settings.
type RelevancyConfig struct {
	NegativeAugmentRatio float64 `yaml:"negative_augment_ratio"`
	Concurrency          int     `yaml:"concurrency"`
	RandomSeed           int64   `yaml:"random_seed"`
}

// ClassifierConfig holds adjudication classifier training hyperparameters.
// Models are per-session and never persisted.
type ClassifierConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	Epochs       int     `yaml:"epochs"`
	L2Penalty    float64 `yaml:"l2_penalty"`
	RandomSeed   int64   `yaml:"random_seed"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	PositiveSeedNeighbors int              `yaml:"positive_seed_neighbors"`
	Expiration            ExpirationConfig `yaml:"session_expiration"`
}

// ExpirationConfig holds the expiration sweep settings.
type ExpirationConfig struct {
	Enabled              bool `yaml:"enabled"`
	CheckIntervalSeconds int  `yaml:"check_interval_seconds"`
	SessionTimeoutSecs   int  `yaml:"session_timeout_seconds"`
}

// CheckInterval returns the sweep period.
func (e *ExpirationConfig) CheckInterval() time.Duration {
	return time.Duration(e.CheckIntervalSeconds) * time.Second
}

// SessionTimeout returns the inactivity timeout after which a session expires.
func (e *ExpirationConfig) SessionTimeout() time.Duration {
	return time.Duration(e.SessionTimeoutSecs) * time.Second
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Store.DatabasePath = expandPath(cfg.Store.DatabasePath, configDir)
	if cfg.Neighbor.Reload.SignalPath != "" {
		cfg.Neighbor.Reload.SignalPath = expandPath(cfg.Neighbor.Reload.SignalPath, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
