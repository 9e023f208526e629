// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for memgraph.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Storage       StorageConfig       `yaml:"storage"`
	Session       SessionConfig       `yaml:"session"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Log           LogConfig           `yaml:"log"`

	// Importance overrides the default importance per category. Keys may be
	// canonical category names or aliases.
	Importance map[string]float64 `yaml:"importance,omitempty"`

	// Weights overrides the default edge weight per relation.
	Weights map[string]float64 `yaml:"weights,omitempty"`
}

// StorageConfig selects and tunes the graph backend.
type StorageConfig struct {
	// Backend is "sqlite" (durable) or "memory" (ephemeral, for tests and
	// one-off runs).
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Required for the sqlite backend.
	Path string `yaml:"path"`

	// WAL toggles write-ahead logging. Defaults to on.
	WAL *bool `yaml:"wal,omitempty"`

	// BusyTimeoutMS is the SQLite busy timeout in milliseconds.
	BusyTimeoutMS int `yaml:"busy_timeout_ms,omitempty"`
}

// SessionConfig tunes the session state cache.
type SessionConfig struct {
	// StateMaxIdle evicts cached session state idle longer than this.
	StateMaxIdle Duration `yaml:"state_max_idle"`

	// CleanupSchedule is the cron expression for cache eviction.
	CleanupSchedule string `yaml:"cleanup_schedule"`

	// RebuildScanLimit bounds how many recent nodes are scanned when
	// rebuilding state after a restart.
	RebuildScanLimit int `yaml:"rebuild_scan_limit"`
}

// RetrievalConfig tunes context retrieval ranking.
type RetrievalConfig struct {
	HalfLife          Duration `yaml:"half_life"`
	SimilarityTimeout Duration `yaml:"similarity_timeout"`
	DefaultLimit      int      `yaml:"default_limit"`
}

// ConsolidationConfig tunes the background consolidation and embedding jobs.
type ConsolidationConfig struct {
	Schedule            string   `yaml:"schedule"`
	MinNodes            int      `yaml:"min_nodes"`
	StalenessWindow     Duration `yaml:"staleness_window"`
	DecayFactor         float64  `yaml:"decay_factor"`
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	EmbedSchedule       string   `yaml:"embed_schedule"`
	EmbedBatch          int      `yaml:"embed_batch"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is "none" (retrieval degrades to importance-recency) or
	// "local" (deterministic token-hash vectors).
	Provider string `yaml:"provider"`

	// Dimensions is the vector width for the local provider.
	Dimensions int `yaml:"dimensions,omitempty"`
}

// GatewayConfig tunes the admin HTTP surface.
type GatewayConfig struct {
	// Listen is the bind address, e.g. ":8347". Empty disables the gateway.
	Listen string `yaml:"listen"`

	// AuthToken protects the API routes. Health and metrics stay open.
	AuthToken string `yaml:"auth_token,omitempty"`
}

// TelemetryConfig tunes OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector address, host:port.
	Endpoint string `yaml:"endpoint,omitempty"`

	ServiceName string `yaml:"service_name,omitempty"`
}

// LogConfig tunes structured logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30m".
type Duration time.Duration

// Compile-time interface check.
var _ yaml.Unmarshaler = (*Duration)(nil)

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }
