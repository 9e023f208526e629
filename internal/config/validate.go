package config

import (
	"errors"
	"fmt"
)

// Validate checks the structural validity of a Config. All problems are
// reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateStorage(cfg.Storage)...)
	errs = append(errs, validateRetrieval(cfg.Retrieval)...)
	errs = append(errs, validateConsolidation(cfg.Consolidation)...)
	errs = append(errs, validateEmbedding(cfg.Embedding)...)
	errs = append(errs, validateLog(cfg.Log)...)
	errs = append(errs, validateOverrides("importance", cfg.Importance)...)
	errs = append(errs, validateOverrides("weights", cfg.Weights)...)

	return errors.Join(errs...)
}

func validateStorage(s StorageConfig) []error {
	var errs []error
	switch s.Backend {
	case "", "sqlite":
		if s.Path == "" {
			errs = append(errs, errors.New("config: storage.path is required for the sqlite backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage.backend %q (supported: sqlite, memory)", s.Backend))
	}
	if s.BusyTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("config: storage.busy_timeout_ms must not be negative, got %d", s.BusyTimeoutMS))
	}
	return errs
}

func validateRetrieval(r RetrievalConfig) []error {
	var errs []error
	if r.HalfLife < 0 {
		errs = append(errs, errors.New("config: retrieval.half_life must not be negative"))
	}
	if r.SimilarityTimeout < 0 {
		errs = append(errs, errors.New("config: retrieval.similarity_timeout must not be negative"))
	}
	if r.DefaultLimit < 0 {
		errs = append(errs, fmt.Errorf("config: retrieval.default_limit must not be negative, got %d", r.DefaultLimit))
	}
	return errs
}

func validateConsolidation(c ConsolidationConfig) []error {
	var errs []error
	if c.DecayFactor < 0 || c.DecayFactor > 1 {
		errs = append(errs, fmt.Errorf("config: consolidation.decay_factor must be in [0,1], got %v", c.DecayFactor))
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("config: consolidation.similarity_threshold must be in [0,1], got %v", c.SimilarityThreshold))
	}
	if c.MinNodes < 0 {
		errs = append(errs, fmt.Errorf("config: consolidation.min_nodes must not be negative, got %d", c.MinNodes))
	}
	if c.StalenessWindow < 0 {
		errs = append(errs, errors.New("config: consolidation.staleness_window must not be negative"))
	}
	return errs
}

func validateEmbedding(e EmbeddingConfig) []error {
	var errs []error
	switch e.Provider {
	case "", "none", "local":
	default:
		errs = append(errs, fmt.Errorf("config: unknown embedding.provider %q (supported: none, local)", e.Provider))
	}
	if e.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("config: embedding.dimensions must not be negative, got %d", e.Dimensions))
	}
	return errs
}

func validateLog(l LogConfig) []error {
	var errs []error
	switch l.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.level %q", l.Level))
	}
	switch l.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.format %q (supported: text, json)", l.Format))
	}
	return errs
}

// validateOverrides range-checks importance and weight overrides. Name
// resolution happens later, against the registry, so aliases stay usable
// here without duplicating the alias table.
func validateOverrides(field string, overrides map[string]float64) []error {
	var errs []error
	for name, v := range overrides {
		if name == "" {
			errs = append(errs, fmt.Errorf("config: %s override with empty name", field))
		}
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("config: %s override %q must be in (0,1], got %v", field, name, v))
		}
	}
	return errs
}
