package memory

import (
	"fmt"
	"sort"
)

// defaultImportance holds the canonical per-category importance defaults.
// These are tuning values, not invariants: config may override them through
// NewRegistryWithOverrides.
var defaultImportance = map[Category]float64{
	CategoryGoal:        1.0,
	CategoryDecision:    0.95,
	CategoryIdentity:    0.92,
	CategoryPreference:  0.90,
	CategoryTask:        0.90,
	CategoryEvent:       0.88,
	CategoryObservation: 0.82,
	CategoryFact:        0.75,
}

// importanceFloor is the per-category minimum the consolidation decay pass
// never goes below.
var importanceFloor = map[Category]float64{
	CategoryGoal:        0.50,
	CategoryDecision:    0.45,
	CategoryIdentity:    0.45,
	CategoryPreference:  0.35,
	CategoryTask:        0.35,
	CategoryEvent:       0.30,
	CategoryObservation: 0.25,
	CategoryFact:        0.20,
}

// categoryAliases maps deprecated category names to canonical categories.
var categoryAliases = map[string]Category{
	"objection":     CategoryPreference,
	"promise":       CategoryTask,
	"session_state": CategoryFact,
}

// requiredPayload lists payload fields a category cannot be created without.
var requiredPayload = map[Category][]string{
	CategoryTask: {"due_at"},
}

// defaultWeight holds per-relation edge weight defaults.
var defaultWeight = map[Relation]float64{
	RelationPreferenceFor:  0.85,
	RelationDescribes:      0.70,
	RelationInvolved:       0.75,
	RelationForEntity:      0.80,
	RelationAssociatedWith: 0.60,
	RelationSupports:       0.65,
	RelationBlocks:         0.90,
}

// Known reports whether r is a canonical relation.
func (r Relation) Known() bool {
	_, ok := defaultWeight[r]
	return ok
}

// Registry is the closed set of memory categories and relations: canonical
// names, deprecated aliases, default importances and edge weights, and the
// payload fields each category requires. A Registry is immutable after
// construction and safe for concurrent use.
type Registry struct {
	defaults map[Category]float64
	weights  map[Relation]float64
}

// NewRegistry returns a registry with the canonical defaults.
func NewRegistry() *Registry {
	return &Registry{defaults: defaultImportance, weights: defaultWeight}
}

// NewRegistryWithOverrides returns a registry whose per-category importance
// defaults and per-relation edge weights are replaced by the given tables
// where present. Unknown names or out-of-range values fail with
// ErrValidation.
func NewRegistryWithOverrides(importance, weights map[string]float64) (*Registry, error) {
	defaults := make(map[Category]float64, len(defaultImportance))
	for cat, imp := range defaultImportance {
		defaults[cat] = imp
	}

	// Deterministic iteration keeps error messages stable.
	for _, name := range sortedKeys(importance) {
		cat, ok := canonical(name)
		if !ok {
			return nil, fmt.Errorf("registry: unknown category %q in importance overrides: %w", name, ErrValidation)
		}
		imp := importance[name]
		if imp < 0 || imp > 1 {
			return nil, fmt.Errorf("registry: importance override %v for %q outside [0,1]: %w", imp, name, ErrValidation)
		}
		defaults[cat] = imp
	}

	merged := make(map[Relation]float64, len(defaultWeight))
	for rel, w := range defaultWeight {
		merged[rel] = w
	}
	for _, name := range sortedKeys(weights) {
		rel := Relation(name)
		if !rel.Known() {
			return nil, fmt.Errorf("registry: unknown relation %q in weight overrides: %w", name, ErrValidation)
		}
		w := weights[name]
		if w <= 0 || w > 1 {
			return nil, fmt.Errorf("registry: weight override %v for %q outside (0,1]: %w", w, name, ErrValidation)
		}
		merged[rel] = w
	}

	return &Registry{defaults: defaults, weights: merged}, nil
}

func sortedKeys(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// canonical maps a raw name (canonical or alias) to its category.
func canonical(name string) (Category, bool) {
	cat := Category(name)
	if _, ok := defaultImportance[cat]; ok {
		return cat, true
	}
	if cat, ok := categoryAliases[name]; ok {
		return cat, true
	}
	return "", false
}

// ResolveCategory maps a raw category name or deprecated alias to its
// canonical category. Unknown names fail with ErrValidation.
func (r *Registry) ResolveCategory(name string) (Category, error) {
	cat, ok := canonical(name)
	if !ok {
		return "", fmt.Errorf("registry: unknown category %q: %w", name, ErrValidation)
	}
	return cat, nil
}

// DefaultImportance returns the default importance for a canonical category.
func (r *Registry) DefaultImportance(cat Category) float64 {
	return r.defaults[cat]
}

// ImportanceFloor returns the decay floor for a canonical category.
func (r *Registry) ImportanceFloor(cat Category) float64 {
	return importanceFloor[cat]
}

// ValidatePayload checks that payload carries every field the category
// requires (e.g. a task without due_at cannot be surfaced by reminder-style
// consumers). Fails with ErrValidation.
func (r *Registry) ValidatePayload(cat Category, payload map[string]any) error {
	for _, field := range requiredPayload[cat] {
		if v, ok := payload[field]; !ok || v == nil {
			return fmt.Errorf("registry: category %q requires payload field %q: %w", cat, field, ErrValidation)
		}
	}
	return nil
}

// ResolveRelation validates an edge relation name. Unknown relations fail
// with ErrValidation.
func (r *Registry) ResolveRelation(name string) (Relation, error) {
	rel := Relation(name)
	if _, ok := r.weights[rel]; !ok {
		return "", fmt.Errorf("registry: unknown relation %q: %w", name, ErrValidation)
	}
	return rel, nil
}

// DefaultWeight returns the default edge weight for a relation.
func (r *Registry) DefaultWeight(rel Relation) float64 {
	return r.weights[rel]
}
