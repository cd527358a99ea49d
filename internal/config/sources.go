package config

import (
	"sort"

	"github.com/ambientdata/horaria/pkg/util/exception"
)

// Wildcard in a metric list selects every non-key column of the raw table.
const Wildcard = "*"

// Source is the validated, immutable descriptor for one data feed.
type Source struct {
	// Name identifies the feed (e.g. "co", "nox", "meteo").
	Name string
	// Table is the raw minute-level table.
	Table string
	// Metrics is the ordered metric column list, or [Wildcard].
	Metrics []string
}

// IsWildcard reports whether the source selects all non-key columns.
func (s Source) IsWildcard() bool {
	return len(s.Metrics) == 1 && s.Metrics[0] == Wildcard
}

// DefaultSources returns the built-in source registry: the five pollutant
// feeds plus the meteorological feed, each over its minute-level table.
func DefaultSources() map[string]SourceConfig {
	return map[string]SourceConfig{
		"co":    {Table: "co_minutales", Metrics: []string{"co_mean"}},
		"nox":   {Table: "nox_minutales", Metrics: []string{"no_mean", "no2_mean", "nox_mean"}},
		"pm10":  {Table: "pm10_minutales", Metrics: []string{"pm10_mean"}},
		"so2":   {Table: "so2_minutales", Metrics: []string{"so2_mean"}},
		"o3":    {Table: "o3_minutales", Metrics: []string{"o3_mean"}},
		"meteo": {Table: "meteo_minutales", Metrics: []string{"dv_mean", "vv_mean", "temp_mean", "hr_mean", "pa_mean", "uv_mean", "lluvia_mean", "rs_mean"}},
	}
}

// Registry is the validated source registry, built once at startup.
type Registry struct {
	sources map[string]Source
	names   []string
}

// NewRegistry validates the configured source map and freezes it. Every
// source needs a table and at least one metric column; a wildcard must stand
// alone.
func NewRegistry(cfg map[string]SourceConfig) (*Registry, error) {
	if len(cfg) == 0 {
		return nil, exception.Newf("config", "no sources configured")
	}

	sources := make(map[string]Source, len(cfg))
	names := make([]string, 0, len(cfg))
	for name, sc := range cfg {
		if sc.Table == "" {
			return nil, exception.Newf("config", "source %q has no table", name)
		}
		if len(sc.Metrics) == 0 {
			return nil, exception.Newf("config", "source %q has no metrics", name)
		}
		for _, m := range sc.Metrics {
			if m == Wildcard && len(sc.Metrics) > 1 {
				return nil, exception.Newf("config", "source %q mixes wildcard and explicit metrics", name)
			}
		}
		metrics := make([]string, len(sc.Metrics))
		copy(metrics, sc.Metrics)
		sources[name] = Source{Name: name, Table: sc.Table, Metrics: metrics}
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{sources: sources, names: names}, nil
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Names returns all source names in stable order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Resolve returns the descriptors for the requested subset, or all sources
// when the subset is empty. Unknown names are a configuration error.
func (r *Registry) Resolve(subset []string) ([]Source, error) {
	names := subset
	if len(names) == 0 {
		names = r.names
	}
	out := make([]Source, 0, len(names))
	for _, name := range names {
		s, ok := r.sources[name]
		if !ok {
			return nil, exception.Newf("config", "unknown source %q (available: %v)", name, r.names)
		}
		out = append(out, s)
	}
	return out, nil
}
