// Package gate evaluates a declarative rule table against aggregated scan
// metrics and decides whether a deployment may proceed.
package gate

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Well-known gate ids. The metric each id is measured against is resolved
// in evaluate.go; ids outside this set fail closed.
const (
	GateCritical     = "criticalVulnerabilities"
	GateHigh         = "highVulnerabilities"
	GateMedium       = "mediumVulnerabilities"
	GateLow          = "lowVulnerabilities"
	GateRegressions  = "regressions"
	GateTestCoverage = "testCoverage"
)

type Threshold struct {
	Max *int `yaml:"max" json:"max,omitempty"`
	Min *int `yaml:"min" json:"min,omitempty"`
}

type Gate struct {
	Name          string    `yaml:"name" json:"name"`
	Enabled       bool      `yaml:"enabled" json:"enabled"`
	Blocking      bool      `yaml:"blocking" json:"blocking"`
	Threshold     Threshold `yaml:"threshold" json:"threshold"`
	Sources       []string  `yaml:"sources" json:"sources,omitempty"`
	RequiredTests []string  `yaml:"requiredTests" json:"requiredTests,omitempty"`
}

// Override carries environment-specific replacements for individual gate
// fields. Every field is a pointer: nil means "keep the default", so
// overriding one field can never silently discard its siblings.
type Override struct {
	Name          *string            `yaml:"name"`
	Enabled       *bool              `yaml:"enabled"`
	Blocking      *bool              `yaml:"blocking"`
	Threshold     *ThresholdOverride `yaml:"threshold"`
	Sources       *[]string          `yaml:"sources"`
	RequiredTests *[]string          `yaml:"requiredTests"`
}

type ThresholdOverride struct {
	Max *int `yaml:"max"`
	Min *int `yaml:"min"`
}

type Config struct {
	Gates        map[string]Gate                `yaml:"gates"`
	Environments map[string]map[string]Override `yaml:"environments"`
}

// ConfigError marks a gate configuration that could not be used. The caller
// falls back to the built-in default and logs the fallback.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	return "gate config " + e.Path + ": " + e.Reason
}

func intp(v int) *int { return &v }

// Default is the built-in configuration used when no file is supplied or
// the supplied file is unusable. Thresholds are production-tight; the
// environments map relaxes them for pre-production.
func Default() Config {
	return Config{
		Gates: map[string]Gate{
			GateCritical: {
				Name:      "Critical vulnerabilities",
				Enabled:   true,
				Blocking:  true,
				Threshold: Threshold{Max: intp(0)},
			},
			GateHigh: {
				Name:      "High vulnerabilities",
				Enabled:   true,
				Blocking:  true,
				Threshold: Threshold{Max: intp(0)},
			},
			GateMedium: {
				Name:      "Medium vulnerabilities",
				Enabled:   true,
				Blocking:  false,
				Threshold: Threshold{Max: intp(10)},
			},
			GateLow: {
				Name:      "Low vulnerabilities",
				Enabled:   true,
				Blocking:  false,
				Threshold: Threshold{Max: intp(25)},
			},
			GateRegressions: {
				Name:      "Baseline regressions",
				Enabled:   true,
				Blocking:  true,
				Threshold: Threshold{Max: intp(0)},
			},
			GateTestCoverage: {
				Name:          "Test coverage",
				Enabled:       true,
				Blocking:      true,
				Threshold:     Threshold{Min: intp(80)},
				RequiredTests: []string{"dependency", "static-analysis"},
			},
		},
		Environments: map[string]map[string]Override{
			"development": {
				GateHigh: {
					Blocking:  boolp(false),
					Threshold: &ThresholdOverride{Max: intp(10)},
				},
				GateMedium: {
					Threshold: &ThresholdOverride{Max: intp(50)},
				},
				GateTestCoverage: {
					Blocking:  boolp(false),
					Threshold: &ThresholdOverride{Min: intp(50)},
				},
			},
			"staging": {
				GateHigh: {
					Threshold: &ThresholdOverride{Max: intp(2)},
				},
				GateTestCoverage: {
					Threshold: &ThresholdOverride{Min: intp(70)},
				},
			},
			"production": {},
		},
	}
}

func boolp(v bool) *bool { return &v }

// Load reads and validates a gate configuration file. On any failure the
// returned error wraps *ConfigError and the caller is expected to fall back
// to Default().
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigError{Path: path, Reason: err.Error()}
	}
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return Config{}, &ConfigError{Path: path, Reason: "parse: " + err.Error()}
	}
	if schemaErrs := validateConfigSchema(&root); len(schemaErrs) > 0 {
		return Config{}, &ConfigError{Path: path, Reason: formatSchemaErrors(schemaErrs)}
	}
	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return Config{}, &ConfigError{Path: path, Reason: "decode: " + err.Error()}
	}
	if errs := validateConfig(cfg); len(errs) > 0 {
		return Config{}, &ConfigError{Path: path, Reason: errs[0]}
	}
	return cfg, nil
}

func validateConfig(cfg Config) []string {
	var errs []string
	if len(cfg.Gates) == 0 {
		errs = append(errs, "no gates defined")
	}
	for _, id := range sortedGateIDs(cfg.Gates) {
		g := cfg.Gates[id]
		if g.Threshold.Max == nil && g.Threshold.Min == nil {
			errs = append(errs, fmt.Sprintf("gate %s: threshold requires max or min", id))
		}
		if g.Threshold.Max != nil && *g.Threshold.Max < 0 {
			errs = append(errs, fmt.Sprintf("gate %s: threshold.max cannot be negative", id))
		}
		if g.Threshold.Min != nil && *g.Threshold.Min < 0 {
			errs = append(errs, fmt.Sprintf("gate %s: threshold.min cannot be negative", id))
		}
		for _, src := range g.Sources {
			if !knownSource(src) {
				errs = append(errs, fmt.Sprintf("gate %s: unknown source %q", id, src))
			}
		}
	}
	for env, overrides := range cfg.Environments {
		for id := range overrides {
			if _, ok := cfg.Gates[id]; !ok {
				errs = append(errs, fmt.Sprintf("environment %s overrides unknown gate %s", env, id))
			}
		}
	}
	sort.Strings(errs)
	return errs
}

func knownSource(s string) bool {
	switch s {
	case "dependency", "static-analysis", "dynamic-scan", "container":
		return true
	}
	return false
}

// Resolve produces the effective gate table for an environment: the default
// gates with the environment's per-field overrides merged in. Unknown
// environments resolve to the unmodified defaults.
func Resolve(cfg Config, env string) map[string]Gate {
	out := make(map[string]Gate, len(cfg.Gates))
	overrides := cfg.Environments[env]
	for id, g := range cfg.Gates {
		if o, ok := overrides[id]; ok {
			g = merge(g, o)
		}
		out[id] = g
	}
	return out
}

// merge applies an override to a gate field by field. It is total: every
// Gate field is either replaced by a non-nil override value or kept, and
// adding a field to Gate without extending merge is a compile-visible gap
// in the tests.
func merge(g Gate, o Override) Gate {
	if o.Name != nil {
		g.Name = *o.Name
	}
	if o.Enabled != nil {
		g.Enabled = *o.Enabled
	}
	if o.Blocking != nil {
		g.Blocking = *o.Blocking
	}
	if o.Threshold != nil {
		if o.Threshold.Max != nil {
			g.Threshold.Max = o.Threshold.Max
		}
		if o.Threshold.Min != nil {
			g.Threshold.Min = o.Threshold.Min
		}
	}
	if o.Sources != nil {
		g.Sources = append([]string{}, (*o.Sources)...)
	}
	if o.RequiredTests != nil {
		g.RequiredTests = append([]string{}, (*o.RequiredTests)...)
	}
	return g
}

func sortedGateIDs(gates map[string]Gate) []string {
	ids := make([]string, 0, len(gates))
	for id := range gates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
