// Package config loads and validates the credstore.yaml file. Structural
// validation runs against an embedded JSON schema; semantic checks (duration
// syntax, fraction ranges, name uniqueness) run afterwards with field-level
// errors.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	cserrors "github.com/systmms/credstore/internal/errors"
)

//go:embed schema.json
var schemaJSON string

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "credstore.yaml"

// Definition is the credstore.yaml structure. Provider order is priority
// order: earlier entries win.
type Definition struct {
	Version   int              `yaml:"version"`
	Providers []ProviderConfig `yaml:"providers"`
	Resolver  ResolverConfig   `yaml:"resolver,omitempty"`
	Cache     CacheConfig      `yaml:"cache,omitempty"`
	Circuit   CircuitConfig    `yaml:"circuit,omitempty"`
	Rotation  RotationConfig   `yaml:"rotation,omitempty"`
}

// ProviderConfig declares one backend instance. Backend-specific keys sit
// inline next to name/type.
type ProviderConfig struct {
	Name      string                 `yaml:"name"`
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms,omitempty"`
	Config    map[string]interface{} `yaml:",inline"`
}

// Timeout returns the per-provider network timeout, or zero when unset.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// ResolverConfig tunes the foreground resolve path.
type ResolverConfig struct {
	DefaultMaxWait string `yaml:"default_max_wait,omitempty"`
}

// CacheConfig tunes staleness computation.
type CacheConfig struct {
	RefreshLeadFraction float64 `yaml:"refresh_lead_fraction,omitempty"`
	DefaultTTL          string  `yaml:"default_ttl,omitempty"`
}

// CircuitConfig tunes per-provider failure handling.
type CircuitConfig struct {
	FailureThreshold int    `yaml:"failure_threshold,omitempty"`
	OpenFor          string `yaml:"open_for,omitempty"`
}

// RotationConfig tunes the background refresh loop.
type RotationConfig struct {
	Interval                     string  `yaml:"interval,omitempty"`
	JitterFraction               float64 `yaml:"jitter_fraction,omitempty"`
	ProactiveRefreshFailureLimit int     `yaml:"proactive_refresh_failure_limit,omitempty"`
}

// Load reads, schema-checks, and validates a configuration file.
func Load(path string) (*Definition, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cserrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Create a credstore.yaml or pass --config",
			}
		}
		return nil, cserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}
	return Parse(data)
}

// Parse unmarshals and validates raw YAML.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, cserrors.ConfigError{
			Field:      "yaml",
			Message:    fmt.Sprintf("invalid YAML: %v", err),
			Suggestion: "Check indentation and syntax",
		}
	}
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// validateSchema round-trips the YAML through generic maps into JSON and
// checks it against the embedded schema.
func validateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	jsonData, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return fmt.Errorf("failed to convert config for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}
		return cserrors.ConfigError{
			Field:      "schema",
			Message:    "configuration does not match schema:\n  - " + strings.Join(messages, "\n  - "),
			Suggestion: "Compare your file against the documented configuration format",
		}
	}
	return nil
}

// normalizeYAML rewrites yaml.v3's map[string]interface{} trees so that any
// nested map[interface{}]interface{} (from older emitters) marshals to JSON.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

func (d *Definition) validate() error {
	if len(d.Providers) == 0 {
		return cserrors.ConfigError{
			Field:      "providers",
			Message:    "at least one provider is required",
			Suggestion: "Add a providers entry, e.g. a 'static' provider for development",
		}
	}
	seen := make(map[string]bool, len(d.Providers))
	for i, p := range d.Providers {
		if p.Name == "" {
			return cserrors.ConfigError{
				Field:   fmt.Sprintf("providers[%d].name", i),
				Message: "provider name must not be empty",
			}
		}
		if seen[p.Name] {
			return cserrors.ConfigError{
				Field:      fmt.Sprintf("providers[%d].name", i),
				Value:      p.Name,
				Message:    "duplicate provider name",
				Suggestion: "Give each provider a unique name",
			}
		}
		seen[p.Name] = true
		if p.Type == "" {
			return cserrors.ConfigError{
				Field:   fmt.Sprintf("providers[%d].type", i),
				Message: "provider type must not be empty",
			}
		}
		if p.TimeoutMs < 0 {
			return cserrors.ConfigError{
				Field:   fmt.Sprintf("providers[%d].timeout_ms", i),
				Value:   fmt.Sprintf("%d", p.TimeoutMs),
				Message: "timeout must be positive",
			}
		}
	}

	if f := d.Cache.RefreshLeadFraction; f != 0 && (f <= 0 || f >= 1) {
		return cserrors.ConfigError{
			Field:      "cache.refresh_lead_fraction",
			Value:      fmt.Sprintf("%g", f),
			Message:    "must be between 0 and 1 exclusive",
			Suggestion: "0.1 refreshes entries in the last 10% of their TTL",
		}
	}
	if f := d.Rotation.JitterFraction; f < 0 || f >= 1 {
		return cserrors.ConfigError{
			Field:   "rotation.jitter_fraction",
			Value:   fmt.Sprintf("%g", f),
			Message: "must be in [0, 1)",
		}
	}
	if d.Circuit.FailureThreshold < 0 {
		return cserrors.ConfigError{
			Field:   "circuit.failure_threshold",
			Value:   fmt.Sprintf("%d", d.Circuit.FailureThreshold),
			Message: "must be at least 1",
		}
	}

	for field, raw := range map[string]string{
		"resolver.default_max_wait": d.Resolver.DefaultMaxWait,
		"cache.default_ttl":         d.Cache.DefaultTTL,
		"circuit.open_for":          d.Circuit.OpenFor,
		"rotation.interval":         d.Rotation.Interval,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return cserrors.ConfigError{
				Field:      field,
				Value:      raw,
				Message:    "invalid duration",
				Suggestion: "Use Go duration syntax, e.g. 30s or 5m",
			}
		}
	}
	return nil
}

// Duration parses an optional duration field, returning fallback when the
// field is empty. Validation has already rejected malformed values.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
