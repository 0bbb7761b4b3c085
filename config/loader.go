package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/c360/ledpush/errors"
)

// DefaultEnvPrefix prefixes every environment override, as in
// LEDPUSH_BROKER_URL or LEDPUSH_PROCESSOR_MAX_CACHE_SIZE.
const DefaultEnvPrefix = "LEDPUSH"

// File formats recognised by extension.
const (
	FormatJSON   = "json"
	FormatHuJSON = "hujson"
	FormatYAML   = "yaml"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment override prefix. An empty prefix
// disables environment overrides.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer in order and the environment.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		merged = l.deepMergeMaps(merged, raw)
	}

	if err := l.applyEnvOverrides(merged); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "environment overrides")
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode configuration")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes a single document in the given format on top of the
// defaults, without layers or environment overrides.
func Parse(data []byte, format string) (*Config, error) {
	raw, err := decodeRaw(data, format)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode "+format)
	}
	base, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Parse", "encode defaults")
	}
	cfg, err := fromMap((&Loader{}).deepMergeMaps(base, raw))
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode configuration")
	}
	return cfg, nil
}

// loadRaw reads one layer into a generic map with durations normalised to
// nanoseconds.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeRaw(data, formatOf(path))
}

func decodeRaw(data []byte, format string) (map[string]any, error) {
	switch format {
	case FormatHuJSON:
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("invalid hujson: %w", err)
		}
		data = std
		fallthrough
	case FormatJSON:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
	case FormatYAML:
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid yaml: %w", err)
		}
		// Re-encode so every format yields the same JSON value types.
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("yaml document is not representable as JSON: %w", err)
		}
		data = converted
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// formatOf maps a file extension to a format, or "" if unsupported.
func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".hujson", ".jsonc":
		return FormatHuJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return ""
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// field is one leaf setting, addressed as section.key.
type field struct {
	section string
	key     string
	typ     reflect.Type
}

// fields lists every leaf setting of Config from its json tags.
func fields() []field {
	var out []field
	root := reflect.TypeOf(Config{})
	for i := 0; i < root.NumField(); i++ {
		sec := root.Field(i)
		secName := jsonName(sec)
		for j := 0; j < sec.Type.NumField(); j++ {
			f := sec.Type.Field(j)
			out = append(out, field{section: secName, key: jsonName(f), typ: f.Type})
		}
	}
	return out
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return strings.ToLower(f.Name)
	}
	return name
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(raw map[string]any) error {
	for _, f := range fields() {
		if f.typ != durationType {
			continue
		}
		sec, ok := raw[f.section].(map[string]any)
		if !ok {
			continue
		}
		s, ok := sec[f.key].(string)
		if !ok {
			continue
		}
		d, err := parseDurationWithDays(s)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", f.section, f.key, err)
		}
		sec[f.key] = d.Nanoseconds()
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// EnvName returns the environment variable that overrides section.key.
func (l *Loader) EnvName(section, key string) string {
	return strings.ToUpper(l.envPrefix + "_" + section + "_" + key)
}

// applyEnvOverrides sets every leaf whose environment variable is non-empty.
func (l *Loader) applyEnvOverrides(raw map[string]any) error {
	if l.envPrefix == "" {
		return nil
	}
	for _, f := range fields() {
		name := l.EnvName(f.section, f.key)
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		if err := validateEnvVar(name, val); err != nil {
			return err
		}
		v, err := convertEnv(val, f.typ)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		sec, ok := raw[f.section].(map[string]any)
		if !ok {
			sec = map[string]any{}
			raw[f.section] = sec
		}
		sec[f.key] = v
	}
	return nil
}

func convertEnv(val string, typ reflect.Type) (any, error) {
	if typ == durationType {
		d, err := parseDurationWithDays(val)
		if err != nil {
			return nil, err
		}
		return d.Nanoseconds(), nil
	}
	switch typ.Kind() {
	case reflect.String:
		return val, nil
	case reflect.Bool:
		return strconv.ParseBool(val)
	case reflect.Int, reflect.Int64, reflect.Int32:
		return strconv.ParseInt(val, 10, 64)
	case reflect.Float64, reflect.Float32:
		return strconv.ParseFloat(val, 64)
	case reflect.Map:
		// k1=v1,k2=v2
		headers := map[string]any{}
		for _, pair := range strings.Split(val, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("expected key=value pairs, got %q", pair)
			}
			headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		return headers, nil
	}
	return nil, fmt.Errorf("unsupported setting type %s", typ)
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromMap decodes a merged map, rejecting unknown keys so typos surface.
func fromMap(raw map[string]any) (*Config, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
