// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when no path is given.
const EnvironmentVariable = "EVENT_REPORTER_CONFIG"

// Format is a configuration file syntax.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
	TOML Format = "toml"
)

// FormatFromPath picks the syntax from the file extension: .yaml/.yml,
// .json/.jsonc, or .toml.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json", ".jsonc":
		return JSON, nil
	case ".toml":
		return TOML, nil
	default:
		return "", fmt.Errorf("config file %s: unrecognized extension (want .yaml, .json, .jsonc or .toml)", path)
	}
}

// File is the on-disk reporter configuration. Field names are the
// same in every syntax.
type File struct {
	// Endpoint is the collector, "host:port" or "udp://host:port".
	Endpoint string `json:"endpoint"`

	// Mode is "envelope" (default) or "metrics".
	Mode string `json:"mode"`

	Threshold int      `json:"threshold"`
	Interval  Duration `json:"interval"`

	Schema string `json:"schema"`
	Host   string `json:"host"`
	Prefix string `json:"prefix"`

	// Encoding is "json" (default) or "cbor".
	Encoding string `json:"encoding"`

	// Compression is "none" (default), "lz4" or "zstd".
	Compression string `json:"compression"`

	SendTimeout Duration `json:"send_timeout"`
	OutboxBytes int      `json:"outbox_bytes"`

	// SendBufferBytes sets the UDP socket send buffer. Zero keeps
	// the system default.
	SendBufferBytes int `json:"send_buffer_bytes"`

	// Client selects the statsd client in metrics mode: "native"
	// (default) or "datadog".
	Client string `json:"client"`

	// DisableDefaultFormatters drops the built-in "ops" aggregation.
	DisableDefaultFormatters bool `json:"disable_default_formatters"`

	// Formatters declares per-event-type formatting, keyed by event
	// type.
	Formatters map[string]FormatterConfig `json:"formatters"`

	// dir is the directory of the loaded file; relative lua_file
	// paths resolve against it.
	dir string
}

// FormatterConfig declares how one event type is formatted: either a
// Lua script (inline or from a file) or a list of aggregates.
type FormatterConfig struct {
	Lua     string   `json:"lua"`
	LuaFile string   `json:"lua_file"`
	Timeout Duration `json:"timeout"`

	Aggregates []AggregateConfig `json:"aggregates"`
}

// AggregateConfig declares one batch-level metric.
type AggregateConfig struct {
	Name  string `json:"name"`
	Field string `json:"field"`

	// Func is "mean" or "sum".
	Func string `json:"func"`

	// Type is "gauge", "timing" or "counter".
	Type string `json:"type"`
}

// Duration accepts a Go duration string ("10s", "250ms") or an
// integer number of milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", text, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var milliseconds int64
	if err := json.Unmarshal(data, &milliseconds); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\" or integer milliseconds, got %s", data)
	}
	*d = Duration(time.Duration(milliseconds) * time.Millisecond)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Load loads the file named by EVENT_REPORTER_CONFIG. There is no
// search path: if the variable is unset, Load fails.
func Load() (*File, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your reporter config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile reads, parses and validates the file at path. The syntax
// is chosen by extension.
func LoadFile(path string) (*File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	file, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	file.dir = filepath.Dir(path)
	return file, nil
}

// Parse decodes data in the given syntax, expands ${VAR} and
// ${VAR:-default} in every string value, and validates the result.
func Parse(data []byte, format Format) (*File, error) {
	var raw map[string]any
	switch format {
	case YAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	case JSON:
		// JSONC permits comments and trailing commas.
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	case TOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	// Every syntax lands in the same generic tree; one JSON pass maps
	// it onto File so field names and duration rules are shared.
	normalized, err := json.Marshal(expandTree(raw))
	if err != nil {
		return nil, fmt.Errorf("normalizing config: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(normalized))
	decoder.DisallowUnknownFields()
	var file File
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks values that do not depend on other packages.
// Everything else is checked when the file is resolved.
func (f *File) Validate() error {
	var errs []error

	if f.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold must not be negative"))
	}
	if f.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative"))
	}
	if f.SendTimeout < 0 {
		errs = append(errs, fmt.Errorf("send_timeout must not be negative"))
	}
	if f.OutboxBytes < 0 {
		errs = append(errs, fmt.Errorf("outbox_bytes must not be negative"))
	}
	if f.SendBufferBytes < 0 {
		errs = append(errs, fmt.Errorf("send_buffer_bytes must not be negative"))
	}
	if f.Threshold > 0 && f.Interval > 0 {
		errs = append(errs, fmt.Errorf("threshold and interval are mutually exclusive"))
	}
	if f.Client != "" && f.Client != "native" && f.Client != "datadog" {
		errs = append(errs, fmt.Errorf("client must be one of: [native datadog]"))
	}

	for _, eventType := range sortedKeys(f.Formatters) {
		formatter := f.Formatters[eventType]
		sources := 0
		for _, set := range []bool{formatter.Lua != "", formatter.LuaFile != "", len(formatter.Aggregates) > 0} {
			if set {
				sources++
			}
		}
		if sources != 1 {
			errs = append(errs, fmt.Errorf("formatters.%s: set exactly one of lua, lua_file, aggregates", eventType))
		}
		for i, aggregate := range formatter.Aggregates {
			if aggregate.Name == "" || aggregate.Field == "" {
				errs = append(errs, fmt.Errorf("formatters.%s.aggregates[%d]: name and field are required", eventType, i))
			}
			if !slices.Contains([]string{"mean", "sum"}, aggregate.Func) {
				errs = append(errs, fmt.Errorf("formatters.%s.aggregates[%d]: func must be one of: [mean sum]", eventType, i))
			}
		}
	}

	return errors.Join(errs...)
}

// expandTree applies expandVars to every string in a decoded tree.
func expandTree(value any) any {
	switch v := value.(type) {
	case string:
		return expandVars(v)
	case map[string]any:
		for key, element := range v {
			v[key] = expandTree(element)
		}
		return v
	case []any:
		for i, element := range v {
			v[i] = expandTree(element)
		}
		return v
	case []map[string]any:
		// TOML arrays of tables.
		for _, element := range v {
			expandTree(element)
		}
		return v
	default:
		return value
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
