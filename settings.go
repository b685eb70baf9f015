// settings.go: Flattened module settings and multi-format parsing
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// Settings is a flat key-value view of configuration. Nested maps are
// flattened into dotted keys, so {"index": {"shards": 2}} is stored as
// "index.shards".
type Settings map[string]any

// NewSettings flattens a nested configuration map.
func NewSettings(m map[string]any) Settings {
	s := make(Settings, len(m))
	flattenInto(s, "", m)
	return s
}

func flattenInto(dst Settings, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch nested := v.(type) {
		case map[string]any:
			flattenInto(dst, key, nested)
		case map[any]any:
			conv := make(map[string]any, len(nested))
			for nk, nv := range nested {
				conv[fmt.Sprint(nk)] = nv
			}
			flattenInto(dst, key, conv)
		default:
			dst[key] = v
		}
	}
}

// Get returns the raw value stored under key.
func (s Settings) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// String returns the value under key as a string, or def.
func (s Settings) String(key, def string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Bool returns the value under key as a bool, or def when absent or unparsable.
func (s Settings) Bool(key string, def bool) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// Int returns the value under key as an int, or def when absent or unparsable.
func (s Settings) Int(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

// Strings returns a list value. A plain string is split on commas, matching
// how list settings are written in properties files.
func (s Settings) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}

// Merge returns a new Settings holding s overlaid with overlay. Keys present
// in overlay win.
func (s Settings) Merge(overlay Settings) Settings {
	out := make(Settings, len(s)+len(overlay))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// Keys returns the sorted keys of s.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseConfigBytes decodes data according to the format argus detects from
// path. YAML goes through yaml.v3 for full spec support; JSON, TOML, HCL, INI
// and properties go through argus.
func parseConfigBytes(data []byte, path string) (map[string]any, error) {
	format := argus.DetectFormat(path)
	switch format {
	case argus.FormatYAML:
		out := make(map[string]any)
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		out, err := argus.ParseConfig(data, format)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s config: %w", format, err)
		}
		return out, nil
	}
}

// LoadSettingsFile reads and flattens a configuration file.
func LoadSettingsFile(path string) (Settings, error) {
	// #nosec G304 -- path comes from the scanned bundle or host configuration
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewConfigNotFoundError(path)
		}
		return nil, NewConfigParseError(path, err)
	}
	m, err := parseConfigBytes(data, path)
	if err != nil {
		return nil, NewConfigParseError(path, err)
	}
	return NewSettings(m), nil
}
