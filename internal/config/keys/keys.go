// Package keys flattens nested configuration documents into normalized dotted keys,
// so `[watch] tier = 30`, `watch.tier = 30` and a YAML `watch: {tier: 30}` all
// resolve to "watch.tier".
package keys

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Store struct {
	flat map[string]any
}

func DecodeTOML(data []byte) (Store, error) {
	raw := map[string]any{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Store{}, fmt.Errorf("decode toml: %w", err)
	}
	return FromRaw(raw), nil
}

func DecodeYAML(data []byte) (Store, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Store{}, fmt.Errorf("decode yaml: %w", err)
	}
	return FromRaw(raw), nil
}

func FromRaw(raw map[string]any) Store {
	flat := make(map[string]any)
	flattenMap("", raw, flat)

	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	normalized := make(map[string]any, len(flat))
	for _, key := range keys {
		normalizedKey := Normalize(key)
		if _, exists := normalized[normalizedKey]; exists {
			continue
		}
		normalized[normalizedKey] = flat[key]
	}
	return Store{flat: normalized}
}

// Flat returns a copy of the normalized key/value pairs.
func (s Store) Flat() map[string]any {
	flat := make(map[string]any, len(s.flat))
	for key, value := range s.flat {
		flat[key] = value
	}
	return flat
}

func (s Store) Get(key string) (any, bool) {
	value, ok := s.flat[Normalize(key)]
	return value, ok
}

// Normalize lowercases key segments and turns underscores into dashes.
func Normalize(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	parts := strings.Split(key, ".")
	for i, part := range parts {
		parts[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(part)), "_", "-")
	}
	return strings.Join(parts, ".")
}

func flattenMap(prefix string, raw map[string]any, out map[string]any) {
	for key, value := range raw {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flattenMap(full, nested, out)
			continue
		}
		out[full] = value
	}
}
