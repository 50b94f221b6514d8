package config

import _ "embed"

//go:embed defaults.toml
var defaultsTOML []byte

// DefaultsPayload returns the embedded default configuration.
func DefaultsPayload() []byte {
	out := make([]byte, len(defaultsTOML))
	copy(out, defaultsTOML)
	return out
}
