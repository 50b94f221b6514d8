// Package watchpath picks the screenshot directory to watch for a capability tier.
package watchpath

import (
	"strings"

	"shotwatch/internal/capability"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultModernPath = "/storage/emulated/0/Pictures/Screenshot"
	DefaultLegacyPath = "/sdcard/Pictures/Screenshots"
)

// Target is the resolved watch location. It is computed once at start and never mutated.
type Target struct {
	Path string
	Mask fsnotify.Op
}

// Layout names the directory used by each storage layout.
type Layout struct {
	ModernPath string
	LegacyPath string
}

// DefaultLayout returns the stock device paths.
func DefaultLayout() Layout {
	return Layout{
		ModernPath: DefaultModernPath,
		LegacyPath: DefaultLegacyPath,
	}
}

// Resolve maps a tier to its watch target. Tiers below TierModernStorage use the legacy
// layout; everything else, including tiers this build does not know about, uses the modern one.
func (l Layout) Resolve(tier capability.Tier) Target {
	path := l.modernPath()
	if tier < capability.TierModernStorage {
		path = l.legacyPath()
	}
	return Target{
		Path: path,
		Mask: fsnotify.Create,
	}
}

// Resolve uses the default layout.
func Resolve(tier capability.Tier) Target {
	return DefaultLayout().Resolve(tier)
}

func (l Layout) modernPath() string {
	if path := strings.TrimSpace(l.ModernPath); path != "" {
		return path
	}
	return DefaultModernPath
}

func (l Layout) legacyPath() string {
	if path := strings.TrimSpace(l.LegacyPath); path != "" {
		return path
	}
	return DefaultLegacyPath
}
