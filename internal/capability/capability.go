// Package capability describes the host environment tier that gates watch paths
// and capture behavior.
package capability

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Tier is a coarse host capability level, expressed as an OS API level.
type Tier int

const (
	// TierModernStorage is the first tier that uses the scoped external storage layout.
	TierModernStorage Tier = 29
	// TierScreenCapture is the first tier that exposes programmatic screen capture.
	TierScreenCapture Tier = 30
	// TierArtifactDecode is the first tier whose capture artifacts can be decoded in-process.
	TierArtifactDecode Tier = 33
)

// Descriptor reports the current tier. Implementations must be safe for concurrent use.
type Descriptor interface {
	Tier() Tier
}

// Static is a fixed tier.
type Static Tier

func (s Static) Tier() Tier {
	return Tier(s)
}

// Level is a Descriptor whose tier can only increase during a process lifetime.
type Level struct {
	tier atomic.Int64
}

func NewLevel(initial Tier) *Level {
	level := &Level{}
	level.tier.Store(int64(initial))
	return level
}

func (l *Level) Tier() Tier {
	if l == nil {
		return 0
	}
	return Tier(l.tier.Load())
}

// Raise moves the level up to tier. Lower values are ignored; it reports whether the level changed.
func (l *Level) Raise(tier Tier) bool {
	if l == nil {
		return false
	}
	for {
		current := l.tier.Load()
		if int64(tier) <= current {
			return false
		}
		if l.tier.CompareAndSwap(current, int64(tier)) {
			return true
		}
	}
}

// AtLeast reports whether d currently meets min. A nil descriptor meets nothing.
func AtLeast(d Descriptor, min Tier) bool {
	if d == nil {
		return false
	}
	return d.Tier() >= min
}

// ParseTier accepts a numeric API level or one of the names "legacy" and "modern".
func ParseTier(raw string) (Tier, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		return 0, false
	case "legacy":
		return TierModernStorage - 1, true
	case "modern":
		return TierModernStorage, true
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, false
	}
	return Tier(parsed), true
}
