package trigger

import (
	"math"
	"sync/atomic"
	"time"
)

// DefaultCooldown covers the double-delivery window between the filesystem and
// notification sources for one screenshot.
const DefaultCooldown = 3000 * time.Millisecond

const neverAccepted = math.MinInt64

// Debouncer accepts a signal only if the cooldown has elapsed since the last accepted one.
// It is safe for concurrent use; of two racing signals inside the cooldown exactly one wins.
type Debouncer struct {
	cooldownMillis int64
	lastAccepted   atomic.Int64
}

func NewDebouncer(cooldown time.Duration) *Debouncer {
	if cooldown < 0 {
		cooldown = 0
	}
	debouncer := &Debouncer{cooldownMillis: cooldown.Milliseconds()}
	debouncer.lastAccepted.Store(neverAccepted)
	return debouncer
}

// Accept reports whether signal is accepted at nowMillis. The signal's origin does not
// participate in the decision. On acceptance the last-accepted time becomes nowMillis.
func (d *Debouncer) Accept(_ Signal, nowMillis int64) bool {
	for {
		last := d.lastAccepted.Load()
		if last != neverAccepted && (nowMillis < last || nowMillis-last < d.cooldownMillis) {
			return false
		}
		if d.lastAccepted.CompareAndSwap(last, nowMillis) {
			return true
		}
	}
}

// LastAccepted returns the last accepted time in milliseconds, or false if nothing was accepted yet.
func (d *Debouncer) LastAccepted() (int64, bool) {
	last := d.lastAccepted.Load()
	if last == neverAccepted {
		return 0, false
	}
	return last, true
}

func (d *Debouncer) Cooldown() time.Duration {
	return time.Duration(d.cooldownMillis) * time.Millisecond
}
