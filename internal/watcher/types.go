package watcher

import (
	"sync"
	"sync/atomic"

	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"
	"shotwatch/internal/watchpath"

	"github.com/fsnotify/fsnotify"
)

// Options controls watcher behavior.
type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
	// ErrorHandler receives errors reported by the notification subsystem.
	ErrorHandler func(error)
	// OnTargetGone runs when the watched directory itself is removed or renamed.
	// The subscription is already dead at that point; callers usually Stop and Start again.
	OnTargetGone func()
}

// Metrics reports current watcher stats.
type Metrics struct {
	Running  bool   `json:"running"`
	Path     string `json:"path,omitempty"`
	Observed uint64 `json:"observed"`
	Filtered uint64 `json:"filtered"`
	Errors   uint64 `json:"errors"`
}

// Watcher is the fsnotify-backed directory watcher.
type Watcher struct {
	mutex    sync.Mutex
	watcher  *fsnotify.Watcher
	target   watchpath.Target
	onCreate func(string)
	done     chan struct{}
	running  bool

	logger       *logging.Logger
	registry     *metrics.Registry
	errorHandler func(error)
	onTargetGone func()

	observed atomic.Uint64
	filtered atomic.Uint64
	errors   atomic.Uint64
}
