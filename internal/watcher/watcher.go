package watcher

import (
	"errors"
	"fmt"
	"path/filepath"

	"shotwatch/internal/watchpath"

	"github.com/fsnotify/fsnotify"
)

var (
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrNoCallback     = errors.New("create callback is required")
)

// New creates an idle Watcher. Nothing is subscribed until Start.
func New(options Options) *Watcher {
	return &Watcher{
		logger:       options.Logger.Component("watcher"),
		registry:     options.Registry,
		errorHandler: options.ErrorHandler,
		onTargetGone: options.OnTargetGone,
	}
}

// Start subscribes to create events in target.Path. onCreate receives the base
// name of each created entry; other event kinds never reach it.
func (w *Watcher) Start(target watchpath.Target, onCreate func(fileName string)) error {
	if onCreate == nil {
		return ErrNoCallback
	}
	if target.Mask == 0 {
		target.Mask = fsnotify.Create
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.running {
		return ErrAlreadyStarted
	}

	source, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := source.Add(target.Path); err != nil {
		_ = source.Close()
		return fmt.Errorf("watch %s: %w", target.Path, err)
	}

	w.watcher = source
	w.target = target
	w.onCreate = onCreate
	w.done = make(chan struct{})
	w.running = true

	go w.run(source, w.done, target, onCreate)

	w.logger.Info("watching for new files", map[string]string{
		"path": target.Path,
	})
	return nil
}

// Stop releases the subscription. Calling it before Start or more than once is a no-op.
func (w *Watcher) Stop() error {
	if w == nil {
		return nil
	}
	w.mutex.Lock()
	if !w.running {
		w.mutex.Unlock()
		return nil
	}
	w.running = false
	source := w.watcher
	w.watcher = nil
	w.onCreate = nil
	close(w.done)
	path := w.target.Path
	w.mutex.Unlock()

	w.logger.Info("stopped watching", map[string]string{
		"path": path,
	})
	if source == nil {
		return nil
	}
	return source.Close()
}

func (w *Watcher) Running() bool {
	if w == nil {
		return false
	}
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.running
}

func (w *Watcher) run(source *fsnotify.Watcher, done <-chan struct{}, target watchpath.Target, onCreate func(string)) {
	for {
		select {
		case event, ok := <-source.Events:
			if !ok {
				return
			}
			w.handleEvent(event, done, target, onCreate)
		case err, ok := <-source.Errors:
			if !ok {
				return
			}
			w.handleError(err)
		case <-done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, done <-chan struct{}, target watchpath.Target, onCreate func(string)) {
	if filepath.Clean(event.Name) == filepath.Clean(target.Path) {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.logger.Warn("watched directory disappeared", map[string]string{
				"path": target.Path,
				"op":   event.Op.String(),
			})
			if w.onTargetGone != nil {
				go w.onTargetGone()
			}
		}
		return
	}
	if event.Op&target.Mask == 0 {
		w.filtered.Add(1)
		return
	}
	select {
	case <-done:
		return
	default:
	}

	name := filepath.Base(event.Name)
	w.observed.Add(1)
	w.registry.IncFileObserved()
	w.logger.Debug("file created", map[string]string{
		"file": name,
	})
	onCreate(name)
}

func (w *Watcher) handleError(err error) {
	if err == nil {
		return
	}
	w.errors.Add(1)
	w.registry.IncWatchError()
	w.logger.Warn("watcher error", map[string]string{
		"error": err.Error(),
	})
	if w.errorHandler != nil {
		w.errorHandler(err)
	}
}

// Metrics reports current watcher stats.
func (w *Watcher) Metrics() Metrics {
	if w == nil {
		return Metrics{}
	}
	w.mutex.Lock()
	running := w.running
	path := w.target.Path
	w.mutex.Unlock()
	return Metrics{
		Running:  running,
		Path:     path,
		Observed: w.observed.Load(),
		Filtered: w.filtered.Load(),
		Errors:   w.errors.Load(),
	}
}
