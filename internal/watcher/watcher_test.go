package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"shotwatch/internal/metrics"
	"shotwatch/internal/watchpath"

	"github.com/fsnotify/fsnotify"
)

func newTarget(t *testing.T) watchpath.Target {
	t.Helper()
	return watchpath.Target{Path: t.TempDir(), Mask: fsnotify.Create}
}

func TestWatcherDeliversCreateEvents(t *testing.T) {
	registry := &metrics.Registry{}
	watcher := New(Options{Registry: registry})
	defer watcher.Stop()

	target := newTarget(t)
	names := make(chan string, 4)
	if err := watcher.Start(target, func(name string) { names <- name }); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(target.Path, "Screenshot_1.png"), []byte("png"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	name, ok := waitForName(names)
	if !ok {
		t.Fatal("timed out waiting for create event")
	}
	if name != "Screenshot_1.png" {
		t.Fatalf("expected base name, got %q", name)
	}
	if got := registry.Snapshot().FilesObserved; got != 1 {
		t.Fatalf("expected 1 observed file, got %d", got)
	}
}

func TestWatcherFiltersNonCreateEvents(t *testing.T) {
	target := newTarget(t)
	existing := filepath.Join(target.Path, "existing.png")
	if err := os.WriteFile(existing, []byte("a"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	watcher := New(Options{})
	defer watcher.Stop()
	names := make(chan string, 4)
	if err := watcher.Start(target, func(name string) { names <- name }); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := os.WriteFile(existing, []byte("b"), 0o600); err != nil {
		t.Fatalf("modify file: %v", err)
	}
	if err := os.Remove(existing); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(target.Path, "marker.png"), nil, 0o600); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	name, ok := waitForName(names)
	if !ok {
		t.Fatal("timed out waiting for marker")
	}
	if name != "marker.png" {
		t.Fatalf("expected only the created marker, got %q", name)
	}
	if watcher.Metrics().Filtered == 0 {
		t.Fatal("expected write and remove events to be filtered")
	}
}

func TestWatcherDoesNotFilterByName(t *testing.T) {
	watcher := New(Options{})
	defer watcher.Stop()

	target := newTarget(t)
	var mu sync.Mutex
	var seen []string
	all := make(chan struct{})
	if err := watcher.Start(target, func(name string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, name)
		if len(seen) == 3 {
			close(all)
		}
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, name := range []string{"notes.txt", "a.png", ".pending"} {
		if err := os.WriteFile(filepath.Join(target.Path, name), nil, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	select {
	case <-all:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all files")
	}
	mu.Lock()
	defer mu.Unlock()
	sort.Strings(seen)
	if seen[0] != ".pending" || seen[1] != "a.png" || seen[2] != "notes.txt" {
		t.Fatalf("unexpected names %v", seen)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	watcher := New(Options{})
	if err := watcher.Stop(); err != nil {
		t.Fatalf("stop before start: %v", err)
	}

	target := newTarget(t)
	names := make(chan string, 4)
	if err := watcher.Start(target, func(name string) { names <- name }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if watcher.Running() {
		t.Fatal("expected watcher to be stopped")
	}

	if err := os.WriteFile(filepath.Join(target.Path, "late.png"), nil, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	select {
	case name := <-names:
		t.Fatalf("unexpected delivery after stop: %q", name)
	case <-time.After(200 * time.Millisecond):
	}

	var nilWatcher *Watcher
	if err := nilWatcher.Stop(); err != nil {
		t.Fatalf("nil stop: %v", err)
	}
}

func TestWatcherStopRacesCallback(t *testing.T) {
	watcher := New(Options{})
	target := newTarget(t)
	stopped := make(chan error, 1)
	if err := watcher.Start(target, func(string) {
		stopped <- watcher.Stop()
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(target.Path, "a.png"), nil, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("stop from callback: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("stop after callback stop: %v", err)
	}
}

func TestWatcherRestartAfterStop(t *testing.T) {
	watcher := New(Options{})
	defer watcher.Stop()
	target := newTarget(t)

	if err := watcher.Start(target, func(string) {}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := watcher.Start(target, func(string) {}); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	names := make(chan string, 1)
	if err := watcher.Start(target, func(name string) { names <- name }); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := os.WriteFile(filepath.Join(target.Path, "again.png"), nil, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, ok := waitForName(names); !ok {
		t.Fatal("timed out waiting for event after restart")
	}
}

func TestWatcherStartErrors(t *testing.T) {
	watcher := New(Options{})
	if err := watcher.Start(newTarget(t), nil); err != ErrNoCallback {
		t.Fatalf("expected ErrNoCallback, got %v", err)
	}
	missing := watchpath.Target{Path: filepath.Join(t.TempDir(), "missing")}
	if err := watcher.Start(missing, func(string) {}); err == nil {
		t.Fatal("expected error for missing directory")
	}
	if watcher.Running() {
		t.Fatal("expected failed start to leave watcher idle")
	}
}

func TestWatcherReportsTargetGone(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "Screenshots")
	if err := os.Mkdir(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	gone := make(chan struct{}, 1)
	watcher := New(Options{OnTargetGone: func() {
		select {
		case gone <- struct{}{}:
		default:
		}
	}})
	defer watcher.Stop()
	if err := watcher.Start(watchpath.Target{Path: dir}, func(string) {}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := os.Remove(dir); err != nil {
		t.Fatalf("remove dir: %v", err)
	}
	select {
	case <-gone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for target gone")
	}
}

func waitForName(names <-chan string) (string, bool) {
	select {
	case name := <-names:
		return name, true
	case <-time.After(2 * time.Second):
		return "", false
	}
}
