// Package watcher observes file creation in a single directory.
//
// Callbacks run on the watcher's own goroutine, never the caller's. Stop is
// idempotent and may race with an in-flight callback; at most one extra delivery
// can happen after Stop is requested.
package watcher
