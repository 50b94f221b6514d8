// Package buffer holds a bounded, concurrency-safe history of recent values.
package buffer

import "sync"

// Ring keeps the last size values added. The zero value is not usable; use NewRing.
type Ring[T any] struct {
	mu      sync.Mutex
	entries []T
	start   int
	count   int
	total   uint64
}

func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{entries: make([]T, size)}
}

// Add appends entry, evicting the oldest value when full.
func (r *Ring[T]) Add(entry T) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if r.count < len(r.entries) {
		r.entries[(r.start+r.count)%len(r.entries)] = entry
		r.count++
		return
	}
	r.entries[r.start] = entry
	r.start = (r.start + 1) % len(r.entries)
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Total counts every value ever added, including evicted ones.
func (r *Ring[T]) Total() uint64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// List returns a copy, oldest first.
func (r *Ring[T]) List() []T {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(r.start+i)%len(r.entries)]
	}
	return out
}

// Last returns the most recently added value.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return zero, false
	}
	return r.entries[(r.start+r.count-1)%len(r.entries)], true
}
