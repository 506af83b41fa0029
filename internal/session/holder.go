// Package session keeps per-browser-session state: the current case note and
// whether a consultation submission is in flight.
package session

import (
	"sync"
	"sync/atomic"
)

// Holder keeps the most recent case note for one session. Set and Reset
// replace the whole value, so a reader never observes a partial note.
type Holder struct {
	mu   sync.RWMutex
	note string

	inflight atomic.Bool
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Get returns the current case note, or "" if none has been generated or
// the holder was reset.
func (h *Holder) Get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.note
}

// Set replaces the held note.
func (h *Holder) Set(note string) {
	h.mu.Lock()
	h.note = note
	h.mu.Unlock()
}

// Reset clears the held note.
func (h *Holder) Reset() {
	h.Set("")
}

// TryBegin marks a submission as in flight. It returns false if one already is.
func (h *Holder) TryBegin() bool {
	return h.inflight.CompareAndSwap(false, true)
}

// End clears the in-flight mark set by TryBegin.
func (h *Holder) End() {
	h.inflight.Store(false)
}

// InFlight reports whether a submission is currently running.
func (h *Holder) InFlight() bool {
	return h.inflight.Load()
}
