// Package connection holds the resolved backend endpoint and its live status.
package connection

import (
	"errors"
	"sync"
	"time"
)

// ErrEmptyBaseURL is returned when a resolution tries to clear the endpoint
var ErrEmptyBaseURL = errors.New("connection: base URL must not be empty")

// Source records how the current endpoint was found
type Source string

const (
	SourceNone    Source = ""        // Not resolved yet
	SourceHint    Source = "hint"    // Hinted port answered healthy
	SourceScan    Source = "scan"    // Found by scanning the port band
	SourceDefault Source = "default" // Nothing answered, using the default candidate
)

// Snapshot is an immutable copy of the handle state
type Snapshot struct {
	BaseURL       string    `json:"base_url"`
	Connected     bool      `json:"connected"`
	ModelLoaded   bool      `json:"model_loaded"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	Source        Source    `json:"source,omitempty"`
	Generation    uint64    `json:"generation"` // Incremented by every resolution cycle
}

// Resolved reports whether at least one resolution cycle has completed
func (s Snapshot) Resolved() bool {
	return s.Generation > 0
}

// StatusChanged reports whether anything a UI would display differs
func StatusChanged(prev, next Snapshot) bool {
	return prev.BaseURL != next.BaseURL ||
		prev.Connected != next.Connected ||
		prev.ModelLoaded != next.ModelLoaded
}

// Observer is called after every write with the state before and after it
type Observer func(prev, next Snapshot)

// Handle is the shared connection record. Safe for concurrent use.
type Handle struct {
	mu    sync.RWMutex
	state Snapshot

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int
}

// New creates a handle pointing at defaultBaseURL, not yet connected
func New(defaultBaseURL string) *Handle {
	return &Handle{
		state:     Snapshot{BaseURL: defaultBaseURL},
		observers: make(map[int]Observer),
	}
}

// Snapshot returns a consistent copy of the current state
func (h *Handle) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// BaseURL returns the current endpoint
func (h *Handle) BaseURL() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.BaseURL
}

// Connected reports the last known reachability
func (h *Handle) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Connected
}

// ModelLoaded reports the last known capability state
func (h *Handle) ModelLoaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.ModelLoaded
}

// SetResolution starts a new resolution cycle with a freshly chosen endpoint.
// ModelLoaded is carried over; the health monitor refreshes it.
func (h *Handle) SetResolution(baseURL string, connected bool, source Source, at time.Time) error {
	if baseURL == "" {
		return ErrEmptyBaseURL
	}

	h.mu.Lock()
	prev := h.state
	h.state.BaseURL = baseURL
	h.state.Connected = connected
	h.state.Source = source
	h.state.LastCheckedAt = at
	h.state.Generation++
	next := h.state
	h.mu.Unlock()

	h.notify(prev, next)
	return nil
}

// UpdateHealth records a health check result. It never touches BaseURL.
// A nil modelLoaded keeps the last known value.
func (h *Handle) UpdateHealth(connected bool, modelLoaded *bool, at time.Time) Snapshot {
	h.mu.Lock()
	prev := h.state
	h.state.Connected = connected
	if modelLoaded != nil {
		h.state.ModelLoaded = *modelLoaded
	}
	h.state.LastCheckedAt = at
	next := h.state
	h.mu.Unlock()

	h.notify(prev, next)
	return next
}

// UpdateHealthFor is UpdateHealth guarded by a resolution generation. The
// write is dropped, and ok is false, when a newer resolution cycle started
// after the check began.
func (h *Handle) UpdateHealthFor(generation uint64, connected bool, modelLoaded *bool, at time.Time) (snap Snapshot, ok bool) {
	h.mu.Lock()
	if h.state.Generation != generation {
		snap = h.state
		h.mu.Unlock()
		return snap, false
	}
	prev := h.state
	h.state.Connected = connected
	if modelLoaded != nil {
		h.state.ModelLoaded = *modelLoaded
	}
	h.state.LastCheckedAt = at
	next := h.state
	h.mu.Unlock()

	h.notify(prev, next)
	return next, true
}

// OnChange registers an observer and returns a function that removes it.
// Observers run on the writer's goroutine, after the write is visible.
func (h *Handle) OnChange(fn Observer) (unsubscribe func()) {
	h.obsMu.Lock()
	id := h.nextObsID
	h.nextObsID++
	h.observers[id] = fn
	h.obsMu.Unlock()

	return func() {
		h.obsMu.Lock()
		delete(h.observers, id)
		h.obsMu.Unlock()
	}
}

func (h *Handle) notify(prev, next Snapshot) {
	h.obsMu.Lock()
	observers := make([]Observer, 0, len(h.observers))
	for _, fn := range h.observers {
		observers = append(observers, fn)
	}
	h.obsMu.Unlock()

	for _, fn := range observers {
		callObserver(fn, prev, next)
	}
}

func callObserver(fn Observer, prev, next Snapshot) {
	defer func() {
		// A broken observer must not take down the writer
		_ = recover()
	}()
	fn(prev, next)
}
