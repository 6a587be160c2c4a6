// Package flags holds instance-scoped feature switches.
//
// A Set is constructed in main and handed to the components that need it;
// there is no package-level state, so tests build their own sets.
package flags

import "sync"

// Flag names a feature switch.
type Flag string

const (
	Workflow       Flag = "workflow"
	SharedLinks    Flag = "shared_links"
	AuditLogs      Flag = "audit_logs"
	SemanticSearch Flag = "semantic_search"
	OCRQueue       Flag = "ocr_queue"
)

// All lists every known flag.
var All = []Flag{Workflow, SharedLinks, AuditLogs, SemanticSearch, OCRQueue}

// Listener is notified when a flag changes value.
type Listener func(flag Flag, enabled bool)

// Set is a concurrency-safe collection of feature flags.
type Set struct {
	mu        sync.RWMutex
	values    map[Flag]bool
	listeners map[int]Listener
	nextID    int
}

// NewSet creates a flag set. Every known flag starts enabled; overrides
// flip the listed flags off.
func NewSet(disabled ...Flag) *Set {
	values := make(map[Flag]bool, len(All))
	for _, f := range All {
		values[f] = true
	}
	for _, f := range disabled {
		values[f] = false
	}
	return &Set{
		values:    values,
		listeners: make(map[int]Listener),
	}
}

// Enabled reports whether a flag is on. Unknown flags are off.
func (s *Set) Enabled(flag Flag) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[flag]
}

// SetEnabled changes a flag and notifies listeners if the value changed.
func (s *Set) SetEnabled(flag Flag, enabled bool) {
	s.mu.Lock()
	if s.values[flag] == enabled {
		s.mu.Unlock()
		return
	}
	s.values[flag] = enabled
	notify := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		notify = append(notify, l)
	}
	s.mu.Unlock()

	for _, l := range notify {
		l(flag, enabled)
	}
}

// Subscribe registers a listener for flag changes and returns an
// unsubscribe function.
func (s *Set) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current value of every known flag.
func (s *Set) Snapshot() map[Flag]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Flag]bool, len(s.values))
	for f, v := range s.values {
		out[f] = v
	}
	return out
}
