// Package control implements the cooperative pause/stop cancellation token
// described in spec §5 and §9: consulted at the suspension points (awaiting
// a code block, awaiting a hook, awaiting tree.nextBranch()) rather than
// preempting execution.
package control

import "sync"

// Signal is a shared pause/stop flag for one RunInstance.
type Signal struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
}

// New returns a fresh, unpaused, unstopped signal.
func New() *Signal {
	return &Signal{}
}

// Pause requests a pause. Only meaningful when the owning Tree has exactly
// one branch (spec §4.F / §8 invariant 6) — callers are responsible for that
// check; Signal itself just tracks the flag.
func (s *Signal) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume clears the pause flag.
func (s *Signal) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Stop requests termination. Stop is terminal; it is never cleared.
func (s *Signal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// IsPaused reports the current pause state.
func (s *Signal) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// IsStopped reports whether Stop was ever called.
func (s *Signal) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
