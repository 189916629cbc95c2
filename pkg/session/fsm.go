package session

import (
	"sync"
	"time"
)

// StateChange represents a status transition event.
type StateChange struct {
	From      Status
	To        Status
	Timestamp time.Time
	Reason    string
}

// StateListener observes session status changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// InvalidTransitionError represents an invalid status transition attempt.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return "invalid session transition from " + e.From.String() + " to " + e.To.String()
}

// stateMachine enforces the session status graph:
// Inactive → Connecting → Active → {Error, Inactive}; Inactive is both
// initial and terminal.
type stateMachine struct {
	mu        sync.RWMutex
	current   Status
	listeners []StateListener
}

var validTransitions = map[Status][]Status{
	StatusInactive:   {StatusConnecting},
	StatusConnecting: {StatusActive, StatusError, StatusInactive},
	StatusActive:     {StatusError, StatusInactive},
	StatusError:      {StatusInactive},
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StatusInactive}
}

// Current returns the current status.
func (sm *stateMachine) Current() Status {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

func transitionValid(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new status with validation and notifies listeners.
func (sm *stateMachine) Transition(to Status, reason string) error {
	sm.mu.Lock()
	if !transitionValid(sm.current, to) {
		from := sm.current
		sm.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	event := StateChange{
		From:      sm.current,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	sm.current = to
	listeners := make([]StateListener, len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	// Notify outside the lock to avoid deadlocks with reentrant listeners.
	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// AddListener registers a listener for status change events.
func (sm *stateMachine) AddListener(listener StateListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, listener)
}
