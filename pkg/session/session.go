// Package session owns the per-session lifecycle: the status state machine,
// the sequential event loop, and the session registry.
package session

import (
	"sync"
	"time"
)

type Status int

const (
	StatusInactive Status = iota
	StatusConnecting
	StatusActive
	StatusError
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "INACTIVE"
	case StatusConnecting:
		return "CONNECTING"
	case StatusActive:
		return "ACTIVE"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Session is one voice stream session record.
type Session struct {
	ID        string
	TraceID   string
	Principal string
	CreatedAt time.Time

	mu        sync.Mutex
	lastError string
}

func NewSession(id, traceID, principal string) *Session {
	return &Session{
		ID:        id,
		TraceID:   traceID,
		Principal: principal,
		CreatedAt: time.Now(),
	}
}

// SetLastError records the most recent error surfaced for the session.
func (s *Session) SetLastError(message string) {
	s.mu.Lock()
	s.lastError = message
	s.mu.Unlock()
}

// LastError returns the most recent error surfaced for the session.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
