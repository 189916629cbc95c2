package session

import (
	"errors"
	"sync"
	"testing"
)

type captureListener struct {
	mu     sync.Mutex
	events []StateChange
}

func (c *captureListener) OnStateChange(event StateChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureListener) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestStateMachineHappyPath(t *testing.T) {
	sm := newStateMachine()
	if sm.Current() != StatusInactive {
		t.Fatalf("expected initial INACTIVE, got %s", sm.Current())
	}
	for _, step := range []Status{StatusConnecting, StatusActive, StatusInactive} {
		if err := sm.Transition(step, "test"); err != nil {
			t.Fatalf("transition to %s: %v", step, err)
		}
	}
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	sm := newStateMachine()
	err := sm.Transition(StatusActive, "skip connecting")
	if err == nil {
		t.Fatalf("expected invalid transition error")
	}
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %T", err)
	}
	if invalid.From != StatusInactive || invalid.To != StatusActive {
		t.Fatalf("unexpected transition detail: %v", invalid)
	}
	if sm.Current() != StatusInactive {
		t.Fatalf("state must not change on rejected transition")
	}
}

func TestStateMachineErrorPathEndsInactive(t *testing.T) {
	sm := newStateMachine()
	_ = sm.Transition(StatusConnecting, "connect")
	if err := sm.Transition(StatusError, "vendor connect failure"); err != nil {
		t.Fatalf("connecting to error: %v", err)
	}
	if err := sm.Transition(StatusActive, "revive"); err == nil {
		t.Fatalf("error state must not return to active")
	}
	if err := sm.Transition(StatusInactive, "cleanup"); err != nil {
		t.Fatalf("error to inactive: %v", err)
	}
}

func TestStateMachineNotifiesListeners(t *testing.T) {
	sm := newStateMachine()
	listener := &captureListener{}
	sm.AddListener(listener)

	_ = sm.Transition(StatusConnecting, "connect")
	_ = sm.Transition(StatusActive, "ready")
	if listener.count() != 2 {
		t.Fatalf("expected 2 notifications, got %d", listener.count())
	}
	listener.mu.Lock()
	defer listener.mu.Unlock()
	first := listener.events[0]
	if first.From != StatusInactive || first.To != StatusConnecting || first.Reason != "connect" {
		t.Fatalf("unexpected first event: %+v", first)
	}
}
