// Package conversation holds the per-session conversation log and its
// persistence drivers.
package conversation

import (
	"sync"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single conversation turn.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the ordered turn log for one session. The session controller is
// its single writer; other components only ever see snapshots.
type Context struct {
	mu    sync.Mutex
	turns []Turn
}

func NewContext(initial []Turn) *Context {
	c := &Context{}
	c.turns = append(c.turns, initial...)
	return c
}

// Append adds a turn at the end of the log.
func (c *Context) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{Role: role, Content: content, Timestamp: time.Now()})
}

// Snapshot returns a read-only copy of the log.
func (c *Context) Snapshot() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Since returns a copy of the turns appended after index n.
func (c *Context) Since(n int) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(c.turns) {
		return nil
	}
	out := make([]Turn, len(c.turns)-n)
	copy(out, c.turns[n:])
	return out
}
