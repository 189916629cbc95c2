package session

import (
	"errors"
	"sync"
)

// ErrDuplicateSession is returned when a session id is already registered.
var ErrDuplicateSession = errors.New("session already registered")

// Registry tracks live session controllers. It is the only cross-session
// structure; sessions themselves share no state.
type Registry struct {
	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]*Controller)}
}

func (r *Registry) Add(c *Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.controllers[c.Session().ID]; exists {
		return ErrDuplicateSession
	}
	r.controllers[c.Session().ID] = c
	return nil
}

func (r *Registry) Get(sessionID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[sessionID]
	return c, ok
}

// Remove unregisters a session and returns its controller, if any.
func (r *Registry) Remove(sessionID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[sessionID]
	if ok {
		delete(r.controllers, sessionID)
	}
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// Drain closes every live session concurrently and waits for all of them.
// Each controller enforces its own grace period.
func (r *Registry) Drain() error {
	r.mu.Lock()
	live := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		live = append(live, c)
	}
	r.controllers = make(map[string]*Controller)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range live {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			c.Close()
		}(c)
	}
	wg.Wait()
	return nil
}
