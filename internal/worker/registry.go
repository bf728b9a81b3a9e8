package worker

import (
	"context"
	"sync"
)

type registration struct {
	token  uint64
	cancel context.CancelFunc
}

// Registry tracks the cancel function of every in-flight execution so a
// stop request can interrupt it.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	running map[string]registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{running: make(map[string]registration)}
}

// Register records cancel for jobID. The returned release func removes the
// entry unless a newer execution has replaced it.
func (r *Registry) Register(jobID string, cancel context.CancelFunc) (release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	token := r.next
	r.running[jobID] = registration{token: token, cancel: cancel}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, ok := r.running[jobID]; ok && current.token == token {
			delete(r.running, jobID)
		}
	}
}

// Cancel interrupts the execution of jobID, reporting whether one was running.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	reg, ok := r.running[jobID]
	r.mu.Unlock()
	if ok {
		reg.cancel()
	}
	return ok
}

// Active returns the number of registered executions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}
