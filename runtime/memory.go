package runtime

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryRuntime tracks workers as in-process records. It backs local
// development and tests, where no real subprocess is wanted.
type MemoryRuntime struct {
	mu      sync.Mutex
	workers map[string]*memoryWorker

	// FailProvision, when set, makes the next Provision calls fail with
	// the given error until cleared.
	FailProvision error
}

type memoryWorker struct {
	agentID string
	role    string
	state   State
}

func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{workers: make(map[string]*memoryWorker)}
}

func (r *MemoryRuntime) Provision(agentID, role string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailProvision != nil {
		return "", r.FailProvision
	}

	id := uuid.NewString()
	r.workers[id] = &memoryWorker{agentID: agentID, role: role, state: StateRunning}
	return id, nil
}

func (r *MemoryRuntime) Status(runtimeID string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[runtimeID]
	if !ok {
		return StateAbsent, nil
	}
	return w.state, nil
}

func (r *MemoryRuntime) Pause(runtimeID string) error {
	return r.setState(runtimeID, StateRunning, StatePaused)
}

func (r *MemoryRuntime) Resume(runtimeID string) error {
	return r.setState(runtimeID, StatePaused, StateRunning)
}

// Stop is idempotent: a missing worker counts as already stopped.
func (r *MemoryRuntime) Stop(runtimeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[runtimeID]; ok {
		w.state = StateExited
	}
	return nil
}

func (r *MemoryRuntime) Remove(runtimeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.workers, runtimeID)
	return nil
}

func (r *MemoryRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workers = make(map[string]*memoryWorker)
	return nil
}

// setState transitions a worker from one state to another; a worker already
// in the target state is left alone.
func (r *MemoryRuntime) setState(runtimeID string, from, to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[runtimeID]
	if !ok {
		return fmt.Errorf("unknown worker %s", runtimeID)
	}
	if w.state == to {
		return nil
	}
	if w.state != from {
		return fmt.Errorf("worker %s is %s, cannot move to %s", runtimeID, w.state, to)
	}
	w.state = to
	return nil
}
