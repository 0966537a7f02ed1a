// Command worker is a minimal worker binary for the plugin runtime. It
// accepts its identity and suspend/wake signals; actual task execution
// happens over the websocket bridge.
package main

import (
	"log"
	"sync"

	"taskforce/runtime"
)

type worker struct {
	mu        sync.Mutex
	agentID   string
	role      string
	suspended bool
}

func (w *worker) Init(agentID, role string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agentID = agentID
	w.role = role
	log.Printf("worker initialized: agent=%s role=%s", agentID, role)
	return nil
}

func (w *worker) Suspend() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.suspended = true
	return nil
}

func (w *worker) Wake() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.suspended = false
	return nil
}

func main() {
	runtime.ServeWorker(&worker{})
}
