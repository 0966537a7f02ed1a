package runtime

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// PluginRuntime launches one worker subprocess per agent via go-plugin.
type PluginRuntime struct {
	workerPath string
	logger     hclog.Logger

	mu      sync.Mutex
	workers map[string]*pluginWorker
}

type pluginWorker struct {
	client *goplugin.Client
	worker Worker
	paused bool
}

func NewPluginRuntime(workerPath string) *PluginRuntime {
	return &PluginRuntime{
		workerPath: workerPath,
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   "runtime",
			Output: os.Stderr,
			Level:  hclog.Error,
		}),
		workers: make(map[string]*pluginWorker),
	}
}

func (r *PluginRuntime) Provision(agentID, role string) (string, error) {
	if _, err := os.Stat(r.workerPath); err != nil {
		return "", fmt.Errorf("worker binary not found at %s: %w", r.workerPath, err)
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap,
		Cmd:             exec.Command(r.workerPath),
		Logger:          r.logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return "", fmt.Errorf("failed to connect to worker: %w", err)
	}

	raw, err := rpcClient.Dispense("worker")
	if err != nil {
		client.Kill()
		return "", fmt.Errorf("failed to dispense worker: %w", err)
	}

	worker, ok := raw.(Worker)
	if !ok {
		client.Kill()
		return "", fmt.Errorf("plugin does not implement the worker interface")
	}

	if err := worker.Init(agentID, role); err != nil {
		client.Kill()
		return "", fmt.Errorf("worker init failed: %w", err)
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.workers[id] = &pluginWorker{client: client, worker: worker}
	r.mu.Unlock()
	return id, nil
}

func (r *PluginRuntime) Status(runtimeID string) (State, error) {
	r.mu.Lock()
	w, ok := r.workers[runtimeID]
	r.mu.Unlock()
	if !ok {
		return StateAbsent, nil
	}
	if w.client.Exited() {
		return StateExited, nil
	}
	if w.paused {
		return StatePaused, nil
	}
	return StateRunning, nil
}

func (r *PluginRuntime) Pause(runtimeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[runtimeID]
	if !ok {
		return fmt.Errorf("unknown worker %s", runtimeID)
	}
	if w.paused {
		return nil
	}
	if err := w.worker.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend worker: %w", err)
	}
	w.paused = true
	return nil
}

func (r *PluginRuntime) Resume(runtimeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[runtimeID]
	if !ok {
		return fmt.Errorf("unknown worker %s", runtimeID)
	}
	if !w.paused {
		return nil
	}
	if err := w.worker.Wake(); err != nil {
		return fmt.Errorf("failed to wake worker: %w", err)
	}
	w.paused = false
	return nil
}

// Stop is idempotent: a missing worker counts as already stopped.
func (r *PluginRuntime) Stop(runtimeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[runtimeID]; ok {
		w.client.Kill()
	}
	return nil
}

func (r *PluginRuntime) Remove(runtimeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[runtimeID]; ok {
		w.client.Kill()
		delete(r.workers, runtimeID)
	}
	return nil
}

func (r *PluginRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, w := range r.workers {
		w.client.Kill()
		delete(r.workers, id)
	}
	return nil
}
