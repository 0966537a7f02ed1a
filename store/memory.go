package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskforce/model"
)

// NewMemoryBundle creates a Bundle backed entirely by in-memory stores
func NewMemoryBundle() *Bundle {
	return &Bundle{
		Missions: &MemoryMissionStore{missions: make(map[string]*model.Mission)},
		Tasks:    &MemoryTaskStore{tasks: make(map[string]*model.Task)},
		Agents:   &MemoryAgentStore{agents: make(map[string]*model.Agent)},
	}
}

// =============================================================================
// MemoryMissionStore
// =============================================================================

type MemoryMissionStore struct {
	mu       sync.Mutex
	missions map[string]*model.Mission
}

func (s *MemoryMissionStore) Get(id string) (*model.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[id]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", id, model.ErrNotFound)
	}
	return cloneMission(m), nil
}

func (s *MemoryMissionStore) Save(m *model.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareMission(m)
	s.missions[m.ID] = cloneMission(m)
	return nil
}

func (s *MemoryMissionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.missions, id)
	return nil
}

func (s *MemoryMissionStore) List(limit, offset int) ([]*model.Mission, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*model.Mission, 0, len(s.missions))
	for _, m := range s.missions {
		all = append(all, cloneMission(m))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	return page(all, limit, offset), total, nil
}

// =============================================================================
// MemoryTaskStore
// =============================================================================

type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func (s *MemoryTaskStore) Get(id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	return cloneTask(t), nil
}

func (s *MemoryTaskStore) Save(t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareTask(t)
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (s *MemoryTaskStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, id)
	return nil
}

func (s *MemoryTaskStore) ListByMission(missionID string) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*model.Task
	for _, t := range s.tasks {
		if t.MissionID == missionID {
			tasks = append(tasks, cloneTask(t))
		}
	}
	sortByCreation(tasks)
	return tasks, nil
}

func (s *MemoryTaskStore) ListByAgent(agentID string, statuses ...model.TaskStatus) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*model.Task
	for _, t := range s.tasks {
		if t.AssignedTo != agentID {
			continue
		}
		if len(statuses) > 0 && !statusIn(t.Status, statuses) {
			continue
		}
		tasks = append(tasks, cloneTask(t))
	}
	sortByCreation(tasks)
	return tasks, nil
}

func (s *MemoryTaskStore) ListPendingByPriority(missionID string) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*model.Task
	for _, t := range s.tasks {
		if t.MissionID == missionID && t.Status == model.TaskPending {
			tasks = append(tasks, cloneTask(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority.Rank() != tasks[j].Priority.Rank() {
			return tasks[i].Priority.Rank() > tasks[j].Priority.Rank()
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// =============================================================================
// MemoryAgentStore
// =============================================================================

type MemoryAgentStore struct {
	mu     sync.Mutex
	agents map[string]*model.Agent
}

func (s *MemoryAgentStore) Get(id string) (*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, model.ErrNotFound)
	}
	return cloneAgent(a), nil
}

func (s *MemoryAgentStore) Save(a *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareAgent(a)
	s.agents[a.ID] = cloneAgent(a)
	return nil
}

func (s *MemoryAgentStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.agents, id)
	return nil
}

func (s *MemoryAgentStore) List() ([]*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := make([]*model.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, cloneAgent(a))
	}
	sortAgentsByCreation(agents)
	return agents, nil
}

func (s *MemoryAgentStore) ListByStatus(statuses ...model.AgentStatus) ([]*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var agents []*model.Agent
	for _, a := range s.agents {
		for _, st := range statuses {
			if a.Status == st {
				agents = append(agents, cloneAgent(a))
				break
			}
		}
	}
	sortAgentsByCreation(agents)
	return agents, nil
}

// =============================================================================
// Helpers
// =============================================================================

func generateID() string {
	return uuid.NewString()
}

func prepareMission(m *model.Mission) {
	if m.ID == "" {
		m.ID = generateID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
}

func prepareTask(t *model.Task) {
	if t.ID == "" {
		t.ID = generateID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
}

func prepareAgent(a *model.Agent) {
	if a.ID == "" {
		a.ID = generateID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
}

func statusIn(st model.TaskStatus, statuses []model.TaskStatus) bool {
	for _, s := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func sortByCreation(tasks []*model.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func sortAgentsByCreation(agents []*model.Agent) {
	sort.Slice(agents, func(i, j int) bool {
		if !agents[i].CreatedAt.Equal(agents[j].CreatedAt) {
			return agents[i].CreatedAt.Before(agents[j].CreatedAt)
		}
		return agents[i].ID < agents[j].ID
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneMission(m *model.Mission) *model.Mission {
	out := *m
	out.TaskIDs = append([]string(nil), m.TaskIDs...)
	out.OrchestrationLog = append([]model.LogEntry(nil), m.OrchestrationLog...)
	if m.Stats != nil {
		stats := *m.Stats
		out.Stats = &stats
	}
	out.StartedAt = cloneTime(m.StartedAt)
	out.CompletedAt = cloneTime(m.CompletedAt)
	return &out
}

func cloneTask(t *model.Task) *model.Task {
	out := *t
	out.Dependencies = append([]string(nil), t.Dependencies...)
	out.RetryHistory = append([]model.RetryAttempt(nil), t.RetryHistory...)
	out.Input = cloneMap(t.Input)
	out.Output = cloneMap(t.Output)
	out.StartedAt = cloneTime(t.StartedAt)
	out.CompletedAt = cloneTime(t.CompletedAt)
	return &out
}

func cloneAgent(a *model.Agent) *model.Agent {
	out := *a
	out.Capabilities = append([]string(nil), a.Capabilities...)
	out.MissionHistory = append([]string(nil), a.MissionHistory...)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
