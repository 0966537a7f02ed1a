package store

import (
	"taskforce/model"
)

// Bundle holds all record stores for the orchestration engine. The engine
// does not persist its own state; everything lives behind these interfaces.
type Bundle struct {
	Missions MissionStore
	Tasks    TaskStore
	Agents   AgentStore
	closer   func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// MissionStore tracks mission records. Save is an upsert: a record with an
// empty id is assigned one and created, otherwise replaced.
type MissionStore interface {
	Get(id string) (*model.Mission, error)
	Save(m *model.Mission) error
	Delete(id string) error
	// List returns missions ordered by creation time descending, with
	// the total count before paging.
	List(limit, offset int) ([]*model.Mission, int, error)
}

// TaskStore tracks task records.
type TaskStore interface {
	Get(id string) (*model.Task, error)
	Save(t *model.Task) error
	Delete(id string) error
	// ListByMission returns a mission's tasks in creation order.
	ListByMission(missionID string) ([]*model.Task, error)
	// ListByAgent returns the agent's tasks, optionally filtered to the
	// given statuses.
	ListByAgent(agentID string, statuses ...model.TaskStatus) ([]*model.Task, error)
	// ListPendingByPriority returns a mission's pending tasks ordered by
	// priority descending, then creation time ascending. This is the
	// ordering key for "next executable task" queries.
	ListPendingByPriority(missionID string) ([]*model.Task, error)
}

// AgentStore tracks agent records.
type AgentStore interface {
	Get(id string) (*model.Agent, error)
	Save(a *model.Agent) error
	Delete(id string) error
	// List returns all agents ordered by creation time ascending.
	List() ([]*model.Agent, error)
	// ListByStatus returns agents in any of the given statuses, ordered
	// by creation time ascending.
	ListByStatus(statuses ...model.AgentStatus) ([]*model.Agent, error)
}
