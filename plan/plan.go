// Package plan ingests execution plans proposed by a squad lead: a roster
// of agents to provision and a batch of tasks wired together with
// plan-local references. Ingestion is best effort; entries that fail
// validation are logged and skipped rather than aborting the whole plan.
package plan

import (
	"fmt"

	"taskforce/model"
)

// ProposedAgent is one agent in a plan, identified within the plan by Ref.
type ProposedAgent struct {
	Ref          string   `json:"ref"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities,omitempty"`
	IsReusable   *bool    `json:"isReusable,omitempty"`
}

// ProposedTask is one task in a plan. AssignedAgent and DependsOn use
// plan-local refs, not store ids. AssignedRole instead names a role and
// lets ingestion pick any mission agent carrying it; an explicit
// AssignedAgent ref wins when both are set.
type ProposedTask struct {
	Ref           string         `json:"ref"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Type          model.TaskType `json:"type"`
	Priority      model.Priority `json:"priority,omitempty"`
	AssignedAgent string         `json:"assignedAgent,omitempty"`
	AssignedRole  string         `json:"assignedAgentRole,omitempty"`
	DependsOn     []string       `json:"dependsOn,omitempty"`
	MaxRetries    int            `json:"maxRetries,omitempty"`
	Input         map[string]any `json:"input,omitempty"`
}

// DependencyEdge adds a dependency between two plan tasks by ref, on top of
// any per-task DependsOn lists.
type DependencyEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Plan is a full proposed execution plan for one mission.
type Plan struct {
	Agents []ProposedAgent  `json:"agents"`
	Tasks  []ProposedTask   `json:"tasks"`
	Edges  []DependencyEdge `json:"edges,omitempty"`
}

// Validate rejects plans that could not produce any work.
func (p *Plan) Validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("%w: plan has no tasks", model.ErrValidation)
	}
	if len(p.Agents) == 0 {
		return fmt.Errorf("%w: plan has no agents", model.ErrValidation)
	}
	seen := make(map[string]bool)
	for i, a := range p.Agents {
		if a.Ref == "" {
			return fmt.Errorf("%w: agent %d has no ref", model.ErrValidation, i)
		}
		if seen[a.Ref] {
			return fmt.Errorf("%w: duplicate agent ref %q", model.ErrValidation, a.Ref)
		}
		seen[a.Ref] = true
	}
	seen = make(map[string]bool)
	for i, t := range p.Tasks {
		if t.Ref == "" {
			return fmt.Errorf("%w: task %d has no ref", model.ErrValidation, i)
		}
		if seen[t.Ref] {
			return fmt.Errorf("%w: duplicate task ref %q", model.ErrValidation, t.Ref)
		}
		seen[t.Ref] = true
	}
	return nil
}

// Result summarizes what an ingestion actually created.
type Result struct {
	AgentsCreated int
	TasksCreated  int
	EdgesApplied  int

	// Skipped lists human-readable notes for entries that were dropped.
	Skipped []string
}
