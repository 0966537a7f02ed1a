// Package graph performs pure dependency analysis over the task set of one
// mission: depth levels, executability, edge states, cycle detection, and
// the critical path. It never touches the store; callers pass the full task
// slice and read the resulting Analysis.
package graph

import (
	"fmt"
	"strings"

	"taskforce/model"
)

// EdgeStatus describes the state of one (dependency → dependent) pair.
type EdgeStatus string

const (
	// EdgeCompleted: the dependency task is completed.
	EdgeCompleted EdgeStatus = "completed"
	// EdgeBlocked: the dependent is pending and the dependency is not
	// completed.
	EdgeBlocked EdgeStatus = "blocked"
	// EdgeValid: any other combination.
	EdgeValid EdgeStatus = "valid"
)

// Edge is one dependency relation. From is the dependency, To the dependent.
type Edge struct {
	From   string
	To     string
	Status EdgeStatus
}

// Node is the per-task analysis result.
type Node struct {
	Task *model.Task

	// Level is 0 for tasks with no dependencies, else 1 + the maximum
	// level among its dependencies.
	Level int

	// CanExecute is true iff the task is pending and every dependency
	// is completed.
	CanExecute bool

	// BlockingReason names the unmet dependencies; empty when CanExecute.
	BlockingReason string
}

// Analysis holds the graph analysis for one mission's task set.
type Analysis struct {
	tasks  map[string]*model.Task
	order  []string // input order
	nodes  map[string]*Node
	levels map[string]int
}

// Analyze builds the analysis for the given task set. Dependencies pointing
// outside the set are treated as unmet.
func Analyze(tasks []*model.Task) *Analysis {
	a := &Analysis{
		tasks:  make(map[string]*model.Task, len(tasks)),
		nodes:  make(map[string]*Node, len(tasks)),
		levels: make(map[string]int, len(tasks)),
	}
	for _, t := range tasks {
		a.tasks[t.ID] = t
		a.order = append(a.order, t.ID)
	}

	for _, id := range a.order {
		t := a.tasks[id]
		node := &Node{
			Task:  t,
			Level: a.level(id, make(map[string]bool)),
		}
		node.CanExecute, node.BlockingReason = a.executability(t)
		a.nodes[id] = node
	}
	return a
}

// level computes the dependency depth recursively. The visited set bounds
// the walk so a cyclic graph still terminates; a dependency already on the
// current walk contributes nothing.
func (a *Analysis) level(id string, visiting map[string]bool) int {
	if lvl, ok := a.levels[id]; ok {
		return lvl
	}
	t, ok := a.tasks[id]
	if !ok || len(t.Dependencies) == 0 {
		a.levels[id] = 0
		return 0
	}

	visiting[id] = true
	max := -1
	for _, dep := range t.Dependencies {
		if visiting[dep] {
			continue
		}
		if lvl := a.level(dep, visiting); lvl > max {
			max = lvl
		}
	}
	delete(visiting, id)

	lvl := max + 1
	a.levels[id] = lvl
	return lvl
}

func (a *Analysis) executability(t *model.Task) (bool, string) {
	if t.Status != model.TaskPending {
		return false, fmt.Sprintf("task is %s, not pending", t.Status)
	}

	var unmet []string
	for _, dep := range t.Dependencies {
		depTask, ok := a.tasks[dep]
		if !ok {
			unmet = append(unmet, fmt.Sprintf("%s (missing)", dep))
			continue
		}
		if depTask.Status != model.TaskCompleted {
			unmet = append(unmet, fmt.Sprintf("%s (%s)", depTask.Title, depTask.Status))
		}
	}
	if len(unmet) > 0 {
		return false, fmt.Sprintf("waiting on %d dependencies: %s", len(unmet), strings.Join(unmet, ", "))
	}
	return true, ""
}

// Node returns the analysis for one task, or nil if unknown.
func (a *Analysis) Node(id string) *Node {
	return a.nodes[id]
}

// Nodes returns all nodes in the task set's input order.
func (a *Analysis) Nodes() []*Node {
	out := make([]*Node, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.nodes[id])
	}
	return out
}

// Edges returns every dependency relation with its status, in input order.
func (a *Analysis) Edges() []Edge {
	var edges []Edge
	for _, id := range a.order {
		t := a.tasks[id]
		for _, dep := range t.Dependencies {
			edges = append(edges, Edge{
				From:   dep,
				To:     id,
				Status: a.edgeStatus(dep, t),
			})
		}
	}
	return edges
}

func (a *Analysis) edgeStatus(depID string, dependent *model.Task) EdgeStatus {
	dep, ok := a.tasks[depID]
	depCompleted := ok && dep.Status == model.TaskCompleted
	switch {
	case depCompleted:
		return EdgeCompleted
	case dependent.Status == model.TaskPending:
		return EdgeBlocked
	default:
		return EdgeValid
	}
}

// ExecutableTasks returns all pending tasks whose dependencies are met,
// in input order.
func (a *Analysis) ExecutableTasks() []*model.Task {
	var out []*model.Task
	for _, id := range a.order {
		if n := a.nodes[id]; n.CanExecute {
			out = append(out, n.Task)
		}
	}
	return out
}

// BlockedTasks returns all pending tasks with at least one unmet
// dependency, in input order.
func (a *Analysis) BlockedTasks() []*model.Task {
	var out []*model.Task
	for _, id := range a.order {
		n := a.nodes[id]
		if n.Task.Status == model.TaskPending && !n.CanExecute {
			out = append(out, n.Task)
		}
	}
	return out
}
