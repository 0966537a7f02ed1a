// Package lifecycle drives the task state machine: starting, completing,
// failing, retrying, and the audit and human-escalation workflows that take
// over when the retry budget runs out.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"taskforce/model"
	"taskforce/store"
	"taskforce/streamers"
)

// CompletionNotifier is told whenever a task reaches a settled outcome, so
// mission-level completion can be re-evaluated. A nil notifier disables the
// callbacks.
type CompletionNotifier interface {
	TaskSettled(missionID string) error
}

// Machine executes task lifecycle transitions against the stores.
type Machine struct {
	stores   *store.Bundle
	notifier CompletionNotifier
	events   streamers.OrchestrationHandler
	logger   hclog.Logger
	now      func() time.Time
}

// NewMachine creates a Machine. notifier may be nil.
func NewMachine(stores *store.Bundle, notifier CompletionNotifier, logger hclog.Logger) *Machine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Machine{
		stores:   stores,
		notifier: notifier,
		events:   streamers.NullHandler{},
		logger:   logger,
		now:      time.Now,
	}
}

// SetEventHandler attaches an orchestration event sink.
func (m *Machine) SetEventHandler(h streamers.OrchestrationHandler) {
	if h == nil {
		h = streamers.NullHandler{}
	}
	m.events = h
}

// SetNotifier wires the completion notifier after construction. The mission
// controller and the machine reference each other, so one side is attached
// late.
func (m *Machine) SetNotifier(n CompletionNotifier) {
	m.notifier = n
}

// SetClock overrides the time source, for tests.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Start moves a pending task to in progress and marks its agent active.
func (m *Machine) Start(taskID string) (*model.Task, error) {
	task, err := m.stores.Tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskPending {
		return nil, fmt.Errorf("%w: cannot start task in status %s", model.ErrStateConflict, task.Status)
	}

	now := m.now()
	task.Status = model.TaskInProgress
	task.StartedAt = &now
	if err := m.stores.Tasks.Save(task); err != nil {
		return nil, err
	}

	if task.AssignedTo != "" {
		if err := m.markAgentActive(task.AssignedTo, task.MissionID); err != nil {
			m.logger.Warn("failed to mark agent active", "agent", task.AssignedTo, "error", err)
		}
	}

	m.logger.Debug("task started", "task", task.ID, "agent", task.AssignedTo)
	m.events.TaskStarted(task, m.agentName(task.AssignedTo))
	return task, nil
}

// Complete moves an in-progress task to completed, records the outcome on
// the assigned agent, and notifies the mission of the settled task.
func (m *Machine) Complete(taskID string, output map[string]any) (*model.Task, error) {
	task, err := m.stores.Tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskInProgress {
		return nil, fmt.Errorf("%w: cannot complete task in status %s", model.ErrStateConflict, task.Status)
	}

	now := m.now()
	task.Status = model.TaskCompleted
	task.Output = output
	task.Error = ""
	task.CompletedAt = &now
	if err := m.stores.Tasks.Save(task); err != nil {
		return nil, err
	}

	if task.AssignedTo != "" {
		m.recordOutcome(task, true)
	}

	m.logger.Info("task completed", "task", task.ID, "mission", task.MissionID)
	m.events.TaskCompleted(task)
	m.notifySettled(task.MissionID)
	return task, nil
}

// Fail moves an in-progress task to failed and appends a retry-history
// record. The task stays recoverable: Retry or the audit workflow decides
// what happens next.
func (m *Machine) Fail(taskID, agentID, reason string) (*model.Task, error) {
	task, err := m.stores.Tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskInProgress {
		return nil, fmt.Errorf("%w: cannot fail task in status %s", model.ErrStateConflict, task.Status)
	}

	now := m.now()
	task.Status = model.TaskFailed
	task.Error = reason
	task.CompletedAt = &now
	task.RetryHistory = append(task.RetryHistory, model.RetryAttempt{
		Attempt:   task.RetryCount + 1,
		Error:     reason,
		Timestamp: now,
		AgentID:   agentID,
	})
	if err := m.stores.Tasks.Save(task); err != nil {
		return nil, err
	}

	if task.AssignedTo != "" {
		m.recordOutcome(task, false)
	}

	m.logger.Warn("task failed", "task", task.ID, "reason", reason,
		"retries", task.RetryCount, "maxRetries", task.MaxRetries)
	m.events.TaskFailed(task, reason)
	m.notifySettled(task.MissionID)
	return task, nil
}

// Retry returns a failed task to pending, consuming one unit of retry
// budget. clearAssignment also detaches the agent so the task can be
// claimed by anyone. Tasks out of budget or under audit cannot retry.
func (m *Machine) Retry(taskID string, clearAssignment bool) (*model.Task, error) {
	task, err := m.stores.Tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskFailed {
		return nil, fmt.Errorf("%w: cannot retry task in status %s", model.ErrStateConflict, task.Status)
	}
	if !task.CanRetry() {
		if task.AuditorReviewID != "" {
			return nil, fmt.Errorf("%w: task is under audit review %s", model.ErrStateConflict, task.AuditorReviewID)
		}
		return nil, fmt.Errorf("%w: retry budget exhausted (%d/%d)", model.ErrStateConflict, task.RetryCount, task.MaxRetries)
	}

	task.Status = model.TaskPending
	task.RetryCount++
	task.Error = ""
	task.StartedAt = nil
	task.CompletedAt = nil
	if clearAssignment {
		task.AssignedTo = ""
	}
	if err := m.stores.Tasks.Save(task); err != nil {
		return nil, err
	}

	m.logger.Info("task queued for retry", "task", task.ID,
		"attempt", task.RetryCount, "maxRetries", task.MaxRetries)
	m.events.TaskRetrying(task, task.RetryCount, task.MaxRetries)
	return task, nil
}

// ClaimNext hands an agent the highest-priority executable pending task in
// a mission, starting it atomically from the caller's point of view. It
// returns nil with no error when nothing is claimable.
//
// Two agents polling concurrently can race on the read-then-write claim.
// The stores serialize individual writes, so the loser simply overwrites
// the assignment; both workers then report against the same task and the
// duplicate result is discarded at completion time.
func (m *Machine) ClaimNext(missionID, agentID string) (*model.Task, error) {
	all, err := m.stores.Tasks.ListByMission(missionID)
	if err != nil {
		return nil, err
	}
	completed := make(map[string]bool)
	for _, t := range all {
		if t.Status == model.TaskCompleted {
			completed[t.ID] = true
		}
	}

	pending, err := m.stores.Tasks.ListPendingByPriority(missionID)
	if err != nil {
		return nil, err
	}

	candidate := pickClaimable(pending, agentID, completed)
	if candidate == nil {
		return nil, nil
	}

	candidate.AssignedTo = agentID
	now := m.now()
	candidate.Status = model.TaskInProgress
	candidate.StartedAt = &now
	if err := m.stores.Tasks.Save(candidate); err != nil {
		return nil, err
	}

	if err := m.markAgentActive(agentID, missionID); err != nil {
		m.logger.Warn("failed to mark agent active", "agent", agentID, "error", err)
	}

	m.logger.Debug("task claimed", "task", candidate.ID, "agent", agentID)
	m.events.TaskStarted(candidate, m.agentName(agentID))
	return candidate, nil
}

// pickClaimable selects the best candidate from pending tasks already in
// priority order: the agent's own assignments win over unassigned work,
// and dependencies must all be completed.
func pickClaimable(pending []*model.Task, agentID string, completed map[string]bool) *model.Task {
	var fallback *model.Task
	for _, t := range pending {
		if t.AssignedTo != "" && t.AssignedTo != agentID {
			continue
		}
		ready := true
		for _, dep := range t.Dependencies {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		if t.AssignedTo == agentID {
			return t
		}
		if fallback == nil {
			fallback = t
		}
	}
	return fallback
}

// agentName resolves an agent id to its display name, falling back to the
// id itself.
func (m *Machine) agentName(agentID string) string {
	if agentID == "" {
		return ""
	}
	agent, err := m.stores.Agents.Get(agentID)
	if err != nil || agent.Name == "" {
		return agentID
	}
	return agent.Name
}

func (m *Machine) markAgentActive(agentID, missionID string) error {
	agent, err := m.stores.Agents.Get(agentID)
	if err != nil {
		return err
	}
	agent.Status = model.AgentActive
	if agent.CurrentMissionID == "" {
		agent.CurrentMissionID = missionID
	}
	return m.stores.Agents.Save(agent)
}

// recordOutcome updates the assigned agent's track record for a settled
// task. Failures here are logged, not returned: the task transition has
// already been persisted.
func (m *Machine) recordOutcome(task *model.Task, success bool) {
	agent, err := m.stores.Agents.Get(task.AssignedTo)
	if err != nil {
		m.logger.Warn("failed to load agent for outcome", "agent", task.AssignedTo, "error", err)
		return
	}
	if success {
		var duration time.Duration
		if task.StartedAt != nil && task.CompletedAt != nil {
			duration = task.CompletedAt.Sub(*task.StartedAt)
		}
		agent.RecordTaskCompleted(duration)
	} else {
		agent.RecordTaskFailed()
	}
	if err := m.stores.Agents.Save(agent); err != nil {
		m.logger.Warn("failed to save agent outcome", "agent", agent.ID, "error", err)
	}
}

func (m *Machine) notifySettled(missionID string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.TaskSettled(missionID); err != nil {
		m.logger.Warn("completion check failed", "mission", missionID, "error", err)
	}
}
