package model

import (
	"time"
)

// MissionStatus is the lifecycle status of a mission.
type MissionStatus string

const (
	MissionDraft     MissionStatus = "draft"
	MissionActive    MissionStatus = "active"
	MissionPaused    MissionStatus = "paused"
	MissionCompleted MissionStatus = "completed"
)

// TaskStatus is the lifecycle status of a task.
type TaskStatus string

const (
	TaskPending       TaskStatus = "pending"
	TaskInProgress    TaskStatus = "in_progress"
	TaskCompleted     TaskStatus = "completed"
	TaskFailed        TaskStatus = "failed"
	TaskAwaitingHuman TaskStatus = "awaiting_human_response"
)

// AgentStatus is the availability status of an agent.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "idle"
	AgentActive   AgentStatus = "active"
	AgentInactive AgentStatus = "inactive"
	AgentOffline  AgentStatus = "offline"
)

// TaskType categorizes the kind of work a task represents. The set is open
// except for TypeHumanInput, which is reserved for human escalation tasks.
type TaskType string

const (
	TypeWebSearch       TaskType = "web_search"
	TypeCodeExecution   TaskType = "code_execution"
	TypeDataAnalysis    TaskType = "data_analysis"
	TypeWriting         TaskType = "writing"
	TypeMissionAnalysis TaskType = "mission_analysis"
	TypeAuditReview     TaskType = "audit_review"
	TypeHumanInput      TaskType = "human_input"
	TypeGeneric         TaskType = "generic"
)

// Priority orders tasks within a mission's work queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to a sortable weight, higher is more urgent.
// Unknown priorities sort below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// LogEntry is one record in a mission's append-only orchestration log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}

// RetryAttempt is one record in a task's retry history.
type RetryAttempt struct {
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agentId,omitempty"`
}

// MissionStats summarizes task outcomes at mission completion.
type MissionStats struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	FailedTasks    int `json:"failedTasks"`
}

// Mission is a top-level objective decomposed into tasks.
type Mission struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Objective   string        `json:"objective,omitempty"`
	Status      MissionStatus `json:"status"`

	// SquadLeadID references the coordinating agent, empty until Start.
	SquadLeadID string `json:"squadLeadId,omitempty"`

	// TaskIDs lists the mission's tasks in creation order.
	TaskIDs []string `json:"taskIds,omitempty"`

	// OrchestrationLog is append-only; entries are never rewritten.
	OrchestrationLog []LogEntry `json:"orchestrationLog,omitempty"`

	// AwaitingHumanTaskID is set iff a task is blocked on human input.
	AwaitingHumanTaskID string `json:"awaitingHumanTaskId,omitempty"`

	AutoOrchestrate bool `json:"autoOrchestrate"`

	Stats *MissionStats `json:"stats,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// AppendLog records an orchestration event on the mission.
func (m *Mission) AppendLog(now time.Time, action, details string) {
	m.OrchestrationLog = append(m.OrchestrationLog, LogEntry{
		Timestamp: now,
		Action:    action,
		Details:   details,
	})
}

// CanTransitionTo reports whether the mission status machine allows moving
// to the target status. Completed is terminal.
func (m *Mission) CanTransitionTo(target MissionStatus) bool {
	if m.Status == MissionCompleted {
		return false
	}
	switch target {
	case MissionActive:
		return m.Status == MissionDraft || m.Status == MissionPaused
	case MissionPaused:
		return m.Status == MissionActive
	case MissionCompleted:
		return true
	case MissionDraft:
		return false
	}
	return false
}

// Task is one unit of work within a mission.
type Task struct {
	ID          string     `json:"id"`
	MissionID   string     `json:"missionId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        TaskType   `json:"type"`
	Status      TaskStatus `json:"status"`

	// AssignedTo references an agent; empty means unassigned.
	AssignedTo string `json:"assignedTo,omitempty"`

	// Dependencies lists task ids within the same mission that must
	// complete before this task can execute. Expected to form a DAG;
	// cycles are tolerated and detected, not rejected.
	Dependencies []string `json:"dependencies,omitempty"`

	Priority Priority `json:"priority"`

	RetryCount   int            `json:"retryCount"`
	MaxRetries   int            `json:"maxRetries"`
	RetryHistory []RetryAttempt `json:"retryHistory,omitempty"`

	// AuditorReviewID references the audit task reviewing this one.
	// Its presence marks the task as under audit.
	AuditorReviewID string `json:"auditorReviewId,omitempty"`

	// ContinuationTaskID points at the task created to resume work
	// after a human response.
	ContinuationTaskID string `json:"continuationTaskId,omitempty"`

	Input  map[string]any `json:"input,omitempty"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// DefaultMaxRetries is the retry budget applied when a task does not
// specify its own.
const DefaultMaxRetries = 3

// CanRetry reports whether the task has retry budget left and is not
// currently under audit.
func (t *Task) CanRetry() bool {
	return t.Status == TaskFailed && t.RetryCount < t.MaxRetries && t.AuditorReviewID == ""
}

// NeedsAudit reports whether the task has exhausted its retries without an
// audit review in flight. This predicate, not a stored status, gates the
// audit workflow.
func (t *Task) NeedsAudit() bool {
	return t.RetryCount >= t.MaxRetries && t.AuditorReviewID == ""
}

// IsTerminal reports whether the task has reached its terminal status.
// Failed is not terminal: it is recoverable via retry or audit decision.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted
}

// Agent is an autonomous worker that executes tasks.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Role is a free-form tag: researcher, developer, writer, analyst,
	// squad_lead, ...
	Role string `json:"role"`

	Capabilities []string    `json:"capabilities,omitempty"`
	Status       AgentStatus `json:"status"`

	// CurrentMissionID is empty when the agent is free.
	CurrentMissionID string `json:"currentMissionId,omitempty"`

	// RuntimeID is the opaque identifier of the agent's provisioned
	// worker runtime, empty when no runtime is attached.
	RuntimeID string `json:"runtimeId,omitempty"`

	IsReusable bool `json:"isReusable"`

	// MissionHistory lists completed mission ids in completion order.
	MissionHistory         []string `json:"missionHistory,omitempty"`
	TotalMissionsCompleted int      `json:"totalMissionsCompleted"`

	TasksCompleted int `json:"tasksCompleted"`
	TasksFailed    int `json:"tasksFailed"`

	// SuccessRate is 0-100, recomputed from the task counters.
	SuccessRate float64 `json:"successRate"`

	TotalDuration   time.Duration `json:"totalDuration"`
	AverageDuration time.Duration `json:"averageDuration"`

	CreatedAt time.Time `json:"createdAt"`
}

// SquadLeadRole is the role tag of coordinating agents.
const SquadLeadRole = "squad_lead"

// RecordTaskCompleted updates the agent's track record after a successful
// task, including the rolling duration averages.
func (a *Agent) RecordTaskCompleted(duration time.Duration) {
	a.TasksCompleted++
	a.TotalDuration += duration
	done := a.TasksCompleted
	if done > 0 {
		a.AverageDuration = a.TotalDuration / time.Duration(done)
	}
	a.recomputeSuccessRate()
}

// RecordTaskFailed updates the agent's track record after a failed task.
func (a *Agent) RecordTaskFailed() {
	a.TasksFailed++
	a.recomputeSuccessRate()
}

func (a *Agent) recomputeSuccessRate() {
	total := a.TasksCompleted + a.TasksFailed
	if total == 0 {
		a.SuccessRate = 0
		return
	}
	a.SuccessRate = float64(a.TasksCompleted) / float64(total) * 100
}

// HasCapability reports whether the agent lists the given capability.
func (a *Agent) HasCapability(cap string) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// LastMissionID returns the most recently completed mission id, or empty.
func (a *Agent) LastMissionID() string {
	if len(a.MissionHistory) == 0 {
		return ""
	}
	return a.MissionHistory[len(a.MissionHistory)-1]
}
