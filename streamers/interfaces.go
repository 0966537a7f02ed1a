package streamers

import (
	"taskforce/model"
)

// OrchestrationHandler receives orchestration events as the engine drives
// missions and tasks. Implementations handle terminal output, websocket
// fan-out, or nothing at all.
type OrchestrationHandler interface {
	// Mission lifecycle
	MissionStarted(mission *model.Mission, squadLeadName string)
	MissionPaused(mission *model.Mission)
	MissionCompleted(mission *model.Mission)

	// Task lifecycle
	TaskStarted(task *model.Task, agentName string)
	TaskCompleted(task *model.Task)
	TaskFailed(task *model.Task, reason string)
	TaskRetrying(task *model.Task, attempt, maxRetries int)

	// Escalation workflow
	AuditRequested(task *model.Task, reviewID string)
	AuditDecided(task *model.Task, decision string)
	HumanInputRequested(task *model.Task, question string)
	HumanResponseReceived(task *model.Task)

	// Error surfaces engine-level problems that are not tied to a task.
	Error(err error)
}

// NullHandler discards every event.
type NullHandler struct{}

func (NullHandler) MissionStarted(*model.Mission, string)     {}
func (NullHandler) MissionPaused(*model.Mission)              {}
func (NullHandler) MissionCompleted(*model.Mission)           {}
func (NullHandler) TaskStarted(*model.Task, string)           {}
func (NullHandler) TaskCompleted(*model.Task)                 {}
func (NullHandler) TaskFailed(*model.Task, string)            {}
func (NullHandler) TaskRetrying(*model.Task, int, int)        {}
func (NullHandler) AuditRequested(*model.Task, string)        {}
func (NullHandler) AuditDecided(*model.Task, string)          {}
func (NullHandler) HumanInputRequested(*model.Task, string)   {}
func (NullHandler) HumanResponseReceived(*model.Task)         {}
func (NullHandler) Error(error)                               {}
