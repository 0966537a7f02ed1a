package streamers

import (
	"github.com/hashicorp/go-hclog"

	"taskforce/model"
)

// LoggingHandler is an OrchestrationHandler decorator that writes every
// event to a structured logger, then delegates to an inner handler.
type LoggingHandler struct {
	inner  OrchestrationHandler
	logger hclog.Logger
}

// NewLoggingHandler wraps an existing handler with structured logging. A
// nil inner handler means log only.
func NewLoggingHandler(inner OrchestrationHandler, logger hclog.Logger) *LoggingHandler {
	if inner == nil {
		inner = NullHandler{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LoggingHandler{inner: inner, logger: logger}
}

func (h *LoggingHandler) MissionStarted(m *model.Mission, squadLeadName string) {
	h.logger.Info("mission started", "mission", m.ID, "title", m.Title, "squadLead", squadLeadName)
	h.inner.MissionStarted(m, squadLeadName)
}

func (h *LoggingHandler) MissionPaused(m *model.Mission) {
	h.logger.Info("mission paused", "mission", m.ID)
	h.inner.MissionPaused(m)
}

func (h *LoggingHandler) MissionCompleted(m *model.Mission) {
	h.logger.Info("mission completed", "mission", m.ID)
	h.inner.MissionCompleted(m)
}

func (h *LoggingHandler) TaskStarted(t *model.Task, agentName string) {
	h.logger.Debug("task started", "task", t.ID, "agent", agentName)
	h.inner.TaskStarted(t, agentName)
}

func (h *LoggingHandler) TaskCompleted(t *model.Task) {
	h.logger.Debug("task completed", "task", t.ID)
	h.inner.TaskCompleted(t)
}

func (h *LoggingHandler) TaskFailed(t *model.Task, reason string) {
	h.logger.Warn("task failed", "task", t.ID, "reason", reason)
	h.inner.TaskFailed(t, reason)
}

func (h *LoggingHandler) TaskRetrying(t *model.Task, attempt, maxRetries int) {
	h.logger.Info("task retrying", "task", t.ID, "attempt", attempt, "maxRetries", maxRetries)
	h.inner.TaskRetrying(t, attempt, maxRetries)
}

func (h *LoggingHandler) AuditRequested(t *model.Task, reviewID string) {
	h.logger.Info("audit requested", "task", t.ID, "review", reviewID)
	h.inner.AuditRequested(t, reviewID)
}

func (h *LoggingHandler) AuditDecided(t *model.Task, decision string) {
	h.logger.Info("audit decided", "task", t.ID, "decision", decision)
	h.inner.AuditDecided(t, decision)
}

func (h *LoggingHandler) HumanInputRequested(t *model.Task, question string) {
	h.logger.Warn("human input requested", "task", t.ID, "question", question)
	h.inner.HumanInputRequested(t, question)
}

func (h *LoggingHandler) HumanResponseReceived(t *model.Task) {
	h.logger.Info("human response received", "task", t.ID)
	h.inner.HumanResponseReceived(t)
}

func (h *LoggingHandler) Error(err error) {
	h.logger.Error("orchestration error", "error", err)
	h.inner.Error(err)
}
