package lifecycle

import (
	"fmt"

	"taskforce/model"
	"taskforce/scoring"
)

// DecisionKind enumerates the outcomes an auditor can choose for a failed
// task.
type DecisionKind string

const (
	DecisionReassign      DecisionKind = "reassign"
	DecisionRefine        DecisionKind = "refine"
	DecisionEscalateHuman DecisionKind = "escalate_human"
	DecisionRetry         DecisionKind = "retry"
)

// Decision is an auditor's verdict on a failed task. Use the New*
// constructors; they enforce the per-kind required fields.
type Decision struct {
	Kind   DecisionKind
	Reason string

	// TargetRole names the role to reassign to, reassign only.
	TargetRole string

	// RefinedDescription replaces the task description, refine only.
	RefinedDescription string

	// Question is what to ask the human, escalate_human only.
	Question string
}

// NewReassign hands the task to a different agent with the given role.
func NewReassign(reason, targetRole string) (Decision, error) {
	if err := requireReason(reason); err != nil {
		return Decision{}, err
	}
	if targetRole == "" {
		return Decision{}, fmt.Errorf("%w: reassign decision requires a target role", model.ErrValidation)
	}
	return Decision{Kind: DecisionReassign, Reason: reason, TargetRole: targetRole}, nil
}

// NewRefine rewrites the task description before it runs again.
func NewRefine(reason, refinedDescription string) (Decision, error) {
	if err := requireReason(reason); err != nil {
		return Decision{}, err
	}
	if refinedDescription == "" {
		return Decision{}, fmt.Errorf("%w: refine decision requires a refined description", model.ErrValidation)
	}
	return Decision{Kind: DecisionRefine, Reason: reason, RefinedDescription: refinedDescription}, nil
}

// NewEscalateHuman blocks the task on a question to a human operator.
func NewEscalateHuman(reason, question string) (Decision, error) {
	if err := requireReason(reason); err != nil {
		return Decision{}, err
	}
	if question == "" {
		return Decision{}, fmt.Errorf("%w: escalate_human decision requires a question", model.ErrValidation)
	}
	return Decision{Kind: DecisionEscalateHuman, Reason: reason, Question: question}, nil
}

// NewRetryDecision grants the task a fresh retry budget.
func NewRetryDecision(reason string) (Decision, error) {
	if err := requireReason(reason); err != nil {
		return Decision{}, err
	}
	return Decision{Kind: DecisionRetry, Reason: reason}, nil
}

func requireReason(reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: decision requires a reason", model.ErrValidation)
	}
	return nil
}

// RequestAudit creates an audit-review task for a failed task that has
// exhausted its retries, and assigns it to the auditor. The failed task is
// linked to its review so it cannot be retried or re-audited meanwhile.
func (m *Machine) RequestAudit(taskID, auditorID string) (*model.Task, error) {
	task, err := m.stores.Tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskFailed {
		return nil, fmt.Errorf("%w: cannot audit task in status %s", model.ErrStateConflict, task.Status)
	}
	if !task.NeedsAudit() {
		if task.AuditorReviewID != "" {
			return nil, fmt.Errorf("%w: task already under audit review %s", model.ErrStateConflict, task.AuditorReviewID)
		}
		return nil, fmt.Errorf("%w: task still has retry budget (%d/%d)", model.ErrStateConflict, task.RetryCount, task.MaxRetries)
	}

	review := &model.Task{
		MissionID:   task.MissionID,
		Title:       fmt.Sprintf("Audit review: %s", task.Title),
		Description: fmt.Sprintf("Review the repeated failures of task %s and decide how to proceed.", task.ID),
		Type:        model.TypeAuditReview,
		Status:      model.TaskPending,
		AssignedTo:  auditorID,
		Priority:    model.PriorityHigh,
		MaxRetries:  model.DefaultMaxRetries,
		Input: map[string]any{
			"failedTaskId": task.ID,
			"failureError": task.Error,
			"retryCount":   task.RetryCount,
		},
	}
	if err := m.stores.Tasks.Save(review); err != nil {
		return nil, err
	}

	task.AuditorReviewID = review.ID
	if err := m.stores.Tasks.Save(task); err != nil {
		return nil, err
	}

	mission, err := m.stores.Missions.Get(task.MissionID)
	if err != nil {
		return nil, err
	}
	mission.TaskIDs = append(mission.TaskIDs, review.ID)
	if err := m.stores.Missions.Save(mission); err != nil {
		return nil, err
	}

	m.logger.Info("audit review created", "task", task.ID, "review", review.ID, "auditor", auditorID)
	m.events.AuditRequested(task, review.ID)
	return review, nil
}

// ApplyAuditDecision resolves a failed task according to the auditor's
// decision. id may name the failed task directly or its audit-review task.
//
// Only the retry decision resets the retry budget; reassign and refine send
// the task back to pending without granting new attempts, so a task that
// keeps failing after those decisions comes straight back to audit.
func (m *Machine) ApplyAuditDecision(id string, d Decision) (*model.Task, error) {
	task, err := m.resolveAudited(id)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskFailed {
		return nil, fmt.Errorf("%w: audited task is in status %s", model.ErrStateConflict, task.Status)
	}

	mission, err := m.stores.Missions.Get(task.MissionID)
	if err != nil {
		return nil, err
	}

	switch d.Kind {
	case DecisionReassign:
		if err := m.reassign(task, d.TargetRole); err != nil {
			return nil, err
		}
	case DecisionRefine:
		task.Description = d.RefinedDescription
		task.Status = model.TaskPending
		task.Error = ""
		task.StartedAt = nil
		task.CompletedAt = nil
	case DecisionEscalateHuman:
		if err := m.escalateHuman(task, mission, d.Question); err != nil {
			return nil, err
		}
	case DecisionRetry:
		task.Status = model.TaskPending
		task.RetryCount = 0
		task.MaxRetries++
		task.Error = ""
		task.StartedAt = nil
		task.CompletedAt = nil
	default:
		return nil, fmt.Errorf("%w: unknown audit decision %q", model.ErrValidation, d.Kind)
	}

	// The review is settled; the failed task leaves the audit workflow.
	reviewID := task.AuditorReviewID
	task.AuditorReviewID = ""
	if err := m.stores.Tasks.Save(task); err != nil {
		return nil, err
	}
	if reviewID != "" {
		if err := m.settleReview(reviewID, d); err != nil {
			m.logger.Warn("failed to settle audit review", "review", reviewID, "error", err)
		}
	}

	mission.AppendLog(m.now(), "audit_decision",
		fmt.Sprintf("task %s: %s (%s)", task.ID, d.Kind, d.Reason))
	if err := m.stores.Missions.Save(mission); err != nil {
		return nil, err
	}

	m.logger.Info("audit decision applied", "task", task.ID, "decision", d.Kind)
	m.events.AuditDecided(task, string(d.Kind))
	return task, nil
}

// resolveAudited accepts either a failed task id or its audit-review task
// id and returns the failed task.
func (m *Machine) resolveAudited(id string) (*model.Task, error) {
	task, err := m.stores.Tasks.Get(id)
	if err != nil {
		return nil, err
	}
	if task.Type != model.TypeAuditReview {
		return task, nil
	}
	failedID, _ := task.Input["failedTaskId"].(string)
	if failedID == "" {
		return nil, fmt.Errorf("%w: audit review %s has no failed task reference", model.ErrValidation, task.ID)
	}
	return m.stores.Tasks.Get(failedID)
}

// reassign moves the task to the best-scoring idle agent carrying the
// target role and a provisioned runtime.
func (m *Machine) reassign(task *model.Task, role string) error {
	agents, err := m.stores.Agents.ListByStatus(model.AgentIdle)
	if err != nil {
		return err
	}

	roles := scoring.DefaultRoleTable()
	scorer := scoring.NewScorer(m.stores.Agents, m.stores.Tasks, roles)
	criteria := scoring.Criteria{TaskType: task.Type, MissionID: task.MissionID}

	var best *model.Agent
	bestScore := -1
	for _, agent := range agents {
		if agent.Role != role || agent.RuntimeID == "" {
			continue
		}
		workload, err := scorer.Workload(agent.ID)
		if err != nil {
			return err
		}
		if total := scoring.Score(agent, criteria, workload, roles).Total; total > bestScore {
			best, bestScore = agent, total
		}
	}
	if best == nil {
		return fmt.Errorf("%w: no idle agent with role %q available for reassignment", model.ErrStateConflict, role)
	}

	task.AssignedTo = best.ID
	task.Status = model.TaskPending
	task.Error = ""
	task.StartedAt = nil
	task.CompletedAt = nil
	return nil
}

// escalateHuman creates a human-input task and parks the mission's
// awaiting-human marker on it. The failed task moves to the awaiting-human
// status until the operator answers, which also keeps it out of the audit
// workflow meanwhile.
func (m *Machine) escalateHuman(task *model.Task, mission *model.Mission, question string) error {
	if mission.AwaitingHumanTaskID != "" {
		return fmt.Errorf("%w: mission already awaiting human input on task %s", model.ErrStateConflict, mission.AwaitingHumanTaskID)
	}

	human := &model.Task{
		MissionID:   task.MissionID,
		Title:       fmt.Sprintf("Human input needed: %s", task.Title),
		Description: question,
		Type:        model.TypeHumanInput,
		Status:      model.TaskAwaitingHuman,
		Priority:    model.PriorityHigh,
		MaxRetries:  model.DefaultMaxRetries,
		Input: map[string]any{
			"parentTaskId":   task.ID,
			"auditorTaskId":  task.AuditorReviewID,
			"originalTaskId": task.ID,
			"question":       question,
		},
	}
	if err := m.stores.Tasks.Save(human); err != nil {
		return err
	}

	task.Status = model.TaskAwaitingHuman
	mission.AwaitingHumanTaskID = human.ID
	mission.TaskIDs = append(mission.TaskIDs, human.ID)
	mission.AppendLog(m.now(), "human_escalation",
		fmt.Sprintf("task %s escalated: %s", task.ID, question))
	m.events.HumanInputRequested(human, question)
	return nil
}

// settleReview completes the audit-review task with the decision as its
// output.
func (m *Machine) settleReview(reviewID string, d Decision) error {
	review, err := m.stores.Tasks.Get(reviewID)
	if err != nil {
		return err
	}
	now := m.now()
	review.Status = model.TaskCompleted
	review.CompletedAt = &now
	review.Output = map[string]any{
		"decision": string(d.Kind),
		"reason":   d.Reason,
	}
	return m.stores.Tasks.Save(review)
}
