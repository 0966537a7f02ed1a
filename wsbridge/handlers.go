package wsbridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"taskforce/graph"
	"taskforce/lifecycle"
	"taskforce/model"
	"taskforce/plan"
)

func (s *Server) registerHandlers() {
	s.handlers[TypePollTask] = s.handlePollTask
	s.handlers[TypeReportResult] = s.handleReportResult
	s.handlers[TypeSubmitPlan] = s.handleSubmitPlan
	s.handlers[TypeAuditDecision] = s.handleAuditDecision
	s.handlers[TypeHumanResponse] = s.handleHumanResponse
	s.handlers[TypeMissionStatus] = s.handleMissionStatus
}

func (s *Server) handlePollTask(env *Envelope) (*Envelope, error) {
	var payload PollTaskPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode poll_task: %w", err)
	}

	task, err := s.machine.ClaimNext(payload.MissionID, payload.AgentID)
	if err != nil {
		return nil, err
	}

	result := &PollTaskResultPayload{}
	if task != nil {
		data, err := json.Marshal(task)
		if err != nil {
			return nil, err
		}
		result.Task = data
	}
	return NewResponse(env.RequestID, TypePollTaskResult, result)
}

func (s *Server) handleReportResult(env *Envelope) (*Envelope, error) {
	var payload ReportResultPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode report_result: %w", err)
	}

	ack := &ReportResultAckPayload{Accepted: true}
	if payload.Success {
		if _, err := s.machine.Complete(payload.TaskID, payload.Output); err != nil {
			return resultRejected(env.RequestID, err)
		}
		return NewResponse(env.RequestID, TypeReportResultAck, ack)
	}

	task, err := s.machine.Fail(payload.TaskID, payload.AgentID, payload.Error)
	if err != nil {
		return resultRejected(env.RequestID, err)
	}

	// Failures inside the retry budget go straight back to the queue.
	if task.CanRetry() {
		if _, err := s.machine.Retry(payload.TaskID, false); err == nil {
			ack.Retried = true
		} else {
			s.logger.Warn("automatic retry failed", "task", payload.TaskID, "error", err)
		}
	}
	return NewResponse(env.RequestID, TypeReportResultAck, ack)
}

// resultRejected maps state conflicts to a rejected ack rather than an
// error envelope; duplicate reports from racing workers land here.
func resultRejected(requestID string, err error) (*Envelope, error) {
	if errors.Is(err, model.ErrStateConflict) || errors.Is(err, model.ErrNotFound) {
		return NewResponse(requestID, TypeReportResultAck, &ReportResultAckPayload{
			Accepted: false,
			Reason:   err.Error(),
		})
	}
	return nil, err
}

func (s *Server) handleSubmitPlan(env *Envelope) (*Envelope, error) {
	var payload SubmitPlanPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode submit_plan: %w", err)
	}

	var p plan.Plan
	if err := json.Unmarshal(payload.Plan, &p); err != nil {
		return NewResponse(env.RequestID, TypeSubmitPlanResult, &SubmitPlanResultPayload{
			Accepted: false,
			Reason:   fmt.Sprintf("invalid plan: %v", err),
		})
	}

	res, err := s.builder.Ingest(payload.MissionID, &p)
	if err != nil {
		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrStateConflict) || errors.Is(err, model.ErrNotFound) {
			return NewResponse(env.RequestID, TypeSubmitPlanResult, &SubmitPlanResultPayload{
				Accepted: false,
				Reason:   err.Error(),
			})
		}
		return nil, err
	}

	return NewResponse(env.RequestID, TypeSubmitPlanResult, &SubmitPlanResultPayload{
		Accepted:      true,
		AgentsCreated: res.AgentsCreated,
		TasksCreated:  res.TasksCreated,
		EdgesApplied:  res.EdgesApplied,
		Skipped:       res.Skipped,
	})
}

func (s *Server) handleAuditDecision(env *Envelope) (*Envelope, error) {
	var payload AuditDecisionPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode audit_decision: %w", err)
	}

	decision, err := buildDecision(&payload)
	if err == nil {
		_, err = s.machine.ApplyAuditDecision(payload.TaskID, decision)
	}
	if err != nil {
		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrStateConflict) || errors.Is(err, model.ErrNotFound) {
			return NewResponse(env.RequestID, TypeAuditDecisionAck, &AuditDecisionAckPayload{
				Accepted: false,
				Reason:   err.Error(),
			})
		}
		return nil, err
	}
	return NewResponse(env.RequestID, TypeAuditDecisionAck, &AuditDecisionAckPayload{Accepted: true})
}

func buildDecision(p *AuditDecisionPayload) (lifecycle.Decision, error) {
	switch lifecycle.DecisionKind(p.Decision) {
	case lifecycle.DecisionReassign:
		return lifecycle.NewReassign(p.Reason, p.TargetRole)
	case lifecycle.DecisionRefine:
		return lifecycle.NewRefine(p.Reason, p.RefinedDescription)
	case lifecycle.DecisionEscalateHuman:
		return lifecycle.NewEscalateHuman(p.Reason, p.Question)
	case lifecycle.DecisionRetry:
		return lifecycle.NewRetryDecision(p.Reason)
	default:
		return lifecycle.Decision{}, fmt.Errorf("%w: unknown decision %q", model.ErrValidation, p.Decision)
	}
}

func (s *Server) handleHumanResponse(env *Envelope) (*Envelope, error) {
	var payload HumanResponsePayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode human_response: %w", err)
	}

	continuation, err := s.machine.SubmitHumanResponse(payload.TaskID, payload.Response)
	if err != nil {
		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrStateConflict) || errors.Is(err, model.ErrNotFound) {
			return NewResponse(env.RequestID, TypeHumanResponseAck, &HumanResponseAckPayload{
				Accepted: false,
				Reason:   err.Error(),
			})
		}
		return nil, err
	}

	return NewResponse(env.RequestID, TypeHumanResponseAck, &HumanResponseAckPayload{
		Accepted:           true,
		ContinuationTaskID: continuation.ID,
	})
}

func (s *Server) handleMissionStatus(env *Envelope) (*Envelope, error) {
	var payload MissionStatusPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode mission_status: %w", err)
	}

	m, err := s.stores.Missions.Get(payload.MissionID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.stores.Tasks.ListByMission(payload.MissionID)
	if err != nil {
		return nil, err
	}

	analysis := graph.Analyze(tasks)
	result := &MissionStatusResultPayload{
		TotalTasks: len(tasks),
		Executable: len(analysis.ExecutableTasks()),
		Blocked:    len(analysis.BlockedTasks()),
	}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskCompleted:
			result.Completed++
		case model.TaskFailed:
			result.Failed++
		}
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	result.Mission = data
	return NewResponse(env.RequestID, TypeMissionStatusResult, result)
}
