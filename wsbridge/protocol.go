// Package wsbridge exposes the engine to worker processes and operator
// consoles over a WebSocket endpoint. Messages travel as JSON envelopes;
// requests carry a request id that the matching response echoes back.
package wsbridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType identifies the kind of payload an envelope carries.
type MessageType string

const (
	// Requests from workers and operators
	TypePollTask      MessageType = "poll_task"
	TypeReportResult  MessageType = "report_result"
	TypeSubmitPlan    MessageType = "submit_plan"
	TypeAuditDecision MessageType = "audit_decision"
	TypeHumanResponse MessageType = "human_response"
	TypeMissionStatus MessageType = "mission_status"
	TypeHeartbeat     MessageType = "heartbeat"

	// Responses
	TypePollTaskResult      MessageType = "poll_task_result"
	TypeReportResultAck     MessageType = "report_result_ack"
	TypeSubmitPlanResult    MessageType = "submit_plan_result"
	TypeAuditDecisionAck    MessageType = "audit_decision_ack"
	TypeHumanResponseAck    MessageType = "human_response_ack"
	TypeMissionStatusResult MessageType = "mission_status_result"
	TypeHeartbeatAck        MessageType = "heartbeat_ack"
	TypeError               MessageType = "error"
)

// Envelope is the wire frame for every bridge message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewRequest creates an envelope with a fresh request id.
func NewRequest(t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, uuid.NewString(), payload)
}

// NewResponse creates an envelope answering the given request id.
func NewResponse(requestID string, t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, requestID, payload)
}

// NewError creates an error envelope answering the given request id.
func NewError(requestID, code, message string) (*Envelope, error) {
	return newEnvelope(TypeError, requestID, &ErrorPayload{Code: code, Message: message})
}

func newEnvelope(t MessageType, requestID string, payload any) (*Envelope, error) {
	env := &Envelope{Type: t, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = data
	}
	return env, nil
}

// DecodePayload unmarshals an envelope's payload into dest.
func DecodePayload(env *Envelope, dest any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s envelope has no payload", env.Type)
	}
	return json.Unmarshal(env.Payload, dest)
}

// ErrorPayload reports a failed request.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PollTaskPayload asks for the next executable task in a mission.
type PollTaskPayload struct {
	MissionID string `json:"missionId"`
	AgentID   string `json:"agentId"`
}

// PollTaskResultPayload carries the claimed task, if any.
type PollTaskResultPayload struct {
	Task json.RawMessage `json:"task,omitempty"`
}

// ReportResultPayload settles a task the worker ran.
type ReportResultPayload struct {
	TaskID  string         `json:"taskId"`
	AgentID string         `json:"agentId"`
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ReportResultAckPayload acknowledges a result report.
type ReportResultAckPayload struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`

	// Retried is true when the failure was sent back to the queue.
	Retried bool `json:"retried,omitempty"`
}

// SubmitPlanPayload delivers a squad lead's proposed plan.
type SubmitPlanPayload struct {
	MissionID string          `json:"missionId"`
	Plan      json.RawMessage `json:"plan"`
}

// SubmitPlanResultPayload reports what the ingestion created.
type SubmitPlanResultPayload struct {
	Accepted      bool     `json:"accepted"`
	Reason        string   `json:"reason,omitempty"`
	AgentsCreated int      `json:"agentsCreated"`
	TasksCreated  int      `json:"tasksCreated"`
	EdgesApplied  int      `json:"edgesApplied"`
	Skipped       []string `json:"skipped,omitempty"`
}

// AuditDecisionPayload resolves a failed task under audit.
type AuditDecisionPayload struct {
	TaskID             string `json:"taskId"`
	Decision           string `json:"decision"`
	Reason             string `json:"reason,omitempty"`
	TargetRole         string `json:"targetRole,omitempty"`
	RefinedDescription string `json:"refinedDescription,omitempty"`
	Question           string `json:"question,omitempty"`
}

// AuditDecisionAckPayload acknowledges an applied audit decision.
type AuditDecisionAckPayload struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// HumanResponsePayload answers a human-input task.
type HumanResponsePayload struct {
	TaskID   string `json:"taskId"`
	Response string `json:"response"`
}

// HumanResponseAckPayload acknowledges a human response and names the
// continuation task it spawned.
type HumanResponseAckPayload struct {
	Accepted           bool   `json:"accepted"`
	Reason             string `json:"reason,omitempty"`
	ContinuationTaskID string `json:"continuationTaskId,omitempty"`
}

// MissionStatusPayload requests a mission snapshot.
type MissionStatusPayload struct {
	MissionID string `json:"missionId"`
}

// MissionStatusResultPayload carries the mission and its task summary.
type MissionStatusResultPayload struct {
	Mission    json.RawMessage `json:"mission"`
	TotalTasks int             `json:"totalTasks"`
	Executable int             `json:"executable"`
	Blocked    int             `json:"blocked"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
}
