package lifecycle

import (
	"fmt"

	"taskforce/model"
)

// SubmitHumanResponse answers a pending human-input task. The human task
// completes with the response as output, the mission's awaiting-human
// marker clears, the originally failed task is settled, and a continuation
// task carries the guidance back to the agent that hit the wall.
func (m *Machine) SubmitHumanResponse(taskID, response string) (*model.Task, error) {
	human, err := m.stores.Tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if human.Type != model.TypeHumanInput {
		return nil, fmt.Errorf("%w: task %s is not a human-input task", model.ErrValidation, taskID)
	}
	if human.Status != model.TaskAwaitingHuman {
		return nil, fmt.Errorf("%w: human-input task is in status %s", model.ErrStateConflict, human.Status)
	}

	mission, err := m.stores.Missions.Get(human.MissionID)
	if err != nil {
		return nil, err
	}

	parentID, _ := human.Input["parentTaskId"].(string)
	var parent *model.Task
	if parentID != "" {
		parent, err = m.stores.Tasks.Get(parentID)
		if err != nil {
			return nil, err
		}
	}

	now := m.now()

	continuation := &model.Task{
		MissionID:   human.MissionID,
		Title:       fmt.Sprintf("Continue with human guidance: %s", human.Title),
		Description: fmt.Sprintf("Incorporate the operator's response and continue the mission: %s", response),
		Type:        model.TypeMissionAnalysis,
		Status:      model.TaskPending,
		Priority:    model.PriorityHigh,
		MaxRetries:  model.DefaultMaxRetries,
		Input: map[string]any{
			"humanResponse": response,
			"humanTaskId":   human.ID,
		},
	}
	if parent != nil {
		continuation.AssignedTo = parent.AssignedTo
		continuation.Input["failedTaskId"] = parent.ID
	}
	if err := m.stores.Tasks.Save(continuation); err != nil {
		return nil, err
	}

	human.Status = model.TaskCompleted
	human.CompletedAt = &now
	human.Output = map[string]any{"humanResponse": response}
	human.ContinuationTaskID = continuation.ID
	if err := m.stores.Tasks.Save(human); err != nil {
		return nil, err
	}

	// The parked parent task is superseded by the continuation, not re-run.
	if parent != nil && parent.Status == model.TaskAwaitingHuman {
		parent.Status = model.TaskCompleted
		parent.CompletedAt = &now
		parent.ContinuationTaskID = continuation.ID
		if err := m.stores.Tasks.Save(parent); err != nil {
			return nil, err
		}
	}

	if mission.AwaitingHumanTaskID == human.ID {
		mission.AwaitingHumanTaskID = ""
	}
	mission.TaskIDs = append(mission.TaskIDs, continuation.ID)
	mission.AppendLog(now, "human_response",
		fmt.Sprintf("task %s answered, continuation %s created", human.ID, continuation.ID))
	if err := m.stores.Missions.Save(mission); err != nil {
		return nil, err
	}

	m.logger.Info("human response recorded", "task", human.ID, "continuation", continuation.ID)
	m.events.HumanResponseReceived(human)
	m.notifySettled(human.MissionID)
	return continuation, nil
}
