// Package mission coordinates the mission lifecycle: creation, starting
// with squad-lead selection, pause and resume, cancellation, and the
// completion check that settles a mission once all of its tasks are done.
package mission

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"taskforce/model"
	"taskforce/runtime"
	"taskforce/store"
	"taskforce/streamers"
)

// Controller drives mission state transitions.
type Controller struct {
	stores   *store.Bundle
	runtime  runtime.Runtime
	selector *Selector
	events   streamers.OrchestrationHandler
	logger   hclog.Logger
	now      func() time.Time
}

func NewController(stores *store.Bundle, rt runtime.Runtime, selector *Selector, logger hclog.Logger) *Controller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Controller{
		stores:   stores,
		runtime:  rt,
		selector: selector,
		events:   streamers.NullHandler{},
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// SetEventHandler attaches an orchestration event sink.
func (c *Controller) SetEventHandler(h streamers.OrchestrationHandler) {
	if h == nil {
		h = streamers.NullHandler{}
	}
	c.events = h
}

// Create registers a new mission in draft.
func (c *Controller) Create(title, description, objective string, autoOrchestrate bool) (*model.Mission, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: mission title is required", model.ErrValidation)
	}
	m := &model.Mission{
		Title:           title,
		Description:     description,
		Objective:       objective,
		Status:          model.MissionDraft,
		AutoOrchestrate: autoOrchestrate,
	}
	m.AppendLog(c.now(), "created", title)
	if err := c.stores.Missions.Save(m); err != nil {
		return nil, err
	}
	c.logger.Info("mission created", "mission", m.ID, "title", title)
	return m, nil
}

// Start activates a draft or paused mission. A draft mission gets a squad
// lead selected (or created) before going active.
func (c *Controller) Start(missionID string) (*model.Mission, error) {
	m, err := c.stores.Missions.Get(missionID)
	if err != nil {
		return nil, err
	}
	if !m.CanTransitionTo(model.MissionActive) {
		return nil, fmt.Errorf("%w: cannot start mission in status %s", model.ErrStateConflict, m.Status)
	}

	resuming := m.Status == model.MissionPaused

	if m.SquadLeadID == "" {
		lead, err := c.selector.SelectSquadLead(missionID)
		if err != nil {
			return nil, fmt.Errorf("failed to select squad lead: %w", err)
		}
		m.SquadLeadID = lead.ID
		m.AppendLog(c.now(), "squad_lead_selected", lead.ID)
	}

	now := c.now()
	m.Status = model.MissionActive
	if m.StartedAt == nil {
		m.StartedAt = &now
	}
	if resuming {
		m.AppendLog(now, "resumed", "")
		c.forEachMissionAgent(missionID, func(a *model.Agent) {
			if a.RuntimeID != "" {
				if err := c.runtime.Resume(a.RuntimeID); err != nil {
					c.logger.Warn("failed to resume worker", "agent", a.ID, "error", err)
				}
			}
		})
	} else {
		m.AppendLog(now, "started", "")
	}

	if err := c.stores.Missions.Save(m); err != nil {
		return nil, err
	}
	c.logger.Info("mission active", "mission", m.ID, "squadLead", m.SquadLeadID)
	c.events.MissionStarted(m, c.agentName(m.SquadLeadID))
	return m, nil
}

// Pause suspends an active mission and its agents' workers.
func (c *Controller) Pause(missionID string) (*model.Mission, error) {
	m, err := c.stores.Missions.Get(missionID)
	if err != nil {
		return nil, err
	}
	if !m.CanTransitionTo(model.MissionPaused) {
		return nil, fmt.Errorf("%w: cannot pause mission in status %s", model.ErrStateConflict, m.Status)
	}

	m.Status = model.MissionPaused
	m.AppendLog(c.now(), "paused", "")
	if err := c.stores.Missions.Save(m); err != nil {
		return nil, err
	}

	c.forEachMissionAgent(missionID, func(a *model.Agent) {
		if a.RuntimeID != "" {
			if err := c.runtime.Pause(a.RuntimeID); err != nil {
				c.logger.Warn("failed to pause worker", "agent", a.ID, "error", err)
			}
		}
	})

	c.logger.Info("mission paused", "mission", m.ID)
	c.events.MissionPaused(m)
	return m, nil
}

// Resume reactivates a paused mission.
func (c *Controller) Resume(missionID string) (*model.Mission, error) {
	m, err := c.stores.Missions.Get(missionID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MissionPaused {
		return nil, fmt.Errorf("%w: cannot resume mission in status %s", model.ErrStateConflict, m.Status)
	}
	return c.Start(missionID)
}

// Cancel force-completes a mission, recording the prior status and the
// operator's reason in the log.
func (c *Controller) Cancel(missionID, reason string) (*model.Mission, error) {
	m, err := c.stores.Missions.Get(missionID)
	if err != nil {
		return nil, err
	}
	if m.Status == model.MissionCompleted {
		return nil, fmt.Errorf("%w: mission is already completed", model.ErrStateConflict)
	}

	m.AppendLog(c.now(), "cancelled",
		fmt.Sprintf("was %s: %s", m.Status, reason))
	if err := c.finalize(m); err != nil {
		return nil, err
	}
	c.logger.Info("mission cancelled", "mission", m.ID, "reason", reason)
	return m, nil
}

// Complete force-completes a mission regardless of outstanding tasks.
func (c *Controller) Complete(missionID string) (*model.Mission, error) {
	m, err := c.stores.Missions.Get(missionID)
	if err != nil {
		return nil, err
	}
	if !m.CanTransitionTo(model.MissionCompleted) {
		return nil, fmt.Errorf("%w: cannot complete mission in status %s", model.ErrStateConflict, m.Status)
	}

	m.AppendLog(c.now(), "completed", "forced")
	if err := c.finalize(m); err != nil {
		return nil, err
	}
	c.logger.Info("mission completed", "mission", m.ID)
	return m, nil
}

// TaskSettled re-evaluates mission completion after a task reaches a
// settled outcome. Non-active missions are left alone.
func (c *Controller) TaskSettled(missionID string) error {
	m, err := c.stores.Missions.Get(missionID)
	if err != nil {
		return err
	}
	if m.Status != model.MissionActive {
		return nil
	}
	done, err := c.CheckCompletion(m)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	m.AppendLog(c.now(), "completed", "all tasks settled")
	if err := c.finalize(m); err != nil {
		return err
	}
	c.logger.Info("mission completed", "mission", m.ID)
	return nil
}

// CheckCompletion reports whether every task in the mission has settled,
// meaning completed or failed. An open audit review and a human escalation
// both keep the mission active through their own unfinished tasks. A
// mission waiting on human input never completes.
func (c *Controller) CheckCompletion(m *model.Mission) (bool, error) {
	if m.AwaitingHumanTaskID != "" {
		return false, nil
	}
	tasks, err := c.stores.Tasks.ListByMission(m.ID)
	if err != nil {
		return false, err
	}
	if len(tasks) == 0 {
		return false, nil
	}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskCompleted, model.TaskFailed:
		default:
			return false, nil
		}
	}
	return true, nil
}

// finalize stamps completion, computes stats, and releases the mission's
// agents back to the pool.
func (c *Controller) finalize(m *model.Mission) error {
	stats, err := c.computeStats(m.ID)
	if err != nil {
		return err
	}

	now := c.now()
	m.Status = model.MissionCompleted
	m.CompletedAt = &now
	m.Stats = stats
	if err := c.stores.Missions.Save(m); err != nil {
		return err
	}

	c.forEachMissionAgent(m.ID, func(a *model.Agent) {
		a.MissionHistory = append(a.MissionHistory, m.ID)
		a.TotalMissionsCompleted++
		a.CurrentMissionID = ""
		a.Status = model.AgentIdle
		if !a.IsReusable {
			a.Status = model.AgentInactive
			if a.RuntimeID != "" {
				if err := c.runtime.Stop(a.RuntimeID); err != nil {
					c.logger.Warn("failed to stop worker", "agent", a.ID, "error", err)
				}
			}
		}
		if err := c.stores.Agents.Save(a); err != nil {
			c.logger.Warn("failed to release agent", "agent", a.ID, "error", err)
		}
	})

	c.events.MissionCompleted(m)
	return nil
}

func (c *Controller) computeStats(missionID string) (*model.MissionStats, error) {
	tasks, err := c.stores.Tasks.ListByMission(missionID)
	if err != nil {
		return nil, err
	}
	stats := &model.MissionStats{TotalTasks: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskCompleted:
			stats.CompletedTasks++
		case model.TaskFailed:
			stats.FailedTasks++
		}
	}
	return stats, nil
}

// agentName resolves an agent id to its display name, falling back to the
// id itself.
func (c *Controller) agentName(agentID string) string {
	if agentID == "" {
		return ""
	}
	a, err := c.stores.Agents.Get(agentID)
	if err != nil || a.Name == "" {
		return agentID
	}
	return a.Name
}

// forEachMissionAgent visits every agent currently attached to the mission.
// Listing failures are logged and swallowed.
func (c *Controller) forEachMissionAgent(missionID string, fn func(*model.Agent)) {
	agents, err := c.stores.Agents.List()
	if err != nil {
		c.logger.Warn("failed to list agents", "error", err)
		return
	}
	for _, a := range agents {
		if a.CurrentMissionID == missionID {
			fn(a)
		}
	}
}
