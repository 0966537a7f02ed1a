package mission

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"taskforce/config"
	"taskforce/model"
	"taskforce/runtime"
	"taskforce/store"
)

// Selector finds or creates the squad lead for a mission. Selection
// prefers reuse: an idle lead with no mission wins over one coming off a
// completed mission, and creating a fresh lead is the last resort.
type Selector struct {
	stores   *store.Bundle
	runtime  runtime.Runtime
	template *config.RoleTemplate
	logger   hclog.Logger
}

func NewSelector(stores *store.Bundle, rt runtime.Runtime, cfg *config.Config, logger hclog.Logger) *Selector {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	var tmpl *config.RoleTemplate
	if cfg != nil {
		tmpl = cfg.RoleTemplateFor(model.SquadLeadRole)
	}
	return &Selector{stores: stores, runtime: rt, template: tmpl, logger: logger}
}

// SelectSquadLead returns the lead for the mission, claiming it by setting
// its current mission. When no reusable lead is available a new one is
// created from the role template and provisioned; if provisioning fails
// the lead is recorded offline and still returned, so the mission start
// surfaces the problem instead of silently stalling.
func (s *Selector) SelectSquadLead(missionID string) (*model.Agent, error) {
	idle, err := s.stores.Agents.ListByStatus(model.AgentIdle)
	if err != nil {
		return nil, err
	}

	var fresh, veteran *model.Agent
	for _, a := range idle {
		if a.Role != model.SquadLeadRole || !a.IsReusable || a.CurrentMissionID != "" {
			continue
		}
		if a.TotalMissionsCompleted == 0 {
			if fresh == nil {
				fresh = a
			}
			continue
		}
		if veteran == nil && s.lastMissionCompleted(a) {
			veteran = a
		}
	}

	lead := fresh
	if lead == nil {
		lead = veteran
	}
	if lead != nil {
		lead.CurrentMissionID = missionID
		lead.Status = model.AgentActive
		if err := s.stores.Agents.Save(lead); err != nil {
			return nil, err
		}
		s.logger.Info("squad lead reused", "agent", lead.ID, "mission", missionID)
		return lead, nil
	}

	return s.createSquadLead(missionID)
}

// lastMissionCompleted reports whether the agent's most recent mission is
// actually completed. Missions that disappeared from the store count as
// completed.
func (s *Selector) lastMissionCompleted(a *model.Agent) bool {
	lastID := a.LastMissionID()
	if lastID == "" {
		return true
	}
	m, err := s.stores.Missions.Get(lastID)
	if err != nil {
		return true
	}
	return m.Status == model.MissionCompleted
}

func (s *Selector) createSquadLead(missionID string) (*model.Agent, error) {
	capabilities := []string{"planning", "delegation", "review"}
	namePrefix := "lead"
	reusable := true
	if s.template != nil {
		if len(s.template.Capabilities) > 0 {
			capabilities = s.template.Capabilities
		}
		if s.template.NamePrefix != "" {
			namePrefix = s.template.NamePrefix
		}
		reusable = s.template.IsReusable()
	}

	lead := &model.Agent{
		Name:             fmt.Sprintf("%s-%d", namePrefix, time.Now().UnixMilli()),
		Role:             model.SquadLeadRole,
		Capabilities:     capabilities,
		Status:           model.AgentActive,
		CurrentMissionID: missionID,
		IsReusable:       reusable,
	}
	if err := s.stores.Agents.Save(lead); err != nil {
		return nil, err
	}

	runtimeID, err := s.runtime.Provision(lead.ID, lead.Role)
	if err != nil {
		lead.Status = model.AgentOffline
		if saveErr := s.stores.Agents.Save(lead); saveErr != nil {
			s.logger.Warn("failed to mark squad lead offline", "agent", lead.ID, "error", saveErr)
		}
		s.logger.Warn("squad lead provisioning failed", "agent", lead.ID, "error", err)
		return lead, nil
	}

	lead.RuntimeID = runtimeID
	if err := s.stores.Agents.Save(lead); err != nil {
		return nil, err
	}
	s.logger.Info("squad lead created", "agent", lead.ID, "mission", missionID)
	return lead, nil
}
