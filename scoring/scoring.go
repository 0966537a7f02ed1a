// Package scoring ranks agents for task assignment. Score is a pure
// function over one agent, the assignment criteria, and the agent's current
// workload; Scorer wraps it with store access for scoring whole fleets.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"taskforce/config"
	"taskforce/model"
	"taskforce/store"
)

// Criteria describes what kind of agent an assignment is looking for.
type Criteria struct {
	TaskType             model.TaskType
	RequiredCapabilities []string
	PreferredAgentID     string
	MissionID            string
}

// Breakdown itemizes the score bands.
type Breakdown struct {
	RoleCapability int `json:"roleCapability"` // 0..40
	Availability   int `json:"availability"`   // 0..30
	TrackRecord    int `json:"trackRecord"`    // 0..20
	Workload       int `json:"workload"`       // -10..0
}

// Result is one agent's score with the reasoning behind it.
type Result struct {
	Agent     *model.Agent
	Total     int
	Breakdown Breakdown
	Reasons   []string
}

// RoleTable maps task types to the preferred agent role.
type RoleTable map[model.TaskType]string

// DefaultRoleTable is the built-in task-type → role lookup. Config routes
// override or extend it.
func DefaultRoleTable() RoleTable {
	return RoleTable{
		model.TypeWebSearch:       "researcher",
		model.TypeCodeExecution:   "developer",
		model.TypeDataAnalysis:    "analyst",
		model.TypeWriting:         "writer",
		model.TypeMissionAnalysis: model.SquadLeadRole,
		model.TypeAuditReview:     model.SquadLeadRole,
	}
}

// RouteTableFromConfig overlays the config's route blocks on the default
// table. A nil config yields the defaults.
func RouteTableFromConfig(cfg *config.Config) RoleTable {
	table := DefaultRoleTable()
	if cfg == nil {
		return table
	}
	for taskType, role := range cfg.RouteTable() {
		table[model.TaskType(taskType)] = role
	}
	return table
}

// Score computes the multi-factor assignment score for one agent.
// workload is the agent's count of pending plus in-progress tasks.
func Score(agent *model.Agent, c Criteria, workload int, roles RoleTable) Result {
	r := Result{Agent: agent}

	r.Breakdown.RoleCapability, r.Reasons = roleCapabilityBand(agent, c, roles, r.Reasons)
	r.Breakdown.Availability, r.Reasons = availabilityBand(agent, c, r.Reasons)
	r.Breakdown.TrackRecord, r.Reasons = trackRecordBand(agent, r.Reasons)
	r.Breakdown.Workload, r.Reasons = workloadBand(workload, r.Reasons)

	total := r.Breakdown.RoleCapability + r.Breakdown.Availability +
		r.Breakdown.TrackRecord + r.Breakdown.Workload
	r.Total = clamp(total, 0, 100)
	return r
}

// roleCapabilityBand scores role fit and capabilities, 0..40. A preferred
// agent short-circuits to the band maximum.
func roleCapabilityBand(agent *model.Agent, c Criteria, roles RoleTable, reasons []string) (int, []string) {
	if c.PreferredAgentID != "" && agent.ID == c.PreferredAgentID {
		return 40, append(reasons, "preferred agent for this task")
	}

	score := 0
	if preferred, ok := roles[c.TaskType]; ok && c.TaskType != "" {
		if agent.Role == preferred {
			score += 30
			reasons = append(reasons, fmt.Sprintf("role %s matches task type %s", agent.Role, c.TaskType))
		} else if agent.Role == model.SquadLeadRole {
			// A squad lead may always take work, at reduced priority.
			score += 10
			reasons = append(reasons, "squad lead fallback")
		}
	}

	if n := len(c.RequiredCapabilities); n > 0 {
		matched := 0
		for _, capability := range c.RequiredCapabilities {
			if agent.HasCapability(capability) {
				matched++
			}
		}
		score += int(math.Round(10 * float64(matched) / float64(n)))
		if matched > 0 {
			reasons = append(reasons, fmt.Sprintf("matches %d/%d required capabilities", matched, n))
		}
	}

	if bonus := min(10, 2*len(agent.Capabilities)); bonus > 0 {
		score += bonus
	}

	return clamp(score, 0, 40), reasons
}

// availabilityBand scores current availability, 0..30.
func availabilityBand(agent *model.Agent, c Criteria, reasons []string) (int, []string) {
	score := 0
	switch agent.Status {
	case model.AgentIdle:
		score += 20
		reasons = append(reasons, "agent is idle")
	case model.AgentActive:
		score += 10
		reasons = append(reasons, "agent is active")
	}

	if agent.CurrentMissionID == "" {
		score += 10
		reasons = append(reasons, "no current mission")
	} else if c.MissionID != "" && agent.CurrentMissionID == c.MissionID {
		// Discourage piling more work onto an agent already committed
		// to this mission.
		score -= 5
		reasons = append(reasons, "already working this mission")
	}

	return clamp(score, 0, 30), reasons
}

// trackRecordBand scores historical success, 0..20.
func trackRecordBand(agent *model.Agent, reasons []string) (int, []string) {
	score := int(math.Round(agent.SuccessRate / 10))

	switch {
	case agent.TasksCompleted >= 10:
		score += 10
		reasons = append(reasons, fmt.Sprintf("veteran: %d tasks completed", agent.TasksCompleted))
	case agent.TasksCompleted >= 5:
		score += 7
		reasons = append(reasons, fmt.Sprintf("experienced: %d tasks completed", agent.TasksCompleted))
	case agent.TasksCompleted >= 1:
		score += 4
	}

	return clamp(score, 0, 20), reasons
}

// workloadBand penalizes agents with work in flight, -10..0.
func workloadBand(workload int, reasons []string) (int, []string) {
	penalty := min(10, 5*workload)
	if penalty > 0 {
		reasons = append(reasons, fmt.Sprintf("%d tasks already in flight", workload))
	}
	return -penalty, reasons
}

// Scorer scores fleets of agents against criteria, consulting the task
// store for per-agent workload.
type Scorer struct {
	agents store.AgentStore
	tasks  store.TaskStore
	roles  RoleTable
}

// NewScorer creates a Scorer. A nil roles table falls back to the default.
func NewScorer(agents store.AgentStore, tasks store.TaskStore, roles RoleTable) *Scorer {
	if roles == nil {
		roles = DefaultRoleTable()
	}
	return &Scorer{agents: agents, tasks: tasks, roles: roles}
}

// Workload counts the agent's pending and in-progress tasks.
func (s *Scorer) Workload(agentID string) (int, error) {
	tasks, err := s.tasks.ListByAgent(agentID, model.TaskPending, model.TaskInProgress)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// ScoreAgents scores every idle-or-active reusable agent and returns the
// results sorted by total descending. Ties break on agent id ascending so
// repeated calls over the same fleet rank identically.
func (s *Scorer) ScoreAgents(c Criteria) ([]Result, error) {
	agents, err := s.agents.ListByStatus(model.AgentIdle, model.AgentActive)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, agent := range agents {
		if !agent.IsReusable {
			continue
		}
		workload, err := s.Workload(agent.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, Score(agent, c, workload, s.roles))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Total != results[j].Total {
			return results[i].Total > results[j].Total
		}
		return results[i].Agent.ID < results[j].Agent.ID
	})
	return results, nil
}

// BestAgent returns the top-scoring agent for the criteria, or nil when no
// reusable idle-or-active agent exists.
func (s *Scorer) BestAgent(c Criteria) (*model.Agent, error) {
	results, err := s.ScoreAgents(c)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0].Agent, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
