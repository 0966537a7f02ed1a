package plan

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"taskforce/model"
	"taskforce/runtime"
	"taskforce/store"
)

// Builder turns proposed plans into stored agents and tasks.
type Builder struct {
	stores  *store.Bundle
	runtime runtime.Runtime
	logger  hclog.Logger
	now     func() time.Time
}

func NewBuilder(stores *store.Bundle, rt runtime.Runtime, logger hclog.Logger) *Builder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Builder{stores: stores, runtime: rt, logger: logger, now: time.Now}
}

// Ingest applies a plan to a mission. Agents are created and provisioned
// first, then tasks are created with plan refs translated to store ids,
// then extra dependency edges are applied. An agent whose runtime fails to
// provision is still recorded, offline, so the failure is visible. Tasks
// referencing unknown refs are skipped and noted in the result.
func (b *Builder) Ingest(missionID string, p *Plan) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	mission, err := b.stores.Missions.Get(missionID)
	if err != nil {
		return nil, err
	}
	if mission.Status == model.MissionCompleted {
		return nil, fmt.Errorf("%w: mission %s is completed", model.ErrStateConflict, missionID)
	}

	res := &Result{}
	agentIDs := b.ingestAgents(missionID, p.Agents, res)
	taskIDs := b.ingestTasks(missionID, p.Tasks, agentIDs, res)
	b.applyEdges(p.Edges, taskIDs, res)

	for _, t := range p.Tasks {
		if id, ok := taskIDs[t.Ref]; ok {
			mission.TaskIDs = append(mission.TaskIDs, id)
		}
	}
	mission.AppendLog(b.now(), "plan_ingested",
		fmt.Sprintf("%d agents, %d tasks, %d edges", res.AgentsCreated, res.TasksCreated, res.EdgesApplied))
	if err := b.stores.Missions.Save(mission); err != nil {
		return nil, err
	}

	return res, nil
}

func (b *Builder) ingestAgents(missionID string, proposed []ProposedAgent, res *Result) map[string]string {
	ids := make(map[string]string, len(proposed))
	for _, pa := range proposed {
		if pa.Role == "" {
			b.skip(res, "agent %q has no role", pa.Ref)
			continue
		}

		agent := &model.Agent{
			Name:             pa.Name,
			Role:             pa.Role,
			Capabilities:     pa.Capabilities,
			Status:           model.AgentIdle,
			CurrentMissionID: missionID,
			IsReusable:       true,
		}
		if pa.IsReusable != nil {
			agent.IsReusable = *pa.IsReusable
		}
		if agent.Name == "" {
			agent.Name = fmt.Sprintf("%s-%s", pa.Role, pa.Ref)
		}
		if err := b.stores.Agents.Save(agent); err != nil {
			b.skip(res, "agent %q not saved: %v", pa.Ref, err)
			continue
		}

		runtimeID, err := b.runtime.Provision(agent.ID, agent.Role)
		if err != nil {
			// Keep the record so the operator can see what failed.
			agent.Status = model.AgentOffline
			if saveErr := b.stores.Agents.Save(agent); saveErr != nil {
				b.logger.Warn("failed to mark agent offline", "agent", agent.ID, "error", saveErr)
			}
			b.skip(res, "agent %q provisioning failed: %v", pa.Ref, err)
			ids[pa.Ref] = agent.ID
			res.AgentsCreated++
			continue
		}

		agent.RuntimeID = runtimeID
		if err := b.stores.Agents.Save(agent); err != nil {
			b.skip(res, "agent %q runtime not recorded: %v", pa.Ref, err)
			continue
		}
		ids[pa.Ref] = agent.ID
		res.AgentsCreated++
	}
	return ids
}

func (b *Builder) ingestTasks(missionID string, proposed []ProposedTask, agentIDs map[string]string, res *Result) map[string]string {
	// First pass creates the tasks so every ref has an id, second pass
	// translates DependsOn refs. A task may depend on one declared later
	// in the plan.
	ids := make(map[string]string, len(proposed))
	created := make(map[string]*model.Task, len(proposed))

	for _, pt := range proposed {
		if pt.Title == "" {
			b.skip(res, "task %q has no title", pt.Ref)
			continue
		}

		task := &model.Task{
			MissionID:   missionID,
			Title:       pt.Title,
			Description: pt.Description,
			Type:        pt.Type,
			Status:      model.TaskPending,
			Priority:    pt.Priority,
			MaxRetries:  pt.MaxRetries,
			Input:       pt.Input,
		}
		if task.Type == "" {
			task.Type = model.TypeGeneric
		}
		if task.Priority == "" {
			task.Priority = model.PriorityMedium
		}
		if task.MaxRetries <= 0 {
			task.MaxRetries = model.DefaultMaxRetries
		}
		if pt.AssignedAgent != "" {
			agentID, ok := agentIDs[pt.AssignedAgent]
			if !ok {
				b.skip(res, "task %q assigned to unknown agent ref %q", pt.Ref, pt.AssignedAgent)
			} else {
				task.AssignedTo = agentID
			}
		}
		if task.AssignedTo == "" && pt.AssignedRole != "" {
			agentID, err := b.resolveRole(missionID, pt.AssignedRole)
			if err != nil {
				b.skip(res, "task %q role lookup failed: %v", pt.Ref, err)
			} else if agentID == "" {
				b.skip(res, "task %q has no mission agent with role %q", pt.Ref, pt.AssignedRole)
			} else {
				task.AssignedTo = agentID
			}
		}
		if err := b.stores.Tasks.Save(task); err != nil {
			b.skip(res, "task %q not saved: %v", pt.Ref, err)
			continue
		}
		ids[pt.Ref] = task.ID
		created[pt.Ref] = task
		res.TasksCreated++
	}

	for _, pt := range proposed {
		task, ok := created[pt.Ref]
		if !ok || len(pt.DependsOn) == 0 {
			continue
		}
		for _, dep := range pt.DependsOn {
			depID, ok := ids[dep]
			if !ok {
				b.skip(res, "task %q depends on unknown ref %q", pt.Ref, dep)
				continue
			}
			task.Dependencies = append(task.Dependencies, depID)
		}
		if err := b.stores.Tasks.Save(task); err != nil {
			b.skip(res, "task %q dependencies not saved: %v", pt.Ref, err)
		}
	}

	return ids
}

// resolveRole picks a concrete agent for a role requirement among the
// mission's agents. Offline agents are not candidates.
func (b *Builder) resolveRole(missionID, role string) (string, error) {
	agents, err := b.stores.Agents.List()
	if err != nil {
		return "", err
	}
	for _, a := range agents {
		if a.CurrentMissionID != missionID || a.Role != role {
			continue
		}
		switch a.Status {
		case model.AgentActive, model.AgentIdle, model.AgentInactive:
			return a.ID, nil
		}
	}
	return "", nil
}

func (b *Builder) applyEdges(edges []DependencyEdge, taskIDs map[string]string, res *Result) {
	for _, e := range edges {
		fromID, okFrom := taskIDs[e.From]
		toID, okTo := taskIDs[e.To]
		if !okFrom || !okTo {
			b.skip(res, "edge %s->%s references unknown task ref", e.From, e.To)
			continue
		}

		// From must complete before To: the dependency lands on To.
		task, err := b.stores.Tasks.Get(toID)
		if err != nil {
			b.skip(res, "edge %s->%s target not loaded: %v", e.From, e.To, err)
			continue
		}
		if containsString(task.Dependencies, fromID) {
			continue
		}
		task.Dependencies = append(task.Dependencies, fromID)
		if err := b.stores.Tasks.Save(task); err != nil {
			b.skip(res, "edge %s->%s not saved: %v", e.From, e.To, err)
			continue
		}
		res.EdgesApplied++
	}
}

func (b *Builder) skip(res *Result, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.logger.Warn("plan entry skipped", "reason", msg)
	res.Skipped = append(res.Skipped, msg)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
