package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskforce/model"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS missions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    objective TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft',
    squad_lead_id TEXT NOT NULL DEFAULT '',
    task_ids JSONB,
    orchestration_log JSONB,
    awaiting_human_task_id TEXT NOT NULL DEFAULT '',
    auto_orchestrate BOOLEAN NOT NULL DEFAULT FALSE,
    stats JSONB,
    created_at TIMESTAMPTZ NOT NULL,
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    mission_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    assigned_to TEXT NOT NULL DEFAULT '',
    dependencies JSONB,
    priority TEXT NOT NULL DEFAULT 'medium',
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 3,
    retry_history JSONB,
    auditor_review_id TEXT NOT NULL DEFAULT '',
    continuation_task_id TEXT NOT NULL DEFAULT '',
    input JSONB,
    output JSONB,
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_tasks_mission ON tasks(mission_id);
CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(assigned_to);

CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    capabilities JSONB,
    status TEXT NOT NULL DEFAULT 'idle',
    current_mission_id TEXT NOT NULL DEFAULT '',
    runtime_id TEXT NOT NULL DEFAULT '',
    is_reusable BOOLEAN NOT NULL DEFAULT TRUE,
    mission_history JSONB,
    total_missions_completed INTEGER NOT NULL DEFAULT 0,
    tasks_completed INTEGER NOT NULL DEFAULT 0,
    tasks_failed INTEGER NOT NULL DEFAULT 0,
    success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_duration_ns BIGINT NOT NULL DEFAULT 0,
    average_duration_ns BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL
);
`

const pgTaskOrderByPriority = `
ORDER BY CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC,
         created_at ASC, id ASC`

// NewPostgresBundle creates a Bundle backed by PostgreSQL at the given DSN
func NewPostgresBundle(ctx context.Context, dsn string) (*Bundle, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Missions: &PostgresMissionStore{pool: pool},
		Tasks:    &PostgresTaskStore{pool: pool},
		Agents:   &PostgresAgentStore{pool: pool},
		closer: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

// =============================================================================
// PostgresMissionStore
// =============================================================================

type PostgresMissionStore struct {
	pool *pgxpool.Pool
}

const pgMissionColumns = `id, title, description, objective, status, squad_lead_id, task_ids,
	orchestration_log, awaiting_human_task_id, auto_orchestrate, stats, created_at, started_at, completed_at`

func (s *PostgresMissionStore) Get(id string) (*model.Mission, error) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT `+pgMissionColumns+` FROM missions WHERE id = $1`, id)
	m, err := pgScanMission(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("mission %s: %w", id, model.ErrNotFound)
	}
	return m, err
}

func (s *PostgresMissionStore) Save(m *model.Mission) error {
	prepareMission(m)
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO missions
		(id, title, description, objective, status, squad_lead_id, task_ids, orchestration_log,
		 awaiting_human_task_id, auto_orchestrate, stats, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
		 title = EXCLUDED.title, description = EXCLUDED.description, objective = EXCLUDED.objective,
		 status = EXCLUDED.status, squad_lead_id = EXCLUDED.squad_lead_id, task_ids = EXCLUDED.task_ids,
		 orchestration_log = EXCLUDED.orchestration_log,
		 awaiting_human_task_id = EXCLUDED.awaiting_human_task_id,
		 auto_orchestrate = EXCLUDED.auto_orchestrate, stats = EXCLUDED.stats,
		 started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at`,
		m.ID, m.Title, m.Description, m.Objective, string(m.Status), m.SquadLeadID,
		marshalJSON(m.TaskIDs), marshalJSON(m.OrchestrationLog),
		m.AwaitingHumanTaskID, m.AutoOrchestrate, marshalJSON(m.Stats),
		m.CreatedAt, m.StartedAt, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save mission: %w", err)
	}
	return nil
}

func (s *PostgresMissionStore) Delete(id string) error {
	_, err := s.pool.Exec(context.Background(), `DELETE FROM missions WHERE id = $1`, id)
	return err
}

func (s *PostgresMissionStore) List(limit, offset int) ([]*model.Mission, int, error) {
	ctx := context.Background()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM missions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = total
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgMissionColumns+` FROM missions ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var missions []*model.Mission
	for rows.Next() {
		m, err := pgScanMission(rows)
		if err != nil {
			return nil, 0, err
		}
		missions = append(missions, m)
	}
	return missions, total, rows.Err()
}

func pgScanMission(row pgx.Row) (*model.Mission, error) {
	var m model.Mission
	var status string
	var taskIDs, logJSON, stats []byte

	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Objective, &status, &m.SquadLeadID,
		&taskIDs, &logJSON, &m.AwaitingHumanTaskID, &m.AutoOrchestrate, &stats,
		&m.CreatedAt, &m.StartedAt, &m.CompletedAt)
	if err != nil {
		return nil, err
	}

	m.Status = model.MissionStatus(status)
	pgUnmarshal(taskIDs, &m.TaskIDs)
	pgUnmarshal(logJSON, &m.OrchestrationLog)
	if len(stats) > 0 && string(stats) != "null" {
		m.Stats = &model.MissionStats{}
		pgUnmarshal(stats, m.Stats)
	}
	return &m, nil
}

// =============================================================================
// PostgresTaskStore
// =============================================================================

type PostgresTaskStore struct {
	pool *pgxpool.Pool
}

const pgTaskColumns = `id, mission_id, title, description, type, status, assigned_to, dependencies,
	priority, retry_count, max_retries, retry_history, auditor_review_id, continuation_task_id,
	input, output, error, created_at, started_at, completed_at`

func (s *PostgresTaskStore) Get(id string) (*model.Task, error) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT `+pgTaskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := pgScanTask(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	return t, err
}

func (s *PostgresTaskStore) Save(t *model.Task) error {
	prepareTask(t)
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO tasks
		(id, mission_id, title, description, type, status, assigned_to, dependencies,
		 priority, retry_count, max_retries, retry_history, auditor_review_id, continuation_task_id,
		 input, output, error, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
		 mission_id = EXCLUDED.mission_id, title = EXCLUDED.title, description = EXCLUDED.description,
		 type = EXCLUDED.type, status = EXCLUDED.status, assigned_to = EXCLUDED.assigned_to,
		 dependencies = EXCLUDED.dependencies, priority = EXCLUDED.priority,
		 retry_count = EXCLUDED.retry_count, max_retries = EXCLUDED.max_retries,
		 retry_history = EXCLUDED.retry_history, auditor_review_id = EXCLUDED.auditor_review_id,
		 continuation_task_id = EXCLUDED.continuation_task_id, input = EXCLUDED.input,
		 output = EXCLUDED.output, error = EXCLUDED.error,
		 started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at`,
		t.ID, t.MissionID, t.Title, t.Description, string(t.Type), string(t.Status), t.AssignedTo,
		marshalJSON(t.Dependencies), string(t.Priority), t.RetryCount, t.MaxRetries,
		marshalJSON(t.RetryHistory), t.AuditorReviewID, t.ContinuationTaskID,
		marshalJSON(t.Input), marshalJSON(t.Output), t.Error,
		t.CreatedAt, t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *PostgresTaskStore) Delete(id string) error {
	_, err := s.pool.Exec(context.Background(), `DELETE FROM tasks WHERE id = $1`, id)
	return err
}

func (s *PostgresTaskStore) ListByMission(missionID string) ([]*model.Task, error) {
	return s.queryTasks(
		`SELECT `+pgTaskColumns+` FROM tasks WHERE mission_id = $1 ORDER BY created_at ASC, id ASC`,
		missionID)
}

func (s *PostgresTaskStore) ListByAgent(agentID string, statuses ...model.TaskStatus) ([]*model.Task, error) {
	if len(statuses) == 0 {
		return s.queryTasks(
			`SELECT `+pgTaskColumns+` FROM tasks WHERE assigned_to = $1 ORDER BY created_at ASC, id ASC`,
			agentID)
	}
	states := make([]string, len(statuses))
	for i, st := range statuses {
		states[i] = string(st)
	}
	return s.queryTasks(
		`SELECT `+pgTaskColumns+` FROM tasks WHERE assigned_to = $1 AND status = ANY($2) ORDER BY created_at ASC, id ASC`,
		agentID, states)
}

func (s *PostgresTaskStore) ListPendingByPriority(missionID string) ([]*model.Task, error) {
	return s.queryTasks(
		`SELECT `+pgTaskColumns+` FROM tasks WHERE mission_id = $1 AND status = 'pending'`+pgTaskOrderByPriority,
		missionID)
}

func (s *PostgresTaskStore) queryTasks(query string, args ...any) ([]*model.Task, error) {
	rows, err := s.pool.Query(context.Background(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := pgScanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func pgScanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var taskType, status, priority string
	var deps, history, input, output []byte

	err := row.Scan(&t.ID, &t.MissionID, &t.Title, &t.Description, &taskType, &status, &t.AssignedTo,
		&deps, &priority, &t.RetryCount, &t.MaxRetries, &history, &t.AuditorReviewID,
		&t.ContinuationTaskID, &input, &output, &t.Error, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}

	t.Type = model.TaskType(taskType)
	t.Status = model.TaskStatus(status)
	t.Priority = model.Priority(priority)
	pgUnmarshal(deps, &t.Dependencies)
	pgUnmarshal(history, &t.RetryHistory)
	pgUnmarshal(input, &t.Input)
	pgUnmarshal(output, &t.Output)
	return &t, nil
}

// =============================================================================
// PostgresAgentStore
// =============================================================================

type PostgresAgentStore struct {
	pool *pgxpool.Pool
}

const pgAgentColumns = `id, name, role, capabilities, status, current_mission_id, runtime_id,
	is_reusable, mission_history, total_missions_completed, tasks_completed, tasks_failed,
	success_rate, total_duration_ns, average_duration_ns, created_at`

func (s *PostgresAgentStore) Get(id string) (*model.Agent, error) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT `+pgAgentColumns+` FROM agents WHERE id = $1`, id)
	a, err := pgScanAgent(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", id, model.ErrNotFound)
	}
	return a, err
}

func (s *PostgresAgentStore) Save(a *model.Agent) error {
	prepareAgent(a)
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO agents
		(id, name, role, capabilities, status, current_mission_id, runtime_id,
		 is_reusable, mission_history, total_missions_completed, tasks_completed, tasks_failed,
		 success_rate, total_duration_ns, average_duration_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
		 name = EXCLUDED.name, role = EXCLUDED.role, capabilities = EXCLUDED.capabilities,
		 status = EXCLUDED.status, current_mission_id = EXCLUDED.current_mission_id,
		 runtime_id = EXCLUDED.runtime_id, is_reusable = EXCLUDED.is_reusable,
		 mission_history = EXCLUDED.mission_history,
		 total_missions_completed = EXCLUDED.total_missions_completed,
		 tasks_completed = EXCLUDED.tasks_completed, tasks_failed = EXCLUDED.tasks_failed,
		 success_rate = EXCLUDED.success_rate, total_duration_ns = EXCLUDED.total_duration_ns,
		 average_duration_ns = EXCLUDED.average_duration_ns`,
		a.ID, a.Name, a.Role, marshalJSON(a.Capabilities), string(a.Status),
		a.CurrentMissionID, a.RuntimeID, a.IsReusable,
		marshalJSON(a.MissionHistory), a.TotalMissionsCompleted, a.TasksCompleted, a.TasksFailed,
		a.SuccessRate, int64(a.TotalDuration), int64(a.AverageDuration), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (s *PostgresAgentStore) Delete(id string) error {
	_, err := s.pool.Exec(context.Background(), `DELETE FROM agents WHERE id = $1`, id)
	return err
}

func (s *PostgresAgentStore) List() ([]*model.Agent, error) {
	return s.queryAgents(`SELECT ` + pgAgentColumns + ` FROM agents ORDER BY created_at ASC, id ASC`)
}

func (s *PostgresAgentStore) ListByStatus(statuses ...model.AgentStatus) ([]*model.Agent, error) {
	if len(statuses) == 0 {
		return s.List()
	}
	states := make([]string, len(statuses))
	for i, st := range statuses {
		states[i] = string(st)
	}
	return s.queryAgents(
		`SELECT `+pgAgentColumns+` FROM agents WHERE status = ANY($1) ORDER BY created_at ASC, id ASC`,
		states)
}

func (s *PostgresAgentStore) queryAgents(query string, args ...any) ([]*model.Agent, error) {
	rows, err := s.pool.Query(context.Background(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*model.Agent
	for rows.Next() {
		a, err := pgScanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func pgScanAgent(row pgx.Row) (*model.Agent, error) {
	var a model.Agent
	var status string
	var caps, history []byte
	var totalNS, avgNS int64

	err := row.Scan(&a.ID, &a.Name, &a.Role, &caps, &status, &a.CurrentMissionID, &a.RuntimeID,
		&a.IsReusable, &history, &a.TotalMissionsCompleted, &a.TasksCompleted, &a.TasksFailed,
		&a.SuccessRate, &totalNS, &avgNS, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.Status = model.AgentStatus(status)
	pgUnmarshal(caps, &a.Capabilities)
	pgUnmarshal(history, &a.MissionHistory)
	a.TotalDuration = time.Duration(totalNS)
	a.AverageDuration = time.Duration(avgNS)
	return &a, nil
}

func pgUnmarshal(b []byte, dest any) {
	if len(b) == 0 {
		return
	}
	json.Unmarshal(b, dest)
}
