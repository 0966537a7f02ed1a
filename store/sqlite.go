package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"taskforce/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS missions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    objective TEXT,
    status TEXT NOT NULL DEFAULT 'draft',
    squad_lead_id TEXT,
    task_ids_json TEXT,
    log_json TEXT,
    awaiting_human_task_id TEXT,
    auto_orchestrate INTEGER DEFAULT 0,
    stats_json TEXT,
    created_at DATETIME NOT NULL,
    started_at DATETIME,
    completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    mission_id TEXT NOT NULL REFERENCES missions(id),
    title TEXT NOT NULL,
    description TEXT,
    type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    assigned_to TEXT,
    dependencies_json TEXT,
    priority TEXT NOT NULL DEFAULT 'medium',
    retry_count INTEGER DEFAULT 0,
    max_retries INTEGER DEFAULT 3,
    retry_history_json TEXT,
    auditor_review_id TEXT,
    continuation_task_id TEXT,
    input_json TEXT,
    output_json TEXT,
    error TEXT,
    created_at DATETIME NOT NULL,
    started_at DATETIME,
    completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_mission ON tasks(mission_id);
CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(assigned_to);

CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    capabilities_json TEXT,
    status TEXT NOT NULL DEFAULT 'idle',
    current_mission_id TEXT,
    runtime_id TEXT,
    is_reusable INTEGER DEFAULT 1,
    mission_history_json TEXT,
    total_missions_completed INTEGER DEFAULT 0,
    tasks_completed INTEGER DEFAULT 0,
    tasks_failed INTEGER DEFAULT 0,
    success_rate REAL DEFAULT 0,
    total_duration_ns INTEGER DEFAULT 0,
    average_duration_ns INTEGER DEFAULT 0,
    created_at DATETIME NOT NULL
);
`

// taskOrderByPriority is the ordering key for "next executable task"
// queries: priority descending, then creation time ascending.
const taskOrderByPriority = `
ORDER BY CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC,
         created_at ASC, id ASC`

// NewSQLiteBundle creates a Bundle backed by SQLite at the given path
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Missions: &SQLiteMissionStore{db: db},
		Tasks:    &SQLiteTaskStore{db: db},
		Agents:   &SQLiteAgentStore{db: db},
		closer:   db.Close,
	}, nil
}

// =============================================================================
// SQLiteMissionStore
// =============================================================================

type SQLiteMissionStore struct {
	db *sql.DB
}

func (s *SQLiteMissionStore) Get(id string) (*model.Mission, error) {
	row := s.db.QueryRow(
		`SELECT `+missionColumns+` FROM missions WHERE id = ?`, id,
	)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mission %s: %w", id, model.ErrNotFound)
	}
	return m, err
}

func (s *SQLiteMissionStore) Save(m *model.Mission) error {
	prepareMission(m)
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO missions
		(id, title, description, objective, status, squad_lead_id, task_ids_json, log_json,
		 awaiting_human_task_id, auto_orchestrate, stats_json, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, m.Description, m.Objective, string(m.Status), m.SquadLeadID,
		marshalJSON(m.TaskIDs), marshalJSON(m.OrchestrationLog),
		m.AwaitingHumanTaskID, boolToInt(m.AutoOrchestrate), marshalJSON(m.Stats),
		m.CreatedAt, m.StartedAt, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save mission: %w", err)
	}
	return nil
}

func (s *SQLiteMissionStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM missions WHERE id = ?`, id)
	return err
}

func (s *SQLiteMissionStore) List(limit, offset int) ([]*model.Mission, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM missions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT `+missionColumns+` FROM missions ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var missions []*model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, 0, err
		}
		missions = append(missions, m)
	}
	return missions, total, rows.Err()
}

const missionColumns = `id, title, description, objective, status, squad_lead_id, task_ids_json, log_json,
	awaiting_human_task_id, auto_orchestrate, stats_json, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (*model.Mission, error) {
	var m model.Mission
	var description, objective, squadLead, taskIDs, logJSON, awaiting, stats sql.NullString
	var auto int
	var startedAt, completedAt sql.NullTime
	var status string

	err := row.Scan(&m.ID, &m.Title, &description, &objective, &status, &squadLead,
		&taskIDs, &logJSON, &awaiting, &auto, &stats, &m.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	m.Description = description.String
	m.Objective = objective.String
	m.Status = model.MissionStatus(status)
	m.SquadLeadID = squadLead.String
	m.AwaitingHumanTaskID = awaiting.String
	m.AutoOrchestrate = auto != 0
	unmarshalJSON(taskIDs, &m.TaskIDs)
	unmarshalJSON(logJSON, &m.OrchestrationLog)
	if stats.Valid && stats.String != "" && stats.String != "null" {
		m.Stats = &model.MissionStats{}
		unmarshalJSON(stats, m.Stats)
	}
	m.StartedAt = nullTimePtr(startedAt)
	m.CompletedAt = nullTimePtr(completedAt)
	return &m, nil
}

// =============================================================================
// SQLiteTaskStore
// =============================================================================

type SQLiteTaskStore struct {
	db *sql.DB
}

const taskColumns = `id, mission_id, title, description, type, status, assigned_to, dependencies_json,
	priority, retry_count, max_retries, retry_history_json, auditor_review_id, continuation_task_id,
	input_json, output_json, error, created_at, started_at, completed_at`

func (s *SQLiteTaskStore) Get(id string) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	return t, err
}

func (s *SQLiteTaskStore) Save(t *model.Task) error {
	prepareTask(t)
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO tasks
		(id, mission_id, title, description, type, status, assigned_to, dependencies_json,
		 priority, retry_count, max_retries, retry_history_json, auditor_review_id, continuation_task_id,
		 input_json, output_json, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteTaskStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	return err
}

func (s *SQLiteTaskStore) ListByMission(missionID string) ([]*model.Task, error) {
	return s.queryTasks(
		`SELECT `+taskColumns+` FROM tasks WHERE mission_id = ? ORDER BY created_at ASC, id ASC`,
		missionID,
	)
}

func (s *SQLiteTaskStore) ListByAgent(agentID string, statuses ...model.TaskStatus) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE assigned_to = ?`
	args := []any{agentID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return s.queryTasks(query, args...)
}

func (s *SQLiteTaskStore) ListPendingByPriority(missionID string) ([]*model.Task, error) {
	return s.queryTasks(
		`SELECT `+taskColumns+` FROM tasks WHERE mission_id = ? AND status = 'pending'`+taskOrderByPriority,
		missionID,
	)
}

func (s *SQLiteTaskStore) queryTasks(query string, args ...any) ([]*model.Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var description, assignedTo, deps, history, auditor, continuation sql.NullString
	var input, output, errMsg sql.NullString
	var taskType, status, priority string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&t.ID, &t.MissionID, &t.Title, &description, &taskType, &status, &assignedTo,
		&deps, &priority, &t.RetryCount, &t.MaxRetries, &history, &auditor, &continuation,
		&input, &output, &errMsg, &t.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Type = model.TaskType(taskType)
	t.Status = model.TaskStatus(status)
	t.AssignedTo = assignedTo.String
	t.Priority = model.Priority(priority)
	t.AuditorReviewID = auditor.String
	t.ContinuationTaskID = continuation.String
	t.Error = errMsg.String
	unmarshalJSON(deps, &t.Dependencies)
	unmarshalJSON(history, &t.RetryHistory)
	unmarshalJSON(input, &t.Input)
	unmarshalJSON(output, &t.Output)
	t.StartedAt = nullTimePtr(startedAt)
	t.CompletedAt = nullTimePtr(completedAt)
	return &t, nil
}

// =============================================================================
// SQLiteAgentStore
// =============================================================================

type SQLiteAgentStore struct {
	db *sql.DB
}

const agentColumns = `id, name, role, capabilities_json, status, current_mission_id, runtime_id,
	is_reusable, mission_history_json, total_missions_completed, tasks_completed, tasks_failed,
	success_rate, total_duration_ns, average_duration_ns, created_at`

func (s *SQLiteAgentStore) Get(id string) (*model.Agent, error) {
	row := s.db.QueryRow(`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", id, model.ErrNotFound)
	}
	return a, err
}

func (s *SQLiteAgentStore) Save(a *model.Agent) error {
	prepareAgent(a)
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO agents
		(id, name, role, capabilities_json, status, current_mission_id, runtime_id,
		 is_reusable, mission_history_json, total_missions_completed, tasks_completed, tasks_failed,
		 success_rate, total_duration_ns, average_duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Role, marshalJSON(a.Capabilities), string(a.Status),
		a.CurrentMissionID, a.RuntimeID, boolToInt(a.IsReusable),
		marshalJSON(a.MissionHistory), a.TotalMissionsCompleted, a.TasksCompleted, a.TasksFailed,
		a.SuccessRate, int64(a.TotalDuration), int64(a.AverageDuration), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (s *SQLiteAgentStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
	return err
}

func (s *SQLiteAgentStore) List() ([]*model.Agent, error) {
	return s.queryAgents(`SELECT ` + agentColumns + ` FROM agents ORDER BY created_at ASC, id ASC`)
}

func (s *SQLiteAgentStore) ListByStatus(statuses ...model.AgentStatus) ([]*model.Agent, error) {
	if len(statuses) == 0 {
		return s.List()
	}
	query := `SELECT ` + agentColumns + ` FROM agents WHERE status IN (` + placeholders(len(statuses)) + `) ORDER BY created_at ASC, id ASC`
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return s.queryAgents(query, args...)
}

func (s *SQLiteAgentStore) queryAgents(query string, args ...any) ([]*model.Agent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	var a model.Agent
	var caps, missionID, runtimeID, history sql.NullString
	var status string
	var reusable int
	var totalNS, avgNS int64

	err := row.Scan(&a.ID, &a.Name, &a.Role, &caps, &status, &missionID, &runtimeID,
		&reusable, &history, &a.TotalMissionsCompleted, &a.TasksCompleted, &a.TasksFailed,
		&a.SuccessRate, &totalNS, &avgNS, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.Status = model.AgentStatus(status)
	a.CurrentMissionID = missionID.String
	a.RuntimeID = runtimeID.String
	a.IsReusable = reusable != 0
	unmarshalJSON(caps, &a.Capabilities)
	unmarshalJSON(history, &a.MissionHistory)
	a.TotalDuration = time.Duration(totalNS)
	a.AverageDuration = time.Duration(avgNS)
	return &a, nil
}

// =============================================================================
// Helpers
// =============================================================================

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalJSON(s sql.NullString, dest any) {
	if !s.Valid || s.String == "" {
		return
	}
	json.Unmarshal([]byte(s.String), dest)
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
