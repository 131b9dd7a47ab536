package persistence

import (
	"database/sql"
	"errors"
	"time"

	"github.com/petrijr/flowcanvas/pkg/api"
)

// SQLiteStore implements WorkflowStore and ExecutionStore on top of SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var _ WorkflowStore = (*SQLiteStore)(nil)

var _ ExecutionStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			steps BLOB,
			connections BLOB,
			parameters BLOB,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			duration_ns INTEGER NOT NULL,
			error TEXT,
			input BLOB
		);
		CREATE TABLE IF NOT EXISTS execution_logs (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			step_name TEXT NOT NULL,
			step_type TEXT NOT NULL,
			input BLOB,
			output BLOB,
			duration_ms INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_execution_logs_execution
			ON execution_logs (execution_id, timestamp);`,
	)
	return err
}

func (s *SQLiteStore) SaveWorkflow(def api.WorkflowDefinition) error {
	steps, connections, parameters, err := encodeDefinition(def)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO workflows (id, name, description, steps, connections, parameters, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID,
		def.Name,
		def.Description,
		steps,
		connections,
		parameters,
		def.Version,
		def.CreatedAt.UnixNano(),
		def.UpdatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) UpdateWorkflow(def api.WorkflowDefinition) error {
	steps, connections, parameters, err := encodeDefinition(def)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE workflows
		SET name = ?, description = ?, steps = ?, connections = ?, parameters = ?, version = ?, updated_at = ?
		WHERE id = ?`,
		def.Name,
		def.Description,
		steps,
		connections,
		parameters,
		def.Version,
		def.UpdatedAt.UnixNano(),
		def.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrWorkflowNotFound
	}
	return nil
}

func (s *SQLiteStore) GetWorkflow(id string) (api.WorkflowDefinition, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, steps, connections, parameters, version, created_at, updated_at
		FROM workflows
		WHERE id = ?`,
		id,
	)

	def, err := scanWorkflow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.WorkflowDefinition{}, api.ErrWorkflowNotFound
		}
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

func (s *SQLiteStore) ListWorkflows() ([]api.WorkflowDefinition, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, steps, connections, parameters, version, created_at, updated_at
		FROM workflows
		ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []api.WorkflowDefinition
	for rows.Next() {
		def, err := scanWorkflow(rows.Scan)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}

func (s *SQLiteStore) SaveExecution(exec *api.WorkflowExecution) error {
	input, err := EncodeJSON(exec.InputData)
	if err != nil {
		return err
	}

	var completedAt sql.NullInt64
	if exec.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: exec.CompletedAt.UnixNano(), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO executions (id, workflow_id, status, started_at, completed_at, duration_ns, error, input)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID,
		exec.WorkflowID,
		string(exec.Status),
		exec.StartedAt.UnixNano(),
		completedAt,
		int64(exec.Duration),
		exec.ErrorMessage,
		input,
	)
	return err
}

func (s *SQLiteStore) UpdateExecution(exec *api.WorkflowExecution) error {
	input, err := EncodeJSON(exec.InputData)
	if err != nil {
		return err
	}

	var completedAt sql.NullInt64
	if exec.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: exec.CompletedAt.UnixNano(), Valid: true}
	}

	res, err := s.db.Exec(`
		UPDATE executions
		SET workflow_id = ?, status = ?, started_at = ?, completed_at = ?, duration_ns = ?, error = ?, input = ?
		WHERE id = ?`,
		exec.WorkflowID,
		string(exec.Status),
		exec.StartedAt.UnixNano(),
		completedAt,
		int64(exec.Duration),
		exec.ErrorMessage,
		input,
		exec.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrExecutionNotFound
	}
	return nil
}

func (s *SQLiteStore) GetExecution(id string) (*api.WorkflowExecution, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow_id, status, started_at, completed_at, duration_ns, error, input
		FROM executions
		WHERE id = ?`,
		id,
	)

	var exec api.WorkflowExecution
	var statusStr string
	var startedAt, durationNS int64
	var completedAt sql.NullInt64
	var errStr sql.NullString
	var input []byte

	if err := row.Scan(&exec.ID, &exec.WorkflowID, &statusStr, &startedAt, &completedAt, &durationNS, &errStr, &input); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrExecutionNotFound
		}
		return nil, err
	}

	exec.Status = api.Status(statusStr)
	exec.StartedAt = time.Unix(0, startedAt)
	exec.Duration = time.Duration(durationNS)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		exec.CompletedAt = &t
	}
	if errStr.Valid {
		exec.ErrorMessage = errStr.String
	}

	inputData, err := DecodeJSON[map[string]any](input)
	if err != nil {
		return nil, err
	}
	exec.InputData = inputData

	return &exec, nil
}

func (s *SQLiteStore) AppendLog(executionID string, entry api.ExecutionLogEntry) error {
	input, err := EncodeJSON(entry.InputData)
	if err != nil {
		return err
	}
	output, err := EncodeJSON(entry.OutputData)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO execution_logs (id, execution_id, step_name, step_type, input, output, duration_ms, timestamp, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		executionID,
		entry.StepName,
		string(entry.StepType),
		input,
		output,
		entry.DurationMS,
		entry.Timestamp.UnixNano(),
		entry.ErrorMessage,
	)
	return err
}

func (s *SQLiteStore) GetLogs(executionID string) ([]api.ExecutionLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, step_name, step_type, input, output, duration_ms, timestamp, error
		FROM execution_logs
		WHERE execution_id = ?
		ORDER BY timestamp`,
		executionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []api.ExecutionLogEntry
	for rows.Next() {
		var entry api.ExecutionLogEntry
		var stepTypeStr string
		var input, output []byte
		var timestamp int64
		var errStr sql.NullString

		if err := rows.Scan(&entry.ID, &entry.StepName, &stepTypeStr, &input, &output, &entry.DurationMS, &timestamp, &errStr); err != nil {
			return nil, err
		}

		entry.StepType = api.StepType(stepTypeStr)
		entry.Timestamp = time.Unix(0, timestamp)
		if errStr.Valid {
			entry.ErrorMessage = errStr.String
		}

		entry.InputData, err = DecodeJSON[map[string]any](input)
		if err != nil {
			return nil, err
		}
		entry.OutputData, err = DecodeJSON[map[string]any](output)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func encodeDefinition(def api.WorkflowDefinition) (steps, connections, parameters []byte, err error) {
	if steps, err = EncodeJSON(def.Steps); err != nil {
		return nil, nil, nil, err
	}
	if connections, err = EncodeJSON(def.Connections); err != nil {
		return nil, nil, nil, err
	}
	if parameters, err = EncodeJSON(def.Parameters); err != nil {
		return nil, nil, nil, err
	}
	return steps, connections, parameters, nil
}

func scanWorkflow(scan func(dest ...any) error) (api.WorkflowDefinition, error) {
	var def api.WorkflowDefinition
	var steps, connections, parameters []byte
	var createdAt, updatedAt int64
	var description sql.NullString

	if err := scan(&def.ID, &def.Name, &description, &steps, &connections, &parameters, &def.Version, &createdAt, &updatedAt); err != nil {
		return api.WorkflowDefinition{}, err
	}

	if description.Valid {
		def.Description = description.String
	}
	def.CreatedAt = time.Unix(0, createdAt)
	def.UpdatedAt = time.Unix(0, updatedAt)

	var err error
	if def.Steps, err = DecodeJSON[[]api.WorkflowStep](steps); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Connections, err = DecodeJSON[[]api.Connection](connections); err != nil {
		return api.WorkflowDefinition{}, err
	}
	if def.Parameters, err = DecodeJSON[map[string]any](parameters); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}
