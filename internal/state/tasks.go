package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relay-dev/relay/pkg/models"
)

// ErrTaskNotFound is returned when no task exists for the given id.
var ErrTaskNotFound = errors.New("task not found")

// ErrTaskExists is returned when creating a task whose id is taken.
var ErrTaskExists = errors.New("task already exists")

// Store is the durable record of task lifecycles. Each task has a
// single writer: the orchestration loop holding it. DB satisfies Store.
type Store interface {
	// CreateTask persists a new task; fails on id collision.
	CreateTask(task *models.Task) error
	// UpdateTask overwrites the persisted record for the task's id.
	UpdateTask(task *models.Task) error
	// GetTask returns the current record or ErrTaskNotFound.
	GetTask(id string) (*models.Task, error)
	// ListTasks returns tasks, optionally filtered by status.
	ListTasks(status *models.TaskStatus) ([]*models.Task, error)
}

// Verify DB implements Store at compile time.
var _ Store = (*DB)(nil)

// CreateTask inserts a new task record. An id collision fails with
// ErrTaskExists.
func (db *DB) CreateTask(task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var exists int
	row := db.conn.QueryRow("SELECT COUNT(1) FROM tasks WHERE id = ?", task.ID)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("check task collision: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("create task %s: %w", task.ID, ErrTaskExists)
	}

	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	return db.transact(func(tx *sql.Tx) error {
		if err := insertTask(tx, task); err != nil {
			return err
		}
		return insertSteps(tx, task)
	})
}

// UpdateTask overwrites the persisted record for the task's id.
// The caller is the task's single writer; no cross-writer locking is
// needed per id.
func (db *DB) UpdateTask(task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	task.UpdatedAt = time.Now()

	return db.transact(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks
			SET description = ?, project = ?, status = ?, branch = ?, cost = ?,
			    pub_url = ?, pub_id = ?, fail_reason = ?, updated_at = ?
			WHERE id = ?
		`, task.Description, task.Project, string(task.Status), task.Branch, task.Cost,
			pubURL(task), pubID(task), nullString(task.FailReason), formatTime(task.UpdatedAt), task.ID)
		if err != nil {
			return fmt.Errorf("update task %s: %w", task.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update task %s: %w", task.ID, err)
		}
		if affected == 0 {
			return fmt.Errorf("update task %s: %w", task.ID, ErrTaskNotFound)
		}

		// Step history is append-only; rewriting the rows in order keeps
		// the stored history identical to the in-memory one.
		if _, err := tx.Exec("DELETE FROM steps WHERE task_id = ?", task.ID); err != nil {
			return fmt.Errorf("clear steps for task %s: %w", task.ID, err)
		}
		return insertSteps(tx, task)
	})
}

// GetTask returns the current record or ErrTaskNotFound.
func (db *DB) GetTask(id string) (*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, description, project, status, branch, cost,
		       pub_url, pub_id, fail_reason, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get task %s: %w", id, ErrTaskNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	if err := db.loadSteps(task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns tasks ordered by creation time, optionally filtered
// by status. Step histories are loaded for each task.
func (db *DB) ListTasks(status *models.TaskStatus) ([]*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := `
		SELECT id, description, project, status, branch, cost,
		       pub_url, pub_id, fail_reason, created_at, updated_at
		FROM tasks
	`
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	for _, task := range tasks {
		if err := db.loadSteps(task); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var task models.Task
	var status, createdAt, updatedAt string
	var pubURL, failReason sql.NullString
	var pubID sql.NullInt64

	err := s.Scan(&task.ID, &task.Description, &task.Project, &status, &task.Branch,
		&task.Cost, &pubURL, &pubID, &failReason, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	task.Status = models.TaskStatus(status)
	if pubURL.Valid && pubURL.String != "" {
		task.Publication = &models.PublicationRef{URL: pubURL.String, ID: int(pubID.Int64)}
	}
	if failReason.Valid {
		task.FailReason = failReason.String
	}
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &task, nil
}

func (db *DB) loadSteps(task *models.Task) error {
	rows, err := db.conn.Query(`
		SELECT role, attempt, outcome, output, directive, error, started_at, ended_at
		FROM steps WHERE task_id = ? ORDER BY seq
	`, task.ID)
	if err != nil {
		return fmt.Errorf("load steps for task %s: %w", task.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.StepRecord
		var role, outcome, startedAt, endedAt string
		var output, directive, stepErr sql.NullString

		if err := rows.Scan(&role, &rec.Attempt, &outcome, &output, &directive, &stepErr, &startedAt, &endedAt); err != nil {
			return fmt.Errorf("scan step for task %s: %w", task.ID, err)
		}
		rec.Role = models.Role(role)
		rec.Outcome = models.StepOutcome(outcome)
		rec.Output = output.String
		rec.Directive = directive.String
		rec.Error = stepErr.String
		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return fmt.Errorf("parse step started_at: %w", err)
		}
		if rec.EndedAt, err = parseTime(endedAt); err != nil {
			return fmt.Errorf("parse step ended_at: %w", err)
		}
		task.Steps = append(task.Steps, rec)
	}
	return rows.Err()
}

func insertTask(tx *sql.Tx, task *models.Task) error {
	_, err := tx.Exec(`
		INSERT INTO tasks (id, description, project, status, branch, cost,
		                   pub_url, pub_id, fail_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Description, task.Project, string(task.Status), task.Branch, task.Cost,
		pubURL(task), pubID(task), nullString(task.FailReason),
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

func insertSteps(tx *sql.Tx, task *models.Task) error {
	for i, rec := range task.Steps {
		_, err := tx.Exec(`
			INSERT INTO steps (task_id, seq, role, attempt, outcome, output, directive, error, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, i, string(rec.Role), rec.Attempt, string(rec.Outcome),
			nullString(rec.Output), nullString(rec.Directive), nullString(rec.Error),
			formatTime(rec.StartedAt), formatTime(rec.EndedAt))
		if err != nil {
			return fmt.Errorf("insert step %d for task %s: %w", i, task.ID, err)
		}
	}
	return nil
}

func pubURL(task *models.Task) sql.NullString {
	if task.Publication == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: task.Publication.URL, Valid: true}
}

func pubID(task *models.Task) sql.NullInt64 {
	if task.Publication == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(task.Publication.ID), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
