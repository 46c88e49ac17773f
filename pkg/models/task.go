package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusExecuting indicates the pipeline is running.
	TaskStatusExecuting TaskStatus = "executing"
	// TaskStatusCompleted indicates the pipeline finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the pipeline failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusExecuting, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition is allowed from the status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransition reports whether a status change is allowed.
// Transitions are monotonic: once terminal, a task never moves again.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return false
	}
	return from == TaskStatusExecuting && to.Terminal()
}

// StepOutcome records how a single agent attempt ended.
type StepOutcome string

const (
	// StepOutcomeSuccess indicates the attempt produced usable output.
	StepOutcomeSuccess StepOutcome = "success"
	// StepOutcomeFailure indicates the attempt failed and will not be retried.
	StepOutcomeFailure StepOutcome = "failure"
	// StepOutcomeRetried indicates the attempt failed and a retry followed.
	StepOutcomeRetried StepOutcome = "retried"
)

// StepRecord is one agent attempt in a task's history.
// Records are append-only and immutable once appended.
type StepRecord struct {
	// Role is the pipeline role that executed.
	Role Role `json:"role"`
	// Attempt is the 1-indexed attempt number for this step.
	Attempt int `json:"attempt"`
	// Outcome is how the attempt ended.
	Outcome StepOutcome `json:"outcome"`
	// Output is the raw agent output for this attempt.
	Output string `json:"output,omitempty"`
	// Directive is the routing directive extracted from the output, if any.
	Directive string `json:"directive,omitempty"`
	// Error contains the error message if the attempt failed.
	Error string `json:"error,omitempty"`
	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the attempt finished.
	EndedAt time.Time `json:"ended_at"`
}

// PublicationRef identifies the change request opened for a task.
type PublicationRef struct {
	// URL is the web address of the change request.
	URL string `json:"url"`
	// ID is the host-assigned change request number.
	ID int `json:"id"`
}

// Task represents one automated coding task driven through the pipeline.
// A task is owned by the state store and mutated only by the engine
// holding it; step history is append-only.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the free-text goal of the task.
	Description string `json:"description"`
	// Project is the name of the project the task belongs to.
	Project string `json:"project"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// Branch is the git branch the task's work lands on.
	Branch string `json:"branch"`
	// Cost is the accumulated cost in USD across all steps.
	Cost float64 `json:"cost"`
	// Publication references the change request, once one exists.
	Publication *PublicationRef `json:"publication,omitempty"`
	// FailReason explains a failed status, if set.
	FailReason string `json:"fail_reason,omitempty"`
	// Steps is the ordered history of agent attempts.
	Steps []StepRecord `json:"steps,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last persisted.
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendStep appends a step record to the task history.
func (t *Task) AppendStep(rec StepRecord) {
	t.Steps = append(t.Steps, rec)
}

// LastStep returns the most recent step record, or nil if none exist.
func (t *Task) LastStep() *StepRecord {
	if len(t.Steps) == 0 {
		return nil
	}
	return &t.Steps[len(t.Steps)-1]
}

// Published returns true if a publication reference has been set.
func (t *Task) Published() bool {
	return t.Publication != nil && t.Publication.URL != ""
}
