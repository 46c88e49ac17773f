// Package engine coordinates a full task run: sandbox provisioning, the
// agent pipeline, durable state updates, and best-effort publication.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/relay-dev/relay/internal/agent"
	"github.com/relay-dev/relay/internal/config"
	"github.com/relay-dev/relay/internal/git"
	"github.com/relay-dev/relay/internal/invoke"
	"github.com/relay-dev/relay/internal/pipeline"
	"github.com/relay-dev/relay/internal/sandbox"
	"github.com/relay-dev/relay/internal/state"
	"github.com/relay-dev/relay/pkg/models"
)

// ErrTaskTerminal is returned when an operation needs a live task but
// the task already reached a terminal state.
var ErrTaskTerminal = errors.New("task already in a terminal state")

// Publisher publishes a completed task's work. Publication failures are
// downgraded to warnings by the engine.
type Publisher interface {
	Publish(ctx context.Context, task *models.Task) error
}

// Engine runs tasks end to end.
type Engine struct {
	cfg       *config.Config
	store     state.Store
	provider  sandbox.Provider
	tracker   *sandbox.Tracker
	agents    *agent.Runner
	git       git.Runner
	publisher Publisher
}

// New assembles an engine from its collaborators.
func New(cfg *config.Config, store state.Store, provider sandbox.Provider, tracker *sandbox.Tracker, agents *agent.Runner, g git.Runner, pub Publisher) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		provider:  provider,
		tracker:   tracker,
		agents:    agents,
		git:       g,
		publisher: pub,
	}
}

// Run executes a new task described in plain language against the
// project. The returned task is always persisted in a terminal state;
// the error reports why a failed task failed.
func (e *Engine) Run(ctx context.Context, project, description string) (*models.Task, error) {
	id := uuid.New().String()
	task := &models.Task{
		ID:          id,
		Description: description,
		Project:     project,
		Status:      models.TaskStatusExecuting,
		Branch:      "relay/" + id,
	}
	if err := e.store.CreateTask(task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	handle, err := e.provider.Create(ctx, e.cfg.Sandbox.Image, sandbox.Limits{
		Memory:  e.cfg.Sandbox.Memory,
		CPUs:    e.cfg.Sandbox.CPUs,
		Network: e.cfg.Sandbox.Network,
	})
	if err != nil {
		e.fail(task, fmt.Sprintf("create sandbox: %v", err))
		return task, fmt.Errorf("create sandbox: %w", err)
	}
	handle.TaskID = task.ID
	e.tracker.Register(handle)
	defer e.tracker.Release(context.WithoutCancel(ctx), handle)

	if _, err := e.provider.Execute(ctx, handle, []string{"git", "checkout", "-B", task.Branch}); err != nil {
		e.fail(task, fmt.Sprintf("prepare work branch: %v", err))
		return task, fmt.Errorf("prepare work branch %s: %w", task.Branch, err)
	}

	if err := e.runPipeline(ctx, task, handle); err != nil {
		return task, err
	}

	e.complete(task)
	e.publish(ctx, task)
	return task, nil
}

// runPipeline drives the router until a terminal decision, persisting
// every attempt as it happens.
func (e *Engine) runPipeline(ctx context.Context, task *models.Task, handle *sandbox.Handle) error {
	roles, err := e.cfg.Pipeline.Roles()
	if err != nil {
		e.fail(task, err.Error())
		return err
	}
	router := pipeline.NewRouter(roles, len(roles)+e.cfg.Pipeline.ExtraSteps)
	policy := e.cfg.Retry.Policy()

	decision := router.First()
	for decision.Kind == pipeline.RunStep {
		role := decision.Role
		log.Printf("[engine] task %s: running %s (step %d)", task.ID, role, router.Steps()+1)

		step := e.agents.Step(handle, role, task)
		inv := invoke.New()
		inv.OnAttempt = func(a invoke.Attempt) {
			e.recordAttempt(task, role, a)
		}

		result := inv.Invoke(ctx, step, policy)
		if result.Failed() {
			reason := fmt.Sprintf("%s step %s", role, result.Error())
			e.fail(task, reason)
			return fmt.Errorf("%s step %s", role, result.Error())
		}

		if cost := pipeline.ExtractCost(result.Output); cost > 0 {
			task.Cost += cost
		}

		decision = router.Next(role, result.Output)
		if decision.Directive != nil {
			if last := task.LastStep(); last != nil {
				last.Directive = decision.Directive.String()
			}
		}
	}

	switch decision.Kind {
	case pipeline.Completed:
		return nil
	case pipeline.Rejected:
		e.fail(task, decision.Reason)
		return fmt.Errorf("task rejected: %s", decision.Reason)
	case pipeline.Exhausted:
		e.fail(task, decision.Reason)
		return fmt.Errorf("%s", decision.Reason)
	default:
		e.fail(task, "router returned an unknown decision")
		return fmt.Errorf("unknown router decision %d", decision.Kind)
	}
}

// recordAttempt appends a step record for one attempt and persists it.
func (e *Engine) recordAttempt(task *models.Task, role models.Role, a invoke.Attempt) {
	outcome := models.StepOutcomeSuccess
	errText := ""
	if a.Err != nil {
		errText = a.Err.Error()
		outcome = models.StepOutcomeFailure
		if a.Retried {
			outcome = models.StepOutcomeRetried
		}
	}
	task.AppendStep(models.StepRecord{
		Role:      role,
		Attempt:   a.Number,
		Outcome:   outcome,
		Output:    a.Output,
		Error:     errText,
		StartedAt: a.StartedAt,
		EndedAt:   a.EndedAt,
	})
	if err := e.store.UpdateTask(task); err != nil {
		log.Printf("[engine] persist step for task %s: %v", task.ID, err)
	}
}

// publish pushes the work and opens a change request. Failures never
// change the task's completed status.
func (e *Engine) publish(ctx context.Context, task *models.Task) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, task); err != nil {
		log.Printf("[engine] warning: publication failed for task %s: %v; retry with: relay publish %s", task.ID, err, task.ID)
	}
}

// Reject forces a task into the failed state and discards its work
// branch locally and on the remote.
func (e *Engine) Reject(ctx context.Context, id, reason string) (*models.Task, error) {
	task, err := e.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("task %s is already %s: %w", id, task.Status, ErrTaskTerminal)
	}
	if reason == "" {
		reason = "rejected by operator"
	}

	if h := e.tracker.ActiveForTask(id); h != nil {
		e.tracker.Release(ctx, h)
	}

	if exists, err := e.git.BranchExists(task.Branch); err == nil && exists {
		if err := e.git.DeleteBranch(task.Branch); err != nil {
			log.Printf("[engine] delete branch %s: %v", task.Branch, err)
		}
	}
	if err := e.git.DeleteRemoteBranch(e.cfg.Publish.Remote, task.Branch); err != nil {
		log.Printf("[engine] delete remote branch %s: %v", task.Branch, err)
	}

	task.Status = models.TaskStatusFailed
	task.FailReason = reason
	if err := e.store.UpdateTask(task); err != nil {
		return nil, fmt.Errorf("persist rejection: %w", err)
	}
	return task, nil
}

func (e *Engine) complete(task *models.Task) {
	task.Status = models.TaskStatusCompleted
	if err := e.store.UpdateTask(task); err != nil {
		log.Printf("[engine] persist completion for task %s: %v", task.ID, err)
	}
}

func (e *Engine) fail(task *models.Task, reason string) {
	task.Status = models.TaskStatusFailed
	task.FailReason = reason
	if err := e.store.UpdateTask(task); err != nil {
		log.Printf("[engine] persist failure for task %s: %v", task.ID, err)
	}
}
