// Package publish turns a completed task's work branch into a change
// request on the hosting service. Publication is best effort and
// idempotent: re-publishing a task never creates a duplicate.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/relay-dev/relay/internal/git"
	"github.com/relay-dev/relay/internal/state"
	"github.com/relay-dev/relay/pkg/models"
)

// ErrTaskNotCompleted is returned when publication is requested for a
// task that is not in the completed state.
var ErrTaskNotCompleted = errors.New("task is not completed")

// ChangeRequest is the host-agnostic shape of a publication.
type ChangeRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// Host creates change requests on a hosting service.
type Host interface {
	// FindChangeRequest returns the open change request for the head
	// branch, or nil if none exists.
	FindChangeRequest(ctx context.Context, head string) (*models.PublicationRef, error)
	// CreateChangeRequest opens a new change request.
	CreateChangeRequest(ctx context.Context, cr ChangeRequest) (*models.PublicationRef, error)
}

// Publisher pushes work branches and opens change requests.
type Publisher struct {
	git    git.Runner
	host   Host
	store  state.Store
	remote string
	base   string
}

// NewPublisher creates a Publisher pushing to remote and targeting base.
func NewPublisher(g git.Runner, host Host, store state.Store, remote, base string) *Publisher {
	if remote == "" {
		remote = "origin"
	}
	if base == "" {
		base = "main"
	}
	return &Publisher{git: g, host: host, store: store, remote: remote, base: base}
}

// Publish pushes the task's branch and opens a change request, then
// records the reference on the task. Already-published tasks are a
// no-op, and an existing change request for the branch is adopted
// instead of duplicated.
func (p *Publisher) Publish(ctx context.Context, task *models.Task) error {
	if task.Published() {
		log.Printf("[publish] task %s already published at %s", task.ID, task.Publication.URL)
		return nil
	}

	if existing, err := p.host.FindChangeRequest(ctx, task.Branch); err != nil {
		log.Printf("[publish] could not check for existing change request: %v", err)
	} else if existing != nil {
		log.Printf("[publish] adopting existing change request %s for task %s", existing.URL, task.ID)
		return p.record(task, existing)
	}

	if err := p.git.Push(p.remote, task.Branch); err != nil {
		return fmt.Errorf("push branch %s: %w", task.Branch, err)
	}

	ref, err := p.host.CreateChangeRequest(ctx, ChangeRequest{
		Title: title(task),
		Body:  body(task),
		Head:  task.Branch,
		Base:  p.base,
	})
	if err != nil {
		return fmt.Errorf("create change request: %w", err)
	}

	return p.record(task, ref)
}

// Retry re-runs publication for a stored task. It refuses tasks that
// did not complete.
func (p *Publisher) Retry(ctx context.Context, id string) (*models.Task, error) {
	task, err := p.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusCompleted {
		return nil, fmt.Errorf("task %s is %s: %w", id, task.Status, ErrTaskNotCompleted)
	}
	if err := p.Publish(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (p *Publisher) record(task *models.Task, ref *models.PublicationRef) error {
	task.Publication = ref
	if err := p.store.UpdateTask(task); err != nil {
		return fmt.Errorf("record publication: %w", err)
	}
	return nil
}

func title(task *models.Task) string {
	t := strings.TrimSpace(task.Description)
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[:i]
	}
	if len(t) > 72 {
		t = t[:69] + "..."
	}
	return t
}

func body(task *models.Task) string {
	var b strings.Builder
	b.WriteString(task.Description)
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "Task `%s` ran the following steps:\n\n", task.ID)
	for _, step := range task.Steps {
		fmt.Fprintf(&b, "- %s (attempt %d): %s\n", step.Role, step.Attempt, step.Outcome)
	}
	if task.Cost > 0 {
		fmt.Fprintf(&b, "\nReported spend: $%.2f\n", task.Cost)
	}
	return b.String()
}
