// Package pipeline decides which agent runs next. After each step the
// router inspects the output for an embedded routing directive; absent
// one it advances through the fixed default ordering. It also detects
// the terminal conditions: approval, rejection, exhaustion, and the
// convergence ceiling.
package pipeline

import (
	"fmt"
	"log"

	"github.com/relay-dev/relay/pkg/models"
)

// DefaultExtraSteps is how many dynamic re-routes beyond one full pass
// the router tolerates before declaring non-convergence.
const DefaultExtraSteps = 8

// ReasonNoConvergence is the failure reason when the ceiling is hit.
const ReasonNoConvergence = "pipeline did not converge"

// DecisionKind classifies the router's next move.
type DecisionKind int

const (
	// RunStep means the named role should execute next.
	RunStep DecisionKind = iota
	// Completed means the pipeline reached terminal success.
	Completed
	// Rejected means an agent explicitly rejected the work.
	Rejected
	// Exhausted means the step ceiling was exceeded.
	Exhausted
)

// Decision is the router's verdict after inspecting the last output.
type Decision struct {
	Kind DecisionKind
	// Role is the next role to run when Kind is RunStep.
	Role models.Role
	// Directive is the override that selected Role, if any.
	Directive *Directive
	// Reason explains a Rejected or Exhausted decision.
	Reason string
}

// Router tracks pipeline progress for one task. It is not safe for
// concurrent use; a task has a single active pipeline.
type Router struct {
	order     []models.Role
	satisfied map[models.Role]bool
	steps     int
	maxSteps  int
}

// NewRouter creates a router over the given ordering. A nil or empty
// order uses the default. maxSteps <= 0 selects one full pass plus
// DefaultExtraSteps.
func NewRouter(order []models.Role, maxSteps int) *Router {
	if len(order) == 0 {
		order = models.DefaultOrder()
	}
	if maxSteps <= 0 {
		maxSteps = len(order) + DefaultExtraSteps
	}
	return &Router{
		order:     order,
		satisfied: make(map[models.Role]bool),
		maxSteps:  maxSteps,
	}
}

// First returns the decision for the initial step of a fresh pipeline.
func (r *Router) First() Decision {
	return r.advance(nil)
}

// Next records that role produced output and decides what runs after it.
func (r *Router) Next(role models.Role, output string) Decision {
	r.satisfied[role] = true
	r.steps++

	if reason, ok := Rejection(output); ok {
		return Decision{Kind: Rejected, Reason: reason}
	}
	if Approved(output) {
		return Decision{Kind: Completed}
	}

	return r.advance(ExtractDirective(output))
}

// advance picks the next role: a valid directive wins, otherwise the
// first unsatisfied role in the default ordering; no candidates means
// terminal success.
func (r *Router) advance(d *Directive) Decision {
	if r.steps >= r.maxSteps {
		return Decision{
			Kind:   Exhausted,
			Reason: fmt.Sprintf("%s: %d steps exceeded the ceiling of %d", ReasonNoConvergence, r.steps, r.maxSteps),
		}
	}

	if d != nil {
		log.Printf("[pipeline] directive routes to %s (%s)", d.Next, d.Reason)
		return Decision{Kind: RunStep, Role: d.Next, Directive: d}
	}

	for _, role := range r.order {
		if !r.satisfied[role] {
			return Decision{Kind: RunStep, Role: role}
		}
	}
	return Decision{Kind: Completed}
}

// Steps returns how many steps have been recorded.
func (r *Router) Steps() int {
	return r.steps
}
