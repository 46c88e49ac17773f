package pipeline

import (
	"strings"
	"testing"

	"github.com/relay-dev/relay/pkg/models"
)

func TestRouter_DefaultOrderFullPass(t *testing.T) {
	r := NewRouter(nil, 0)

	var executed []models.Role
	d := r.First()
	for d.Kind == RunStep {
		executed = append(executed, d.Role)
		d = r.Next(d.Role, "plain output, no signals")
	}

	if d.Kind != Completed {
		t.Fatalf("final decision = %v, want Completed", d.Kind)
	}
	want := models.DefaultOrder()
	if len(executed) != len(want) {
		t.Fatalf("executed %d roles, want %d", len(executed), len(want))
	}
	for i, role := range want {
		if executed[i] != role {
			t.Errorf("executed[%d] = %q, want %q", i, executed[i], role)
		}
	}
}

func TestRouter_DirectiveOverridesDefaultOrder(t *testing.T) {
	r := NewRouter(nil, 0)

	d := r.First()
	if d.Role != models.RoleArchitect {
		t.Fatalf("first role = %q, want architect", d.Role)
	}

	// The architect's successor would be coder; the directive overrides it.
	d = r.Next(models.RoleArchitect, `<route next="security" reason="auth code touched"/>`)
	if d.Kind != RunStep {
		t.Fatalf("decision = %v, want RunStep", d.Kind)
	}
	if d.Role != models.RoleSecurity {
		t.Errorf("next role = %q, want security (directive override)", d.Role)
	}
	if d.Directive == nil || d.Directive.Reason != "auth code touched" {
		t.Errorf("Directive = %+v, want reason carried through", d.Directive)
	}
}

func TestRouter_DirectiveCanRevisitSatisfiedRole(t *testing.T) {
	r := NewRouter(nil, 0)

	r.Next(models.RoleArchitect, "")
	r.Next(models.RoleCoder, "")

	d := r.Next(models.RoleReviewer, `<route next="coder" reason="fix review findings"/>`)
	if d.Kind != RunStep || d.Role != models.RoleCoder {
		t.Errorf("decision = %+v, want coder to run again", d)
	}
}

func TestRouter_DefaultOrderSkipsSatisfiedRoles(t *testing.T) {
	r := NewRouter(nil, 0)

	r.Next(models.RoleArchitect, "")
	// Directive jumps ahead to security.
	r.Next(models.RoleCoder, `<route next="security"/>`)
	// Security finishes with no directive: default order resumes at
	// reviewer, the first unsatisfied role.
	d := r.Next(models.RoleSecurity, "")

	if d.Kind != RunStep || d.Role != models.RoleReviewer {
		t.Errorf("decision = %+v, want reviewer (first unsatisfied)", d)
	}
}

func TestRouter_ExplicitApprovalCompletes(t *testing.T) {
	r := NewRouter(nil, 0)

	r.Next(models.RoleArchitect, "")
	d := r.Next(models.RoleCoder, "ship it\n<approve/>")

	if d.Kind != Completed {
		t.Errorf("decision = %v, want Completed on explicit approval", d.Kind)
	}
}

func TestRouter_ExplicitRejection(t *testing.T) {
	r := NewRouter(nil, 0)

	d := r.Next(models.RoleReviewer, `<reject reason="wrong approach"/>`)
	if d.Kind != Rejected {
		t.Fatalf("decision = %v, want Rejected", d.Kind)
	}
	if d.Reason != "wrong approach" {
		t.Errorf("Reason = %q, want the agent's reason", d.Reason)
	}
}

func TestRouter_RejectionWinsOverApproval(t *testing.T) {
	r := NewRouter(nil, 0)

	d := r.Next(models.RoleReviewer, "<approve/>\n<reject reason=\"second thoughts\"/>")
	if d.Kind != Rejected {
		t.Errorf("decision = %v, want Rejected when both signals present", d.Kind)
	}
}

func TestRouter_MalformedDirectiveFallsBack(t *testing.T) {
	r := NewRouter(nil, 0)

	d := r.Next(models.RoleArchitect, `<route next="manager" reason="escalate"/>`)
	if d.Kind != RunStep || d.Role != models.RoleCoder {
		t.Errorf("decision = %+v, want fallback to default successor coder", d)
	}
}

func TestRouter_StepCeilingForcesExhausted(t *testing.T) {
	r := NewRouter(nil, 3)

	d := r.First()
	steps := 0
	// A misbehaving agent that always re-routes to itself.
	for d.Kind == RunStep {
		steps++
		if steps > 20 {
			t.Fatal("router never hit the ceiling")
		}
		d = r.Next(d.Role, `<route next="coder" reason="loop"/>`)
	}

	if d.Kind != Exhausted {
		t.Fatalf("decision = %v, want Exhausted", d.Kind)
	}
	if !strings.Contains(d.Reason, ReasonNoConvergence) {
		t.Errorf("Reason = %q, want %q included", d.Reason, ReasonNoConvergence)
	}
	if steps != 3 {
		t.Errorf("ran %d steps before ceiling, want 3", steps)
	}
}

func TestRouter_DefaultCeiling(t *testing.T) {
	r := NewRouter(nil, 0)
	want := len(models.DefaultOrder()) + DefaultExtraSteps
	if r.maxSteps != want {
		t.Errorf("default maxSteps = %d, want %d", r.maxSteps, want)
	}
}

func TestRouter_CustomOrder(t *testing.T) {
	order := []models.Role{models.RoleCoder, models.RoleTester}
	r := NewRouter(order, 0)

	d := r.First()
	if d.Role != models.RoleCoder {
		t.Fatalf("first role = %q, want coder", d.Role)
	}
	d = r.Next(models.RoleCoder, "")
	if d.Role != models.RoleTester {
		t.Fatalf("second role = %q, want tester", d.Role)
	}
	d = r.Next(models.RoleTester, "")
	if d.Kind != Completed {
		t.Errorf("decision = %v, want Completed after custom order exhausted", d.Kind)
	}
}
