package agent

import (
	"fmt"
	"strings"

	"github.com/relay-dev/relay/pkg/models"
)

// roleInstructions holds the per-role system instruction prepended to
// every step prompt.
var roleInstructions = map[models.Role]string{
	models.RoleArchitect:   "You are the architect. Study the repository and the task, then produce a concrete implementation plan: files to touch, interfaces to add, and the order of changes. Do not write the implementation yourself.",
	models.RoleCoder:       "You are the coder. Implement the task in the workspace following the plan from earlier steps. Make the smallest change that fully satisfies the task.",
	models.RoleReviewer:    "You are the reviewer. Read the changes made so far and check correctness, naming, and consistency with the surrounding code. Fix what you can directly; flag what you cannot.",
	models.RoleSecurity:    "You are the security reviewer. Audit the changes for injection, unsafe input handling, secrets in code, and privilege issues. Fix findings directly in the workspace.",
	models.RoleDocumenter:  "You are the documenter. Update doc comments, README sections, and usage examples so they match the changes made so far.",
	models.RoleTester:      "You are the tester. Add or update tests covering the changes made so far and make sure the suite passes in the workspace.",
	models.RolePerformance: "You are the performance reviewer. Look for avoidable allocations, quadratic passes, and blocking calls on hot paths in the changes, and fix what you find.",
}

// directiveConventions tells the agent how to steer the pipeline. The
// tags are parsed out of the step output afterwards.
const directiveConventions = `You may end your output with at most one control tag:
  <route next="ROLE" reason="..."/>   hand off to a specific role next
  <approve/>                          the task is complete, stop the pipeline
  <reject reason="..."/>              the task cannot or should not be done
You may also report spend with <cost usd="0.00"/>. Emit no tag to let the default order continue.`

// maxPriorOutput bounds how much of each earlier step is replayed into
// the prompt.
const maxPriorOutput = 4000

// buildPrompt assembles the prompt for one role: instruction, task
// description, prior step outputs, and the control tag conventions.
func buildPrompt(role models.Role, task *models.Task) string {
	var b strings.Builder

	b.WriteString(roleInstructions[role])
	b.WriteString("\n\n## Task\n\n")
	b.WriteString(task.Description)
	b.WriteString("\n")

	if prior := priorSteps(task); prior != "" {
		b.WriteString("\n## Earlier steps\n\n")
		b.WriteString(prior)
	}

	b.WriteString("\n## Control tags\n\n")
	b.WriteString(directiveConventions)
	b.WriteString("\n")

	return b.String()
}

// priorSteps renders the successful step outputs so far, most recent
// last, truncating long outputs.
func priorSteps(task *models.Task) string {
	var b strings.Builder
	for _, step := range task.Steps {
		if step.Outcome != models.StepOutcomeSuccess || step.Output == "" {
			continue
		}
		out := step.Output
		if len(out) > maxPriorOutput {
			out = out[:maxPriorOutput] + "\n[truncated]"
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", step.Role, out)
	}
	return b.String()
}
