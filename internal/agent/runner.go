// Package agent turns pipeline roles into executable steps. Each step
// runs the configured agent command inside the task's sandbox with a
// role-specific prompt.
package agent

import (
	"context"
	"log"
	"time"

	"github.com/relay-dev/relay/internal/invoke"
	"github.com/relay-dev/relay/internal/sandbox"
	"github.com/relay-dev/relay/pkg/models"
)

// signalTimeout bounds the exec used to signal a running agent.
const signalTimeout = 10 * time.Second

// Command is the agent invocation run inside the sandbox. The prompt is
// appended as the final argument.
type Command struct {
	Name string
	Args []string
}

// Runner builds sandboxed steps for pipeline roles.
type Runner struct {
	provider sandbox.Provider
	command  Command
}

// NewRunner creates a Runner executing the given command via the
// provider.
func NewRunner(provider sandbox.Provider, cmd Command) *Runner {
	return &Runner{provider: provider, command: cmd}
}

// Step builds the unit of work for one role against the task's sandbox.
// The prompt is fixed at build time, so the task's step history must be
// current when Step is called.
func (r *Runner) Step(h *sandbox.Handle, role models.Role, task *models.Task) *Step {
	return &Step{
		runner: r,
		handle: h,
		role:   role,
		prompt: buildPrompt(role, task),
	}
}

// Step runs one role inside a sandbox. It supports graceful stop by
// signalling the agent process in the container.
type Step struct {
	runner *Runner
	handle *sandbox.Handle
	role   models.Role
	prompt string
}

var _ invoke.Unit = (*Step)(nil)
var _ invoke.Stopper = (*Step)(nil)

// Run executes the agent command in the sandbox and returns its output.
func (s *Step) Run(ctx context.Context) (string, error) {
	argv := make([]string, 0, len(s.runner.command.Args)+2)
	argv = append(argv, s.runner.command.Name)
	argv = append(argv, s.runner.command.Args...)
	argv = append(argv, s.prompt)
	return s.runner.provider.Execute(ctx, s.handle, argv)
}

// Interrupt asks the running agent to stop gracefully.
func (s *Step) Interrupt() {
	s.signal("-INT")
}

// Kill terminates the running agent immediately.
func (s *Step) Kill() {
	s.signal("-KILL")
}

func (s *Step) signal(flag string) {
	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()
	_, err := s.runner.provider.Execute(ctx, s.handle, []string{"pkill", flag, "-f", s.runner.command.Name})
	if err != nil {
		log.Printf("[agent] failed to signal %s step in sandbox %s: %v", s.role, s.handle.ID, err)
	}
}
