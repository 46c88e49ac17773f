package agent

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/relay-dev/relay/internal/sandbox"
	"github.com/relay-dev/relay/pkg/models"
)

type execCall struct {
	handleID string
	argv     []string
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  []execCall
	output string
	err    error
}

func (p *fakeProvider) Create(ctx context.Context, image string, limits sandbox.Limits) (*sandbox.Handle, error) {
	return &sandbox.Handle{ID: "sbx-1"}, nil
}

func (p *fakeProvider) Stop(ctx context.Context, h *sandbox.Handle) error   { return nil }
func (p *fakeProvider) Remove(ctx context.Context, h *sandbox.Handle) error { return nil }

func (p *fakeProvider) Execute(ctx context.Context, h *sandbox.Handle, argv []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, execCall{handleID: h.ID, argv: argv})
	return p.output, p.err
}

func (p *fakeProvider) lastCall(t *testing.T) execCall {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		t.Fatal("no Execute calls recorded")
	}
	return p.calls[len(p.calls)-1]
}

func testTask() *models.Task {
	return &models.Task{
		ID:          "t1",
		Description: "add retry support to the fetcher",
		Status:      models.TaskStatusExecuting,
	}
}

func TestStep_RunBuildsCommand(t *testing.T) {
	provider := &fakeProvider{output: "done"}
	runner := NewRunner(provider, Command{Name: "agent", Args: []string{"--print"}})
	handle := &sandbox.Handle{ID: "sbx-1", TaskID: "t1"}

	step := runner.Step(handle, models.RoleCoder, testTask())
	out, err := step.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out != "done" {
		t.Errorf("output = %q, want done", out)
	}

	call := provider.lastCall(t)
	if call.handleID != "sbx-1" {
		t.Errorf("executed in sandbox %q, want sbx-1", call.handleID)
	}
	if len(call.argv) != 3 || call.argv[0] != "agent" || call.argv[1] != "--print" {
		t.Fatalf("argv = %v, want [agent --print <prompt>]", call.argv)
	}
	prompt := call.argv[2]
	if !strings.Contains(prompt, "add retry support to the fetcher") {
		t.Error("prompt missing task description")
	}
	if !strings.Contains(prompt, "You are the coder") {
		t.Error("prompt missing role instruction")
	}
	if !strings.Contains(prompt, `<route next="ROLE"`) {
		t.Error("prompt missing control tag conventions")
	}
}

func TestBuildPrompt_IncludesPriorSteps(t *testing.T) {
	task := testTask()
	task.AppendStep(models.StepRecord{
		Role:    models.RoleArchitect,
		Attempt: 1,
		Outcome: models.StepOutcomeSuccess,
		Output:  "plan: wrap calls in a retry loop",
	})
	task.AppendStep(models.StepRecord{
		Role:    models.RoleCoder,
		Attempt: 1,
		Outcome: models.StepOutcomeRetried,
		Output:  "partial junk",
	})

	prompt := buildPrompt(models.RoleReviewer, task)
	if !strings.Contains(prompt, "plan: wrap calls in a retry loop") {
		t.Error("prompt missing successful prior step output")
	}
	if strings.Contains(prompt, "partial junk") {
		t.Error("prompt should exclude failed attempts")
	}
}

func TestBuildPrompt_TruncatesLongOutputs(t *testing.T) {
	task := testTask()
	task.AppendStep(models.StepRecord{
		Role:    models.RoleArchitect,
		Attempt: 1,
		Outcome: models.StepOutcomeSuccess,
		Output:  strings.Repeat("x", maxPriorOutput+100),
	})

	prompt := buildPrompt(models.RoleCoder, task)
	if !strings.Contains(prompt, "[truncated]") {
		t.Error("long prior output should be truncated")
	}
}

func TestStep_InterruptSignalsAgent(t *testing.T) {
	provider := &fakeProvider{}
	runner := NewRunner(provider, Command{Name: "agent"})
	handle := &sandbox.Handle{ID: "sbx-1"}

	step := runner.Step(handle, models.RoleCoder, testTask())
	step.Interrupt()

	call := provider.lastCall(t)
	want := []string{"pkill", "-INT", "-f", "agent"}
	if len(call.argv) != len(want) {
		t.Fatalf("argv = %v, want %v", call.argv, want)
	}
	for i := range want {
		if call.argv[i] != want[i] {
			t.Fatalf("argv = %v, want %v", call.argv, want)
		}
	}
}

func TestStep_KillSignalsAgent(t *testing.T) {
	provider := &fakeProvider{}
	runner := NewRunner(provider, Command{Name: "agent"})
	handle := &sandbox.Handle{ID: "sbx-1"}

	step := runner.Step(handle, models.RoleTester, testTask())
	step.Kill()

	call := provider.lastCall(t)
	if call.argv[1] != "-KILL" {
		t.Errorf("signal flag = %q, want -KILL", call.argv[1])
	}
}

func TestRoleInstructions_CoverAllRoles(t *testing.T) {
	for _, role := range models.DefaultOrder() {
		if roleInstructions[role] == "" {
			t.Errorf("missing instruction for role %s", role)
		}
	}
}
