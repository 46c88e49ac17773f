package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// stopGrace is how long docker waits for PID 1 before killing it.
const stopGrace = 5 * time.Second

// managedLabel marks containers created by relay so orphans can be
// found after a crash.
const managedLabel = "relay.managed=true"

// DockerProvider implements Provider by shelling out to the docker CLI.
type DockerProvider struct {
	// repoPath is the host path of the project repository, bind-mounted
	// into every sandbox at /workspace.
	repoPath string
}

// NewDockerProvider creates a provider that mounts repoPath into each
// sandbox it creates.
func NewDockerProvider(repoPath string) *DockerProvider {
	return &DockerProvider{repoPath: repoPath}
}

// run executes a docker command and returns its trimmed output.
func (p *DockerProvider) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// Create starts a detached container that idles until commands are
// executed in it. The project repository is mounted read-write at
// /workspace so committed work is visible on the host.
func (p *DockerProvider) Create(ctx context.Context, image string, limits Limits) (*Handle, error) {
	args := []string{"run", "-d", "--label", managedLabel, "-v", p.repoPath + ":/workspace", "-w", "/workspace"}
	if limits.Memory != "" {
		args = append(args, "--memory", limits.Memory)
	}
	if limits.CPUs != "" {
		args = append(args, "--cpus", limits.CPUs)
	}
	if limits.Network != "" {
		args = append(args, "--network", limits.Network)
	}
	args = append(args, image, "sleep", "infinity")

	id, err := p.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}

	return &Handle{
		ID:        id,
		CreatedAt: time.Now(),
	}, nil
}

// Stop gracefully stops the container.
func (p *DockerProvider) Stop(ctx context.Context, h *Handle) error {
	_, err := p.run(ctx, "stop", "-t", fmt.Sprintf("%d", int(stopGrace.Seconds())), h.ID)
	if err != nil {
		return fmt.Errorf("stop sandbox %s: %w", shortID(h.ID), err)
	}
	return nil
}

// Remove destroys the container.
func (p *DockerProvider) Remove(ctx context.Context, h *Handle) error {
	_, err := p.run(ctx, "rm", "-f", h.ID)
	if err != nil {
		return fmt.Errorf("remove sandbox %s: %w", shortID(h.ID), err)
	}
	return nil
}

// Execute runs a command inside the container and returns combined output.
func (p *DockerProvider) Execute(ctx context.Context, h *Handle, argv []string) (string, error) {
	args := append([]string{"exec", h.ID}, argv...)
	out, err := p.run(ctx, args...)
	if err != nil {
		return out, fmt.Errorf("execute in sandbox %s: %w", shortID(h.ID), err)
	}
	return out, nil
}

// Orphans lists the ids of all relay-managed containers, running or
// stopped. Used by crash recovery to find sandboxes no process tracks.
func (p *DockerProvider) Orphans(ctx context.Context) ([]string, error) {
	out, err := p.run(ctx, "ps", "-aq", "--filter", "label="+managedLabel)
	if err != nil {
		return nil, fmt.Errorf("list sandboxes: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Fields(out), nil
}

// shortID truncates a container id for log readability.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Verify DockerProvider implements Provider at compile time.
var _ Provider = (*DockerProvider)(nil)
