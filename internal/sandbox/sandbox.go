// Package sandbox provides isolated execution environments for agent
// steps and tracks every live sandbox so it can be released on any exit
// path, including process termination.
package sandbox

import (
	"context"
	"time"
)

// Handle identifies a live sandbox. A handle is owned by the Tracker from
// registration until release and is never shared across tasks.
type Handle struct {
	// ID is the provider-assigned identity (e.g. a container id).
	ID string
	// TaskID is the task this sandbox belongs to.
	TaskID string
	// CreatedAt is when the sandbox was created.
	CreatedAt time.Time
}

// Limits bounds the resources a sandbox may consume.
type Limits struct {
	// Memory is the memory limit in docker syntax (e.g. "2g").
	Memory string
	// CPUs is the CPU limit (e.g. "2").
	CPUs string
	// Network is the network mode (e.g. "bridge", "none").
	Network string
}

// Provider creates and controls sandboxes. Create failures are fatal for
// the task; Stop and Remove failures are logged by callers, never
// propagated.
type Provider interface {
	// Create starts a new sandbox from the image with the given limits,
	// mounting the project repository as its workspace.
	Create(ctx context.Context, image string, limits Limits) (*Handle, error)
	// Stop gracefully stops the sandbox.
	Stop(ctx context.Context, h *Handle) error
	// Remove destroys the sandbox and its resources.
	Remove(ctx context.Context, h *Handle) error
	// Execute runs a command inside the sandbox and returns its combined
	// output.
	Execute(ctx context.Context, h *Handle, argv []string) (string, error)
}
