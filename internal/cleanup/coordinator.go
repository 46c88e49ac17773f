// Package cleanup guarantees sandbox teardown on every exit path:
// normal completion, interrupt signals, and panics.
package cleanup

import (
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
)

const (
	// ExitOK is the exit code for a graceful shutdown.
	ExitOK = 0
	// ExitFault is the exit code after an internal fault.
	ExitFault = 1
	// ExitInterrupted is the conventional exit code for SIGINT (128+2).
	ExitInterrupted = 130
)

// Releaser releases held resources. Implementations must tolerate
// being called more than once.
type Releaser interface {
	ReleaseAll()
}

// ReleaserFunc adapts a plain function to the Releaser interface.
type ReleaserFunc func()

// ReleaseAll calls the wrapped function.
func (f ReleaserFunc) ReleaseAll() { f() }

// Coordinator runs resource release exactly once, no matter how many
// exit paths race to trigger it.
type Coordinator struct {
	releaser Releaser
	once     sync.Once
	exit     func(code int)

	sigCh   chan os.Signal
	stopSig func()
}

// NewCoordinator returns a coordinator over the given releaser.
func NewCoordinator(r Releaser) *Coordinator {
	return &Coordinator{
		releaser: r,
		exit:     os.Exit,
	}
}

// Install registers signal handlers for SIGINT and SIGTERM. On either
// signal all tracked resources are released and the process exits.
func (c *Coordinator) Install() {
	c.sigCh = make(chan os.Signal, 1)
	signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)
	c.stopSig = func() { signal.Stop(c.sigCh) }

	go func() {
		sig, ok := <-c.sigCh
		if !ok {
			return
		}
		c.HandleSignal(sig)
	}()
}

// Uninstall removes the signal handlers, for a graceful shutdown path
// that has already released resources.
func (c *Coordinator) Uninstall() {
	if c.stopSig != nil {
		c.stopSig()
		c.stopSig = nil
	}
	if c.sigCh != nil {
		close(c.sigCh)
		c.sigCh = nil
	}
}

// HandleSignal releases resources and exits with the code matching the
// signal: 130 for an interrupt, 0 for a termination request. Exported so
// command wiring and tests can drive it directly.
func (c *Coordinator) HandleSignal(sig os.Signal) {
	log.Printf("[cleanup] received %v, releasing resources", sig)
	c.release()
	if sig == syscall.SIGINT {
		c.exit(ExitInterrupted)
		return
	}
	c.exit(ExitOK)
}

// HandleFault is meant to be deferred at the top of a run. It recovers
// from a panic, releases resources, and exits with a fault code.
func (c *Coordinator) HandleFault() {
	r := recover()
	if r == nil {
		return
	}
	log.Printf("[cleanup] fault: %v\n%s", r, debug.Stack())
	c.release()
	c.exit(ExitFault)
}

// Shutdown releases resources for a normal exit. It does not call exit,
// letting the caller return its own status.
func (c *Coordinator) Shutdown() {
	c.Uninstall()
	c.release()
}

func (c *Coordinator) release() {
	c.once.Do(func() {
		if c.releaser != nil {
			c.releaser.ReleaseAll()
		}
	})
}
