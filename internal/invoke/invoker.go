// Package invoke executes one bounded unit of work with a timeout and a
// bounded retry policy. Failures are classified as retryable or fatal;
// fatal failures short-circuit the remaining attempts.
package invoke

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Unit is one bounded piece of work, typically a single agent step.
type Unit interface {
	// Run executes the work and returns its output. Run must honor ctx
	// cancellation.
	Run(ctx context.Context) (string, error)
}

// Stopper is implemented by units that support a graceful-stop signal
// ahead of forcible termination.
type Stopper interface {
	// Interrupt asks the unit to stop gracefully.
	Interrupt()
	// Kill terminates the unit immediately.
	Kill()
}

// Policy bounds a single invocation.
type Policy struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff holds the delay before each retry, indexed by the attempt
	// that just failed (attempt 1 waits Backoff[0], and so on). Shorter
	// schedules repeat the last entry.
	Backoff []time.Duration
	// GraceWindow is how long a timed-out unit gets to stop gracefully
	// before it is killed.
	GraceWindow time.Duration
}

// DefaultPolicy returns the standard step policy: 5 minute timeout,
// 3 attempts, 0s/2s/4s backoff, 5 second grace window.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     5 * time.Minute,
		MaxAttempts: 3,
		Backoff:     []time.Duration{0, 2 * time.Second, 4 * time.Second},
		GraceWindow: 5 * time.Second,
	}
}

// normalized fills in zero fields with defaults.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if len(p.Backoff) == 0 {
		p.Backoff = def.Backoff
	}
	if p.GraceWindow <= 0 {
		p.GraceWindow = def.GraceWindow
	}
	return p
}

// backoffFor returns the delay after the given failed attempt (1-indexed).
func (p Policy) backoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	if idx < 0 {
		return 0
	}
	return p.Backoff[idx]
}

// Attempt describes one attempt for observability. Every attempt,
// including retried ones, is reported.
type Attempt struct {
	// Number is the 1-indexed attempt number.
	Number int
	// Output is the unit's output, if any.
	Output string
	// Err is the attempt's error, nil on success.
	Err error
	// Retried is true when a further attempt follows this failure.
	Retried bool
	// StartedAt and EndedAt bound the attempt.
	StartedAt time.Time
	EndedAt   time.Time
}

// Result carries the outcome of an invocation. On exhaustion the result
// includes the last error, the attempt count, and a remediation hint,
// never just a bare error.
type Result struct {
	// Output is the successful output, empty on failure.
	Output string
	// Attempts is how many attempts were made.
	Attempts int
	// Err is the last error, nil on success.
	Err error
	// Hint is a human-readable remediation for Err.
	Hint string
}

// Failed returns true if the invocation did not succeed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Error formats the failure with attempt count and remediation attached.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return fmt.Sprintf("failed after %d attempt(s): %v (%s)", r.Attempts, r.Err, r.Hint)
}

// Invoker executes units of work under a policy.
type Invoker struct {
	// OnAttempt, if set, is called once per attempt with its outcome.
	OnAttempt func(Attempt)
}

// New creates an Invoker with no attempt observer.
func New() *Invoker {
	return &Invoker{}
}

// Invoke runs the unit under the policy. Each attempt races a timeout
// watch; a timed-out unit gets a graceful-stop signal, then a kill after
// the grace window, and the attempt counts as a retryable failure.
// Fatal failures short-circuit remaining attempts.
func (inv *Invoker) Invoke(ctx context.Context, unit Unit, policy Policy) Result {
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		started := time.Now()
		output, err := inv.runOnce(ctx, unit, policy)
		ended := time.Now()

		if err == nil {
			inv.report(Attempt{Number: attempt, Output: output, StartedAt: started, EndedAt: ended})
			return Result{Output: output, Attempts: attempt}
		}

		lastErr = err
		class := Classify(err)
		willRetry := class == Retryable && attempt < policy.MaxAttempts && ctx.Err() == nil
		inv.report(Attempt{Number: attempt, Output: output, Err: err, Retried: willRetry, StartedAt: started, EndedAt: ended})

		if !willRetry {
			if class == Fatal {
				log.Printf("[invoke] attempt %d failed with fatal error, not retrying: %v", attempt, err)
			}
			return Result{Attempts: attempt, Err: err, Hint: Hint(err)}
		}

		delay := policy.backoffFor(attempt)
		log.Printf("[invoke] attempt %d failed (%s), retrying in %s: %v", attempt, class, delay, err)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Result{Attempts: attempt, Err: ctx.Err(), Hint: Hint(ctx.Err())}
			}
		}
	}

	// Unreachable: the loop always returns. Kept for the compiler.
	return Result{Attempts: policy.MaxAttempts, Err: lastErr, Hint: Hint(lastErr)}
}

// runOnce executes a single attempt with the timeout watch.
func (inv *Invoker) runOnce(ctx context.Context, unit Unit, policy Policy) (string, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type runResult struct {
		output string
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		output, err := unit.Run(runCtx)
		done <- runResult{output, err}
	}()

	timer := time.NewTimer(policy.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.output, res.err
	case <-ctx.Done():
		cancel()
		<-done
		return "", ctx.Err()
	case <-timer.C:
	}

	// Timed out: graceful stop first, then kill after the grace window.
	if stopper, ok := unit.(Stopper); ok {
		stopper.Interrupt()
		grace := time.NewTimer(policy.GraceWindow)
		defer grace.Stop()
		select {
		case <-done:
			return "", ErrTimeout
		case <-grace.C:
			stopper.Kill()
		}
	}
	cancel()
	<-done
	return "", ErrTimeout
}

func (inv *Invoker) report(a Attempt) {
	if inv.OnAttempt != nil {
		inv.OnAttempt(a)
	}
}
