package invoke

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedUnit fails with the scripted errors in order, then succeeds.
type scriptedUnit struct {
	mu     sync.Mutex
	errs   []error
	output string
	runs   int
}

func (u *scriptedUnit) Run(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.runs++
	if u.runs <= len(u.errs) {
		return "", u.errs[u.runs-1]
	}
	return u.output, nil
}

func (u *scriptedUnit) runCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.runs
}

// hangingUnit blocks until its context is cancelled or it is stopped.
type hangingUnit struct {
	interrupted chan struct{}
	killed      chan struct{}
	once        sync.Once
	killOnce    sync.Once
	stopOnInt   bool
}

func newHangingUnit(stopOnInterrupt bool) *hangingUnit {
	return &hangingUnit{
		interrupted: make(chan struct{}),
		killed:      make(chan struct{}),
		stopOnInt:   stopOnInterrupt,
	}
}

func (u *hangingUnit) Run(ctx context.Context) (string, error) {
	if u.stopOnInt {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-u.interrupted:
			return "", errors.New("interrupted")
		}
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-u.killed:
		return "", errors.New("killed")
	}
}

func (u *hangingUnit) Interrupt() { u.once.Do(func() { close(u.interrupted) }) }
func (u *hangingUnit) Kill()      { u.killOnce.Do(func() { close(u.killed) }) }

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		Timeout:     time.Second,
		MaxAttempts: maxAttempts,
		Backoff:     []time.Duration{0, time.Millisecond, time.Millisecond},
		GraceWindow: 50 * time.Millisecond,
	}
}

func TestInvoke_SuccessFirstTry(t *testing.T) {
	unit := &scriptedUnit{output: "done"}
	res := New().Invoke(context.Background(), unit, fastPolicy(3))

	if res.Failed() {
		t.Fatalf("Invoke failed: %v", res.Err)
	}
	if res.Output != "done" {
		t.Errorf("Output = %q, want %q", res.Output, "done")
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
}

func TestInvoke_RetryableRetriesUpToMax(t *testing.T) {
	unit := &scriptedUnit{errs: []error{
		errors.New("connection refused"),
		errors.New("connection reset"),
		errors.New("i/o timeout"),
	}}
	res := New().Invoke(context.Background(), unit, fastPolicy(3))

	if !res.Failed() {
		t.Fatal("expected exhausted failure")
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if unit.runCount() != 3 {
		t.Errorf("unit ran %d times, want 3", unit.runCount())
	}
	if res.Hint == "" {
		t.Error("exhausted result must carry a remediation hint")
	}
	if !strings.Contains(res.Error(), "3 attempt") {
		t.Errorf("Error() = %q, want attempt count included", res.Error())
	}
}

func TestInvoke_RetryableSucceedsAfterFailure(t *testing.T) {
	unit := &scriptedUnit{
		errs:   []error{errors.New("rate limit exceeded")},
		output: "ok",
	}
	res := New().Invoke(context.Background(), unit, fastPolicy(3))

	if res.Failed() {
		t.Fatalf("Invoke failed: %v", res.Err)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
}

func TestInvoke_FatalShortCircuits(t *testing.T) {
	unit := &scriptedUnit{errs: []error{
		errors.New("permission denied"),
		errors.New("permission denied"),
	}}
	res := New().Invoke(context.Background(), unit, fastPolicy(3))

	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want exactly 1 for fatal error", res.Attempts)
	}
	if unit.runCount() != 1 {
		t.Errorf("unit ran %d times, want 1", unit.runCount())
	}
	if !strings.Contains(res.Hint, "credentials") {
		t.Errorf("Hint = %q, want credentials remediation", res.Hint)
	}
}

func TestInvoke_TimeoutCountsAsFailedAttempt(t *testing.T) {
	unit := newHangingUnit(true)
	policy := Policy{
		Timeout:     20 * time.Millisecond,
		MaxAttempts: 1,
		Backoff:     []time.Duration{0},
		GraceWindow: 50 * time.Millisecond,
	}
	res := New().Invoke(context.Background(), unit, policy)

	if !res.Failed() {
		t.Fatal("expected timeout failure")
	}
	if !errors.Is(res.Err, ErrTimeout) {
		t.Errorf("Err = %v, want ErrTimeout", res.Err)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}

	select {
	case <-unit.interrupted:
	default:
		t.Error("timed-out unit should have received graceful-stop signal")
	}
}

func TestInvoke_TimeoutKillsAfterGraceWindow(t *testing.T) {
	unit := newHangingUnit(false) // ignores interrupt, only dies on kill
	policy := Policy{
		Timeout:     20 * time.Millisecond,
		MaxAttempts: 1,
		Backoff:     []time.Duration{0},
		GraceWindow: 20 * time.Millisecond,
	}
	res := New().Invoke(context.Background(), unit, policy)

	if !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("Err = %v, want ErrTimeout", res.Err)
	}
	select {
	case <-unit.killed:
	default:
		t.Error("unit ignoring interrupt should have been killed")
	}
}

func TestInvoke_TimeoutIsRetryable(t *testing.T) {
	unit := newHangingUnit(true)
	policy := Policy{
		Timeout:     10 * time.Millisecond,
		MaxAttempts: 2,
		Backoff:     []time.Duration{0, 0},
		GraceWindow: 20 * time.Millisecond,
	}
	res := New().Invoke(context.Background(), unit, policy)

	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2 (timeout should be retried)", res.Attempts)
	}
}

func TestInvoke_EveryAttemptObserved(t *testing.T) {
	unit := &scriptedUnit{
		errs:   []error{errors.New("connection refused"), errors.New("connection refused")},
		output: "finally",
	}

	var mu sync.Mutex
	var attempts []Attempt
	inv := New()
	inv.OnAttempt = func(a Attempt) {
		mu.Lock()
		attempts = append(attempts, a)
		mu.Unlock()
	}

	res := inv.Invoke(context.Background(), unit, fastPolicy(3))
	if res.Failed() {
		t.Fatalf("Invoke failed: %v", res.Err)
	}

	if len(attempts) != 3 {
		t.Fatalf("observed %d attempts, want 3", len(attempts))
	}
	for i, a := range attempts {
		if a.Number != i+1 {
			t.Errorf("attempt[%d].Number = %d, want %d", i, a.Number, i+1)
		}
	}
	if !attempts[0].Retried || !attempts[1].Retried {
		t.Error("failed attempts followed by a retry must be marked Retried")
	}
	if attempts[2].Err != nil || attempts[2].Retried {
		t.Error("final successful attempt must not be marked failed or retried")
	}
	if attempts[2].Output != "finally" {
		t.Errorf("final attempt output = %q, want %q", attempts[2].Output, "finally")
	}
}

func TestInvoke_BackoffBetweenAttempts(t *testing.T) {
	unit := &scriptedUnit{errs: []error{errors.New("busy"), errors.New("busy")}, output: "ok"}
	policy := Policy{
		Timeout:     time.Second,
		MaxAttempts: 3,
		Backoff:     []time.Duration{30 * time.Millisecond, 30 * time.Millisecond},
		GraceWindow: time.Second,
	}

	start := time.Now()
	res := New().Invoke(context.Background(), unit, policy)
	elapsed := time.Since(start)

	if res.Failed() {
		t.Fatalf("Invoke failed: %v", res.Err)
	}
	if elapsed < 60*time.Millisecond {
		t.Errorf("elapsed %v, want at least 60ms of backoff", elapsed)
	}
}

func TestInvoke_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	unit := &scriptedUnit{errs: []error{errors.New("connection refused")}, output: "ok"}
	res := New().Invoke(ctx, unit, fastPolicy(3))

	if !res.Failed() {
		t.Fatal("expected failure with cancelled context")
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 with cancelled context", res.Attempts)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.normalized()
	if p.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", p.Timeout)
	}
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if len(p.Backoff) != 3 || p.Backoff[1] != 2*time.Second {
		t.Errorf("Backoff = %v, want [0s 2s 4s]", p.Backoff)
	}
	if p.GraceWindow != 5*time.Second {
		t.Errorf("GraceWindow = %v, want 5s", p.GraceWindow)
	}
}

func TestPolicy_BackoffForClampsIndex(t *testing.T) {
	p := Policy{Backoff: []time.Duration{time.Second, 2 * time.Second}}
	if got := p.backoffFor(1); got != time.Second {
		t.Errorf("backoffFor(1) = %v, want 1s", got)
	}
	if got := p.backoffFor(5); got != 2*time.Second {
		t.Errorf("backoffFor(5) = %v, want last entry 2s", got)
	}
}
