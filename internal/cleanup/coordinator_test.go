package cleanup

import (
	"sync"
	"syscall"
	"testing"
)

type countingReleaser struct {
	mu    sync.Mutex
	calls int
}

func (r *countingReleaser) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *countingReleaser) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testCoordinator(r Releaser) (*Coordinator, *[]int) {
	c := NewCoordinator(r)
	var codes []int
	c.exit = func(code int) { codes = append(codes, code) }
	return c, &codes
}

func TestHandleSignal_Interrupt(t *testing.T) {
	r := &countingReleaser{}
	c, codes := testCoordinator(r)

	c.HandleSignal(syscall.SIGINT)

	if r.count() != 1 {
		t.Errorf("ReleaseAll calls = %d, want 1", r.count())
	}
	if len(*codes) != 1 || (*codes)[0] != ExitInterrupted {
		t.Errorf("exit codes = %v, want [%d]", *codes, ExitInterrupted)
	}
}

func TestHandleSignal_TermIsGraceful(t *testing.T) {
	r := &countingReleaser{}
	c, codes := testCoordinator(r)

	c.HandleSignal(syscall.SIGTERM)

	if r.count() != 1 {
		t.Errorf("ReleaseAll calls = %d, want 1", r.count())
	}
	if len(*codes) != 1 || (*codes)[0] != ExitOK {
		t.Errorf("exit codes = %v, want [%d]", *codes, ExitOK)
	}
}

func TestRelease_OnlyOnce(t *testing.T) {
	r := &countingReleaser{}
	c, _ := testCoordinator(r)

	c.Shutdown()
	c.Shutdown()
	c.HandleSignal(syscall.SIGINT)

	if r.count() != 1 {
		t.Errorf("ReleaseAll calls = %d, want exactly 1", r.count())
	}
}

func TestHandleFault_ReleasesOnPanic(t *testing.T) {
	r := &countingReleaser{}
	c, codes := testCoordinator(r)

	func() {
		defer c.HandleFault()
		panic("boom")
	}()

	if r.count() != 1 {
		t.Errorf("ReleaseAll calls = %d, want 1", r.count())
	}
	if len(*codes) != 1 || (*codes)[0] != ExitFault {
		t.Errorf("exit codes = %v, want [%d]", *codes, ExitFault)
	}
}

func TestHandleFault_NoPanicNoRelease(t *testing.T) {
	r := &countingReleaser{}
	c, codes := testCoordinator(r)

	func() {
		defer c.HandleFault()
	}()

	if r.count() != 0 {
		t.Errorf("ReleaseAll calls = %d, want 0", r.count())
	}
	if len(*codes) != 0 {
		t.Errorf("exit codes = %v, want none", *codes)
	}
}

func TestShutdown_NoExit(t *testing.T) {
	r := &countingReleaser{}
	c, codes := testCoordinator(r)

	c.Shutdown()

	if r.count() != 1 {
		t.Errorf("ReleaseAll calls = %d, want 1", r.count())
	}
	if len(*codes) != 0 {
		t.Errorf("Shutdown should not exit, got codes %v", *codes)
	}
}

func TestConcurrentRelease(t *testing.T) {
	r := &countingReleaser{}
	c, _ := testCoordinator(r)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.release()
		}()
	}
	wg.Wait()

	if r.count() != 1 {
		t.Errorf("ReleaseAll calls = %d, want exactly 1", r.count())
	}
}
