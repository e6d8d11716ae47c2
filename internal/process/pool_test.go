package process

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

func newTestPool(t *testing.T, opts PoolOptions) *Pool {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	pool, err := NewPool(&opts)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitPool runs pool.Wait with a timeout.
func waitPool(t *testing.T, pool *Pool, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for pool (running %d, queued %d)", pool.Running(), pool.Queued())
	}
}

func TestNewPoolInvalidLimit(t *testing.T) {
	if _, err := NewPool(nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("NewPool(nil) error = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := NewPool(&PoolOptions{Limit: 0}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("NewPool(limit 0) error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestPoolRunsAllWithinLimit(t *testing.T) {
	useShell(t)

	var mu sync.Mutex
	active, maxActive := 0, 0
	pool := newTestPool(t, PoolOptions{
		Limit: 2,
		OnStateChange: func(_ string, _, newState State, _ error) {
			mu.Lock()
			defer mu.Unlock()
			switch newState {
			case StateLaunched:
				active++
				maxActive = max(maxActive, active)
			case StateFinished, StateStopped:
				active--
			}
		},
	})

	procs := make([]*Process, 5)
	for i := range procs {
		procs[i] = newShellProcess(fmt.Sprintf("echo a%d; echo b%d; sleep 0.1; echo c%d", i, i, i))
		if err := pool.AddProcess(procs[i]); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
		if running := pool.Running(); running > pool.Limit() {
			t.Errorf("Running() = %d exceeds limit %d", running, pool.Limit())
		}
	}

	waitPool(t, pool, 5*time.Second)

	if got := pool.Executed(); got != 5 {
		t.Errorf("Executed() = %d, want 5", got)
	}
	if pool.Running() != 0 || pool.Queued() != 0 || pool.Failed() != 0 {
		t.Errorf("counters after Wait: running %d, queued %d, failed %d", pool.Running(), pool.Queued(), pool.Failed())
	}
	for i, proc := range procs {
		code, err := proc.ExitCode()
		if err != nil || code != 0 {
			t.Errorf("process %d ExitCode() = %d, %v; want 0, nil", i, code, err)
		}
		if got := len(proc.Output()); got != 3 {
			t.Errorf("process %d has %d lines, want 3", i, got)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxActive > 2 {
		t.Errorf("observed %d simultaneous processes, limit is 2", maxActive)
	}
	if maxActive == 0 {
		t.Error("no process was observed launching")
	}
}

func TestPoolAdmitsInInsertionOrder(t *testing.T) {
	useShell(t)

	var mu sync.Mutex
	var order []string
	pool := newTestPool(t, PoolOptions{
		Limit: 1,
		OnStateChange: func(id string, _, newState State, _ error) {
			if newState == StateLaunched {
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
			}
		},
	})

	var ids []string
	for i := 0; i < 4; i++ {
		proc := newShellProcess("true")
		ids = append(ids, proc.ID())
		if err := pool.AddProcess(proc); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
	}
	waitPool(t, pool, 5*time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(ids) {
		t.Fatalf("launched %d processes, want %d", len(order), len(ids))
	}
	for i := range ids {
		if order[i] != ids[i] {
			t.Errorf("launch %d was %s, want %s", i, order[i], ids[i])
		}
	}
}

func TestPoolWaitEmpty(t *testing.T) {
	pool := newTestPool(t, PoolOptions{Limit: 3})
	waitPool(t, pool, time.Second)

	if !pool.Empty() || pool.Size() != 0 {
		t.Errorf("new pool not empty: size %d", pool.Size())
	}
}

func TestPoolAddProcessErrors(t *testing.T) {
	useShell(t)
	pool := newTestPool(t, PoolOptions{Limit: 1})

	if err := pool.AddProcess(nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("AddProcess(nil) error = %v, want ErrInvalidConfiguration", err)
	}

	launched := newShellProcess("true")
	if err := launched.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	defer launched.Close()
	if err := pool.AddProcess(launched); !errors.Is(err, ErrAlreadyLaunched) {
		t.Errorf("AddProcess(launched) error = %v, want ErrAlreadyLaunched", err)
	}

	proc := newShellProcess("sleep 10")
	if err := pool.AddProcess(proc); err != nil {
		t.Fatalf("AddProcess failed: %v", err)
	}
	waitFor(t, 2*time.Second, "launch", func() bool { return proc.State() == StateLaunched })
	if err := pool.AddProcess(proc); err == nil {
		t.Error("expected error when adding a process twice")
	}
}

func TestPoolGetAndProcesses(t *testing.T) {
	useShell(t)
	pool := newTestPool(t, PoolOptions{Limit: 2})

	first := newShellProcess("true")
	second := newShellProcess("true")
	for _, proc := range []*Process{first, second} {
		if err := pool.AddProcess(proc); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
	}

	if got, ok := pool.Get(second.ID()); !ok || got != second {
		t.Errorf("Get(%s) = %v, %v", second.ID(), got, ok)
	}
	if _, ok := pool.Get("missing"); ok {
		t.Error("Get(missing) reported a process")
	}
	procs := pool.Processes()
	if len(procs) != 2 || procs[0] != first || procs[1] != second {
		t.Errorf("Processes() not in insertion order")
	}
	waitPool(t, pool, 2*time.Second)
}

func TestPoolStop(t *testing.T) {
	useShell(t)
	pool := newTestPool(t, PoolOptions{Limit: 2})

	procs := []*Process{newShellProcess("sleep 10"), newShellProcess("sleep 10")}
	for _, proc := range procs {
		if err := pool.AddProcess(proc); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
	}
	waitFor(t, 2*time.Second, "both processes to launch", func() bool { return pool.Running() == 2 })

	pool.Stop()
	for i, proc := range procs {
		if got := proc.State(); got != StateStopped {
			t.Errorf("process %d State() = %s, want %s", i, got, StateStopped)
		}
	}

	waitPool(t, pool, 2*time.Second)
	if got := pool.Executed(); got != 2 {
		t.Errorf("Executed() = %d, want 2", got)
	}
	if got := pool.Size(); got != 2 {
		t.Errorf("Size() after Stop = %d, want 2", got)
	}
}

func TestPoolStopAndClear(t *testing.T) {
	useShell(t)
	pool := newTestPool(t, PoolOptions{Limit: 1})

	procs := []*Process{newShellProcess("sleep 10"), newShellProcess("sleep 10"), newShellProcess("sleep 10")}
	for _, proc := range procs {
		if err := pool.AddProcess(proc); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
	}
	waitFor(t, 2*time.Second, "first process to launch", func() bool { return procs[0].State() == StateLaunched })

	pool.StopAndClear()

	if got := pool.Size(); got != 0 {
		t.Errorf("Size() = %d, want 0", got)
	}
	if got := pool.Queued(); got != 0 {
		t.Errorf("Queued() = %d, want 0", got)
	}
	for i, proc := range procs {
		if proc.State() == StateLaunched {
			t.Errorf("process %d still launched after StopAndClear", i)
		}
		proc.Close()
	}
	waitFor(t, 2*time.Second, "running to drop", func() bool { return pool.Running() == 0 })
}

func TestPoolStopAndClearNeverLaunchesQueued(t *testing.T) {
	useShell(t)

	for round := 0; round < 20; round++ {
		var mu sync.Mutex
		launched := map[string]bool{}
		pool, err := NewPool(&PoolOptions{
			Limit:  1,
			Logger: testLogger(),
			OnStateChange: func(id string, _, newState State, _ error) {
				if newState == StateLaunched {
					mu.Lock()
					launched[id] = true
					mu.Unlock()
				}
			},
		})
		if err != nil {
			t.Fatalf("NewPool failed: %v", err)
		}

		first := newShellProcess("sleep 10")
		queued := []*Process{newShellProcess("sleep 10"), newShellProcess("sleep 10")}
		for _, proc := range append([]*Process{first}, queued...) {
			if err := pool.AddProcess(proc); err != nil {
				t.Fatalf("AddProcess failed: %v", err)
			}
		}
		waitFor(t, 2*time.Second, "first process to launch", func() bool { return first.State() == StateLaunched })

		pool.StopAndClear()
		first.Close()
		waitFor(t, 2*time.Second, "running to drop", func() bool { return pool.Running() == 0 })

		mu.Lock()
		for i, proc := range queued {
			if launched[proc.ID()] {
				t.Errorf("round %d: queued process %d launched during StopAndClear", round, i)
			}
		}
		mu.Unlock()
		for _, proc := range queued {
			proc.Close()
		}
		pool.Close()
	}
}

func TestPoolClearAfterWait(t *testing.T) {
	useShell(t)
	pool := newTestPool(t, PoolOptions{Limit: 2})

	for i := 0; i < 3; i++ {
		if err := pool.AddProcess(newShellProcess("true")); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
	}
	waitPool(t, pool, 2*time.Second)
	pool.ClearPool()

	if !pool.Empty() {
		t.Errorf("Size() = %d after ClearPool, want 0", pool.Size())
	}
	if got := pool.Executed(); got != 3 {
		t.Errorf("Executed() = %d, want 3", got)
	}

	// The pool keeps accepting work after being cleared.
	proc := newShellProcess("echo again")
	if err := pool.AddProcess(proc); err != nil {
		t.Fatalf("AddProcess after clear failed: %v", err)
	}
	waitPool(t, pool, 2*time.Second)
	if got := proc.Output(); len(got) != 1 || got[0] != "again" {
		t.Errorf("Output() = %v, want [again]", got)
	}
}

func TestPoolSpawnFailures(t *testing.T) {
	resetExecutable()
	t.Cleanup(resetExecutable)
	if err := Initialize("/nonexistent/command/that/does/not/exist"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	pool := newTestPool(t, PoolOptions{Limit: 1})

	procs := []*Process{New("a"), New("b")}
	for _, proc := range procs {
		proc.SetLogger(testLogger())
		if err := pool.AddProcess(proc); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
	}
	waitPool(t, pool, 2*time.Second)

	if got := pool.Failed(); got != 2 {
		t.Errorf("Failed() = %d, want 2", got)
	}
	if got := pool.Executed(); got != 0 {
		t.Errorf("Executed() = %d, want 0", got)
	}
	for i, proc := range procs {
		if got := proc.State(); got != StateError {
			t.Errorf("process %d State() = %s, want %s", i, got, StateError)
		}
	}
}

func TestPoolSkipsProcessStoppedWhileQueued(t *testing.T) {
	useShell(t)
	pool := newTestPool(t, PoolOptions{Limit: 1})

	blocker := newShellProcess("sleep 10")
	queued := newShellProcess("echo should-not-run")
	for _, proc := range []*Process{blocker, queued} {
		if err := pool.AddProcess(proc); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
	}
	waitFor(t, 2*time.Second, "blocker to launch", func() bool { return blocker.State() == StateLaunched })

	queued.Stop()
	blocker.Stop()
	waitPool(t, pool, 2*time.Second)

	if got := queued.State(); got != StateStopped {
		t.Errorf("queued State() = %s, want %s", got, StateStopped)
	}
	if got := pool.Failed(); got != 0 {
		t.Errorf("Failed() = %d, want 0", got)
	}
	if got := pool.Executed(); got != 1 {
		t.Errorf("Executed() = %d, want 1", got)
	}
}

func TestPoolOutputAndConfigure(t *testing.T) {
	useShell(t)

	handler := &testOutputHandler{}
	var mu sync.Mutex
	configured := 0
	pool := newTestPool(t, PoolOptions{
		Limit:  2,
		Output: handler,
		ConfigureProcess: func(proc *Process) {
			mu.Lock()
			configured++
			mu.Unlock()
			_ = proc.AddOption("-e")
		},
	})

	for i := 0; i < 2; i++ {
		if err := pool.AddProcess(New("-c", fmt.Sprintf("echo out%d", i))); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
	}
	waitPool(t, pool, 2*time.Second)

	mu.Lock()
	if configured != 2 {
		t.Errorf("ConfigureProcess ran %d times, want 2", configured)
	}
	mu.Unlock()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if got := len(handler.lines["stdout"]); got != 2 {
		t.Errorf("pool output handler saw %d stdout lines, want 2", got)
	}
}

func TestPoolConfigureAddsToExistingHandlers(t *testing.T) {
	useShell(t)

	poolOutput := &testOutputHandler{}
	extra := &testOutputHandler{}
	pool := newTestPool(t, PoolOptions{
		Limit:  2,
		Output: poolOutput,
		ConfigureProcess: func(proc *Process) {
			proc.AddOutputHandler(extra)
		},
	})

	own := &testOutputHandler{}
	withHandler := New("-c", "echo mine")
	withHandler.SetOutputHandler(own)
	if err := pool.AddProcess(withHandler); err != nil {
		t.Fatalf("AddProcess failed: %v", err)
	}
	if err := pool.AddProcess(New("-c", "echo shared")); err != nil {
		t.Fatalf("AddProcess failed: %v", err)
	}
	waitPool(t, pool, 2*time.Second)

	check := func(name string, h *testOutputHandler, want ...string) {
		h.mu.Lock()
		defer h.mu.Unlock()
		got := append([]string(nil), h.lines["stdout"]...)
		slices.Sort(got)
		if !slices.Equal(got, want) {
			t.Errorf("%s handler saw %v, want %v", name, got, want)
		}
	}
	check("own", own, "mine")
	check("pool", poolOutput, "shared")
	check("configured", extra, "mine", "shared")
}

func TestPoolClose(t *testing.T) {
	useShell(t)
	pool, err := NewPool(&PoolOptions{Limit: 1, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	running := newShellProcess("sleep 10")
	queued := newShellProcess("true")
	for _, proc := range []*Process{running, queued} {
		if err := pool.AddProcess(proc); err != nil {
			t.Fatalf("AddProcess failed: %v", err)
		}
	}
	waitFor(t, 2*time.Second, "launch", func() bool { return running.State() == StateLaunched })

	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	if got := running.State(); got != StateStopped {
		t.Errorf("running State() = %s, want %s", got, StateStopped)
	}
	if got := queued.State(); got != StateNotLaunched {
		t.Errorf("queued State() = %s, want %s", got, StateNotLaunched)
	}
	if err := pool.AddProcess(newShellProcess("true")); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("AddProcess after Close error = %v, want ErrPoolClosed", err)
	}

	pool.Close()
	pool.Wait()
}
