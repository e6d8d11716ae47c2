package process

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/smazurov/procpool/internal/logging"
)

// Pool owns a collection of processes and launches them in insertion order,
// never running more than its limit at once.
type Pool struct {
	opts   PoolOptions
	logger logging.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	processes []*Process
	byID      map[string]*Process
	next      int  // index of the next process to admit
	paused    bool // admission paused by lock
	admitting bool // admission decision in flight
	closed    bool

	running  atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64

	done chan struct{} // closed when the admission goroutine exits
}

// NewPool creates a pool and starts its admission goroutine.
func NewPool(opts *PoolOptions) (*Pool, error) {
	if opts == nil || opts.Limit < 1 {
		return nil, fmt.Errorf("%w: pool limit must be at least 1", ErrInvalidConfiguration)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("pool")
	}

	p := &Pool{
		opts:   *opts,
		logger: logger,
		byID:   make(map[string]*Process),
		done:   make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	go p.admit()
	return p, nil
}

// AddProcess transfers ownership of an unlaunched process to the pool.
func (p *Pool) AddProcess(proc *Process) error {
	if proc == nil {
		return fmt.Errorf("%w: nil process", ErrInvalidConfiguration)
	}
	if proc.State() != StateNotLaunched {
		return ErrAlreadyLaunched
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if _, exists := p.byID[proc.ID()]; exists {
		return fmt.Errorf("%w: process %s already in pool", ErrInvalidConfiguration, proc.ID())
	}

	p.attach(proc)
	p.processes = append(p.processes, proc)
	p.byID[proc.ID()] = proc
	p.cond.Broadcast()

	p.logger.Debug("Process queued", "process_id", proc.ID(), "queued", len(p.processes)-p.next)
	return nil
}

// attach installs the pool's hooks on proc. Caller holds mu.
func (p *Pool) attach(proc *Process) {
	if p.opts.Output != nil {
		proc.mu.Lock()
		if proc.outputHandler == nil {
			proc.outputHandler = p.opts.Output
		}
		proc.mu.Unlock()
	}
	if p.opts.ConfigureProcess != nil {
		p.opts.ConfigureProcess(proc)
	}
	if cb := p.opts.OnStateChange; cb != nil {
		id := proc.ID()
		proc.addStateHook(func(oldState, newState State, err error) {
			cb(id, oldState, newState, err)
		})
	}
	proc.onDone(func(State) { p.complete() })
}

// admit is the admission goroutine. It sleeps on the condition variable until
// a process can be launched or the pool closes.
func (p *Pool) admit() {
	defer close(p.done)

	for {
		p.mu.Lock()
		for !p.closed && !p.canAdmitLocked() {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		proc := p.processes[p.next]
		p.next++
		p.running.Add(1)
		p.admitting = true
		p.mu.Unlock()

		p.launch(proc)

		p.mu.Lock()
		p.admitting = false
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *Pool) canAdmitLocked() bool {
	return !p.paused && p.next < len(p.processes) && p.running.Load() < int64(p.opts.Limit)
}

// launch executes an admitted process, returning its slot if it never ran.
func (p *Pool) launch(proc *Process) {
	err := proc.Execute()
	if err == nil {
		return
	}

	p.running.Add(-1)
	if errors.Is(err, ErrStopped) {
		p.logger.Debug("Skipping process stopped before launch", "process_id", proc.ID())
		return
	}
	p.failed.Add(1)
	p.logger.Error("Failed to launch process", "process_id", proc.ID(), "error", err)
}

// complete runs on the dispatcher of a launched process once it is terminal.
func (p *Pool) complete() {
	p.mu.Lock()
	p.running.Add(-1)
	p.executed.Add(1)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// lock pauses admission and waits for an in-flight admission to settle.
func (p *Pool) lock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	for p.admitting {
		p.cond.Wait()
	}
}

// unlock resumes admission.
func (p *Pool) unlock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.cond.Broadcast()
}

// Size returns the number of processes owned by the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processes)
}

// Empty reports whether the pool owns no processes.
func (p *Pool) Empty() bool {
	return p.Size() == 0
}

// Limit returns the simultaneous-execution ceiling.
func (p *Pool) Limit() int {
	return p.opts.Limit
}

// Running returns the number of currently launched processes.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Executed returns the number of launched processes that reached a terminal state.
func (p *Pool) Executed() int {
	return int(p.executed.Load())
}

// Failed returns the number of processes that could not be spawned.
func (p *Pool) Failed() int {
	return int(p.failed.Load())
}

// Queued returns the number of processes waiting for admission.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processes) - p.next
}

// Get returns the pooled process with the given ID.
func (p *Pool) Get(id string) (*Process, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	proc, ok := p.byID[id]
	return proc, ok
}

// Processes returns the pooled processes in insertion order.
func (p *Pool) Processes() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.processes)
}

// Wait blocks until every pooled process has reached a terminal state.
func (p *Pool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && (p.next < len(p.processes) || p.admitting || p.running.Load() > 0) {
		p.cond.Wait()
	}
}

// Stop stops every launched process. Queued processes stay queued.
func (p *Pool) Stop() {
	p.lock()
	defer p.unlock()
	p.stopLaunched(p.Processes())
}

func (p *Pool) stopLaunched(procs []*Process) int {
	stopped := 0
	for _, proc := range procs {
		if proc.State() == StateLaunched {
			proc.Stop()
			stopped++
		}
	}
	if stopped > 0 {
		p.logger.Info("Stopped running processes", "count", stopped)
	}
	return stopped
}

// ClearPool releases every process. Processes still launched are stopped
// with a warning; callers should Stop first.
func (p *Pool) ClearPool() {
	p.lock()
	defer p.unlock()
	p.release()
}

// release drops every process. Caller has paused admission with lock.
func (p *Pool) release() {
	p.mu.Lock()
	procs := p.processes
	p.processes = nil
	p.byID = make(map[string]*Process)
	p.next = 0
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, proc := range procs {
		if proc.State() == StateLaunched {
			p.logger.Warn("Clearing a running process, stopping it", "process_id", proc.ID())
			proc.Stop()
		}
	}
	p.logger.Debug("Pool cleared", "released", len(procs))
}

// StopAndClear stops every launched process and releases the collection
// without resuming admission in between.
func (p *Pool) StopAndClear() {
	p.lock()
	defer p.unlock()
	p.stopLaunched(p.Processes())
	p.release()
}

// Close stops every process, ends the admission goroutine and releases all
// processes. The pool cannot be used afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.lock()
	p.stopLaunched(p.Processes())

	p.mu.Lock()
	p.closed = true
	procs := p.processes
	p.processes = nil
	p.byID = make(map[string]*Process)
	p.next = 0
	p.cond.Broadcast()
	p.mu.Unlock()

	<-p.done
	for _, proc := range procs {
		proc.Close()
	}
	p.logger.Info("Pool closed", "executed", p.Executed(), "failed", p.Failed())
}
