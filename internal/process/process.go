package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/smazurov/procpool/internal/logging"
	"github.com/sourcegraph/conc/pool"
)

const (
	// processWorkers bounds the goroutines owned by one process: stdout drain,
	// stderr drain, exit watcher, callback dispatcher and the optional input feeder.
	processWorkers = 5

	dispatchQueueSize = 256
	maxLineSize       = 1024 * 1024
)

// OutputHandler receives every output line of the subprocess.
// Implementations can forward output to an event bus, store metrics, etc.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a stderr line and returns the log level and message.
// Used to extract structured log info from the external program's diagnostics.
type LogParser func(line string) (level, msg string)

// stateHook observes state transitions. Hooks run outside the field lock but
// under the transition lock, so they are delivered in transition order and must
// not call Execute or Stop.
type stateHook func(oldState, newState State, err error)

// Process owns one invocation of the external program: spawn, asynchronous
// output draining, input, termination and callback dispatch.
type Process struct {
	id      string
	args    []string
	options []string

	logger        logging.Logger
	processLogger logging.Logger // logger for stderr lines (nil = use logger)
	logParser     LogParser      // parses stderr lines for log level (nil = warn)
	outputHandler OutputHandler

	// transitionMu serializes state transitions and their notifications.
	transitionMu sync.Mutex

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	exitCode int
	lastErr  error
	output   []string
	errLines []string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	cancel   context.CancelFunc
	queue    chan dispatchEvent
	workers  *pool.Pool
	hooks    []stateHook

	input     *string // written once launched, then stdin is closed
	stdinMu   sync.Mutex
	callbacks callbacks
}

// New creates an unlaunched process that will run the initialized executable
// with args.
func New(args ...string) *Process {
	id := uuid.NewString()
	p := &Process{
		id:     id,
		args:   slices.Clone(args),
		logger: logging.GetLogger("process").With("process_id", id),
		state:  StateNotLaunched,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// ID returns the unique identifier of the process.
func (p *Process) ID() string {
	return p.id
}

// Args returns the arguments given at construction.
func (p *Process) Args() []string {
	return slices.Clone(p.args)
}

// SetLogger replaces the diagnostics logger.
func (p *Process) SetLogger(logger logging.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}

// SetLogParser sets a custom logger and log parser for stderr output.
// The parser extracts the log level from program-specific output formats.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processLogger = logger
	p.logParser = parser
}

// SetOutputHandler sets a handler that sees every stdout and stderr line.
func (p *Process) SetOutputHandler(handler OutputHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputHandler = handler
}

// AddOutputHandler installs handler next to any handler already set. Both
// see every line, the earlier one first.
func (p *Process) AddOutputHandler(handler OutputHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outputHandler == nil {
		p.outputHandler = handler
		return
	}
	p.outputHandler = outputHandlers{p.outputHandler, handler}
}

type outputHandlers []OutputHandler

func (hs outputHandlers) HandleLine(source, line string) {
	for _, h := range hs {
		h.HandleLine(source, line)
	}
}

// AddOption appends options placed between the global options and the arguments.
func (p *Process) AddOption(opts ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateNotLaunched {
		return ErrAlreadyLaunched
	}
	p.options = append(p.options, opts...)
	return nil
}

// SetInput sets text to write to standard input as soon as the process is
// launched. Input is closed afterwards so the program sees EOF.
func (p *Process) SetInput(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateNotLaunched {
		return ErrAlreadyLaunched
	}
	p.input = &text
	return nil
}

// Options returns the per-process options.
func (p *Process) Options() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.options)
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Output returns the stdout lines captured so far.
func (p *Process) Output() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.output)
}

// Errors returns the stderr lines captured so far.
func (p *Process) Errors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.errLines)
}

// ExitCode returns the exit code of a finished process.
func (p *Process) ExitCode() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateFinished:
		return p.exitCode, nil
	case StateNotLaunched, StateError:
		return 0, ErrNotStarted
	default:
		return 0, ErrNotFinished
	}
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{
		ID:        p.id,
		Args:      slices.Clone(p.args),
		State:     p.state,
		Lines:     len(p.output),
		ErrLines:  len(p.errLines),
		LastError: p.lastErr,
	}
	if p.state == StateFinished {
		code := p.exitCode
		info.ExitCode = &code
	}
	return info
}

// addStateHook registers an observer of state transitions.
func (p *Process) addStateHook(hook stateHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
}

// notifyState runs state hooks. Caller holds transitionMu.
func (p *Process) notifyState(oldState, newState State, err error) {
	if !canTransition(oldState, newState) {
		p.logger.Error("Invalid state transition", "from", oldState, "to", newState)
	}
	p.mu.Lock()
	hooks := p.hooks
	p.mu.Unlock()
	for _, hook := range hooks {
		p.invoke("state", func() { hook(oldState, newState, err) })
	}
}

// Execute spawns the external program and starts draining its output.
// It returns once the process is launched; callbacks fire asynchronously.
func (p *Process) Execute() error {
	p.transitionMu.Lock()
	defer p.transitionMu.Unlock()

	p.mu.Lock()
	switch p.state {
	case StateNotLaunched:
	case StateStopped:
		p.mu.Unlock()
		return ErrStopped
	default:
		p.mu.Unlock()
		return ErrAlreadyLaunched
	}

	path, globals, err := spawnConfig()
	if err != nil {
		p.mu.Unlock()
		return err
	}

	argv := make([]string, 0, len(globals)+len(p.options)+len(p.args))
	argv = append(argv, globals...)
	argv = append(argv, p.options...)
	argv = append(argv, p.args...)

	stdin, stdout, stderr, cmd, err := p.spawn(path, argv)
	if err != nil {
		spawnErr := fmt.Errorf("%w: %w", ErrSpawnFailure, err)
		p.state = StateError
		p.lastErr = spawnErr
		p.cond.Broadcast()
		p.mu.Unlock()
		p.logger.Error("Failed to start process", "error", err, "path", path, "args", argv)
		p.notifyState(StateNotLaunched, StateError, spawnErr)
		return spawnErr
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cmd = cmd
	p.stdin = stdin
	p.cancel = cancel
	p.queue = make(chan dispatchEvent, dispatchQueueSize)
	p.workers = pool.New().WithMaxGoroutines(processWorkers)
	p.state = StateLaunched
	p.cond.Broadcast()
	workers := p.workers
	input := p.input
	p.mu.Unlock()

	p.logger.Info("Process started", "pid", cmd.Process.Pid, "path", path, "args", argv)
	p.notifyState(StateNotLaunched, StateLaunched, nil)

	var drains sync.WaitGroup
	drains.Add(2)
	workers.Go(func() {
		defer drains.Done()
		p.drainStdout(ctx, stdout)
	})
	workers.Go(func() {
		defer drains.Done()
		p.drainStderr(stderr)
	})
	workers.Go(func() { p.watch(&drains) })
	workers.Go(func() { p.dispatch(ctx) })
	if input != nil {
		workers.Go(func() { p.feed(*input) })
	}

	return nil
}

// feed writes the initial input and closes stdin.
func (p *Process) feed(text string) {
	if err := p.WriteInput(text); err != nil && !errors.Is(err, ErrNotStarted) {
		p.logger.Warn("Failed to write input", "error", err)
	}
	p.CloseInput()
}

// spawn wires the three pipes and starts the command. Caller holds mu.
func (p *Process) spawn(path string, argv []string) (io.WriteCloser, io.ReadCloser, io.ReadCloser, *exec.Cmd, error) {
	cmd := exec.Command(path, argv...)
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, nil, err
	}
	return stdin, stdout, stderr, cmd, nil
}

// drainStdout appends stdout lines and hands them to the dispatcher.
func (p *Process) drainStdout(ctx context.Context, reader io.Reader) {
	p.scan(reader, "stdout", func(line string, handler OutputHandler) {
		p.mu.Lock()
		p.output = append(p.output, line)
		p.mu.Unlock()

		if handler != nil {
			handler.HandleLine("stdout", line)
		}
		p.enqueueLine(ctx, line)
	})
}

// drainStderr appends stderr lines and logs them. They are not line events.
func (p *Process) drainStderr(reader io.Reader) {
	p.mu.Lock()
	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}
	parser := p.logParser
	p.mu.Unlock()

	p.scan(reader, "stderr", func(line string, handler OutputHandler) {
		p.mu.Lock()
		p.errLines = append(p.errLines, line)
		p.mu.Unlock()

		if handler != nil {
			handler.HandleLine("stderr", line)
		}

		level, msg := "warning", line
		if parser != nil {
			level, msg = parser(line)
		}
		switch level {
		case "fatal", "error":
			logger.Error(msg, "source", "stderr")
		case "warning", "warn":
			logger.Warn(msg, "source", "stderr")
		case "debug", "trace":
			logger.Debug(msg, "source", "stderr")
		default:
			logger.Info(msg, "source", "stderr")
		}
	})
}

// scan reads reader line by line until it closes. A line longer than
// maxLineSize is cut at the cap and the remainder skipped; later lines are
// still delivered.
func (p *Process) scan(reader io.Reader, source string, handle func(line string, handler OutputHandler)) {
	p.mu.Lock()
	handler := p.outputHandler
	p.mu.Unlock()

	br := bufio.NewReaderSize(reader, 64*1024)
	var line []byte
	size := 0
	for {
		frag, isPrefix, err := br.ReadLine()
		size += len(frag)
		if room := maxLineSize - len(line); room > 0 {
			line = append(line, frag[:min(len(frag), room)]...)
		}
		if err == nil && isPrefix {
			continue
		}
		if err == nil || len(line) > 0 {
			if size > maxLineSize {
				p.recordTruncation(source, size)
			}
			handle(string(line), handler)
		}
		line, size = line[:0], 0

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Warn("Error reading output", "source", source, "error", err)
				_, _ = io.Copy(io.Discard, reader)
			}
			return
		}
	}
}

// recordTruncation notes an oversized line in lastErr.
func (p *Process) recordTruncation(source string, size int) {
	err := fmt.Errorf("%w: %s line of %d bytes cut to %d", ErrLineTooLong, source, size, maxLineSize)
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	p.logger.Warn("Output line truncated", "source", source, "size", size, "limit", maxLineSize)
}

// watch joins both drains, reaps the process and completes the lifecycle.
func (p *Process) watch(drains *sync.WaitGroup) {
	drains.Wait()

	waitErr := p.cmd.Wait()
	exitCode := p.handleProcessExit(waitErr)

	p.transitionMu.Lock()
	p.mu.Lock()
	p.exitCode = exitCode
	finished := p.state == StateLaunched
	if finished {
		p.state = StateFinished
		if exitCode != 0 {
			p.lastErr = fmt.Errorf("process exited with code %d", exitCode)
		}
	}
	p.closeStdinLocked()
	state := p.state
	lastErr := p.lastErr
	p.cond.Broadcast()
	p.mu.Unlock()

	if finished {
		p.logger.Info("Process exited", "exit_code", exitCode)
		p.notifyState(StateLaunched, StateFinished, lastErr)
	}
	p.transitionMu.Unlock()

	if finished {
		p.queue <- dispatchEvent{kind: eventFinish, code: exitCode}
	}
	p.queue <- dispatchEvent{kind: eventDone, state: state}
	close(p.queue)
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError (-1 if killed by a
// signal), or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// handleProcessExit extracts exit code from process error and logs non-ExitError errors.
func (p *Process) handleProcessExit(waitErr error) int {
	exitCode := exitCodeFromError(waitErr)
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		p.logger.Error("Process wait failed", "error", waitErr)
	}
	return exitCode
}

// closeStdinLocked releases the input pipe. Caller holds mu.
func (p *Process) closeStdinLocked() {
	if p.stdin == nil {
		return
	}
	if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Debug("Failed to close stdin", "error", err)
	}
	p.stdin = nil
}

// WriteInput writes text to the process's standard input.
// It is a no-op once the input pipe has been closed.
func (p *Process) WriteInput(text string) error {
	p.mu.Lock()
	state := p.state
	stdin := p.stdin
	p.mu.Unlock()

	if state != StateLaunched {
		return ErrNotStarted
	}
	if stdin == nil {
		return nil
	}

	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if _, err := io.WriteString(stdin, text); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return nil
		}
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// WriteLine writes text followed by Endl.
func (p *Process) WriteLine(text string) error {
	return p.WriteInput(text + Endl)
}

// CloseInput closes the standard input so the program sees EOF.
func (p *Process) CloseInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeStdinLocked()
}

// WaitForStart blocks until the process has left the not_launched state.
func (p *Process) WaitForStart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.state == StateNotLaunched {
		p.cond.Wait()
	}
}

// WaitForFinish blocks until the process reaches a terminal state.
func (p *Process) WaitForFinish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.state.Terminal() {
		p.cond.Wait()
	}
}

// WaitForFinishContext is WaitForFinish bounded by ctx.
func (p *Process) WaitForFinishContext(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.state.Terminal() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cond.Wait()
	}
	return nil
}

// Stop terminates the process. Before launch it prevents the spawn; on a
// terminal process it is a no-op.
func (p *Process) Stop() {
	p.transitionMu.Lock()
	defer p.transitionMu.Unlock()

	p.mu.Lock()
	switch p.state {
	case StateNotLaunched:
		p.state = StateStopped
		p.cond.Broadcast()
		p.mu.Unlock()
		p.notifyState(StateNotLaunched, StateStopped, nil)
		return
	case StateLaunched:
	default:
		p.mu.Unlock()
		return
	}

	p.closeStdinLocked()
	p.state = StateStopped
	cmd := p.cmd
	cancel := p.cancel
	p.cond.Broadcast()
	p.mu.Unlock()

	cancel()
	p.logger.Info("Stopping process", "pid", cmd.Process.Pid)
	if err := killProcessGroup(cmd); err != nil {
		p.logger.Warn("Failed to kill process", "error", err)
	}
	p.notifyState(StateLaunched, StateStopped, nil)
}

// Close releases the process. A process still launched is closed forcibly
// with a warning; Close then waits for its goroutines to exit.
func (p *Process) Close() {
	p.mu.Lock()
	launched := p.state == StateLaunched
	if launched {
		p.closeStdinLocked()
	}
	workers := p.workers
	p.mu.Unlock()

	if launched {
		p.logger.Warn("Process closed without being stopped")
		p.Stop()
	}
	if workers != nil {
		workers.Wait()
	}
}
