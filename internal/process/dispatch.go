package process

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Endl separates lines written with WriteLine and joined for FinishedParser.
const Endl = "\n"

// LineCallback receives one stdout line.
type LineCallback func(line string)

// FinishCallback receives the exit code of a finished process.
type FinishCallback func(exitCode int)

// Parser consumes process output. Line parsers receive one line at a time,
// finish parsers receive the whole stdout joined with Endl.
type Parser interface {
	Parse(text string)
}

type eventKind int

const (
	eventLine eventKind = iota
	eventFinish
	eventDone
)

type dispatchEvent struct {
	kind  eventKind
	line  string
	code  int
	state State
}

// callbacks is the per-process registry, invoked only by the dispatcher goroutine.
type callbacks struct {
	mu          sync.Mutex
	line        []LineCallback
	finish      []FinishCallback
	finishError []FinishCallback
	done        []func(State)
}

func (c *callbacks) lines() []LineCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.line
}

func (c *callbacks) finishers(code int) []FinishCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	if code == 0 {
		return c.finish
	}
	out := make([]FinishCallback, 0, len(c.finish)+len(c.finishError))
	out = append(out, c.finish...)
	return append(out, c.finishError...)
}

func (c *callbacks) doneHooks() []func(State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// EveryLine registers a callback invoked once per stdout line, in arrival order.
// Callbacks run on the process's dispatcher, never on the caller of Execute.
func (p *Process) EveryLine(cb LineCallback) {
	if cb == nil {
		return
	}
	p.callbacks.mu.Lock()
	defer p.callbacks.mu.Unlock()
	p.callbacks.line = append(p.callbacks.line, cb)
}

// Finished registers a callback invoked exactly once after the process finished
// and every line callback has run. It is not invoked for stopped processes.
func (p *Process) Finished(cb FinishCallback) {
	if cb == nil {
		return
	}
	p.callbacks.mu.Lock()
	defer p.callbacks.mu.Unlock()
	p.callbacks.finish = append(p.callbacks.finish, cb)
}

// FinishedError registers a callback invoked once if the process finishes
// with a non-zero exit code.
func (p *Process) FinishedError(cb FinishCallback) {
	if cb == nil {
		return
	}
	p.callbacks.mu.Lock()
	defer p.callbacks.mu.Unlock()
	p.callbacks.finishError = append(p.callbacks.finishError, cb)
}

// EveryLineParser feeds every stdout line to parser.
func (p *Process) EveryLineParser(parser Parser) {
	p.EveryLine(func(line string) { parser.Parse(line) })
}

// FinishedParser feeds the complete stdout, joined with Endl, to parser once
// the process finished.
func (p *Process) FinishedParser(parser Parser) {
	p.Finished(func(int) { parser.Parse(strings.Join(p.Output(), Endl)) })
}

// onDone registers an internal hook run as the last dispatched event of a
// launched process, whether it finished or was stopped.
func (p *Process) onDone(hook func(State)) {
	p.callbacks.mu.Lock()
	defer p.callbacks.mu.Unlock()
	p.callbacks.done = append(p.callbacks.done, hook)
}

// enqueueLine hands a line to the dispatcher. Lines are dropped once the
// process has been stopped.
func (p *Process) enqueueLine(ctx context.Context, line string) {
	select {
	case p.queue <- dispatchEvent{kind: eventLine, line: line}:
	case <-ctx.Done():
	}
}

// dispatch runs callbacks in queue order until the watcher closes the queue.
func (p *Process) dispatch(ctx context.Context) {
	for ev := range p.queue {
		switch ev.kind {
		case eventLine:
			if ctx.Err() != nil {
				continue
			}
			for _, cb := range p.callbacks.lines() {
				p.invoke("line", func() { cb(ev.line) })
			}
		case eventFinish:
			for _, cb := range p.callbacks.finishers(ev.code) {
				p.invoke("finish", func() { cb(ev.code) })
			}
		case eventDone:
			for _, hook := range p.callbacks.doneHooks() {
				p.invoke("done", func() { hook(ev.state) })
			}
		}
	}
}

// invoke runs fn, logging instead of propagating a panic.
func (p *Process) invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Callback panicked", "callback", kind, "error", fmt.Sprint(r))
		}
	}()
	fn()
}
