package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/procpool/internal/logging"
	"github.com/smazurov/procpool/internal/process"
)

// Result is the outcome of one job.
type Result struct {
	Name      string        `json:"name"`
	ProcessID string        `json:"process_id"`
	State     process.State `json:"state"`
	ExitCode  int           `json:"exit_code"`
	Lines     int           `json:"lines"`
	ErrLines  int           `json:"err_lines"`
	Error     string        `json:"error,omitempty"`
}

// Failed reports whether the job did not finish with exit code zero.
func (r Result) Failed() bool {
	return r.State != process.StateFinished || r.ExitCode != 0
}

// CountFailed returns the number of failed results.
func CountFailed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Runner executes the jobs of a File.
type Runner struct {
	logger logging.Logger
}

// NewRunner creates a runner. A nil logger uses the "jobs" module logger.
func NewRunner(logger logging.Logger) *Runner {
	if logger == nil {
		logger = logging.GetLogger("jobs")
	}
	return &Runner{logger: logger}
}

// echo logs every output line of one job.
type echo struct {
	logger logging.Logger
	job    string
}

func (e echo) HandleLine(source, line string) {
	if source == "stderr" {
		e.logger.Warn(line, "job", e.job, "source", source)
		return
	}
	e.logger.Info(line, "job", e.job, "source", source)
}

// Run initializes the executable if needed, runs every job through a pool
// bounded by f.Limit and returns one Result per job in file order. When ctx
// is cancelled the launched jobs are stopped and ctx.Err is returned along
// with the partial results.
func (r *Runner) Run(ctx context.Context, f *File) ([]Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := process.Initialize(f.Executable); err != nil {
		if !errors.Is(err, process.ErrAlreadyInitialized) {
			return nil, fmt.Errorf("failed to initialize executable: %w", err)
		}
		if current := process.Executable(); current != f.Executable {
			return nil, fmt.Errorf("jobs file wants executable %q but %q is configured: %w",
				f.Executable, current, process.ErrAlreadyInitialized)
		}
	}

	pool, err := process.NewPool(&process.PoolOptions{Limit: f.Limit, Logger: r.logger})
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	procs := make([]*process.Process, len(f.Jobs))
	results := make([]Result, len(f.Jobs))
	for i, job := range f.Jobs {
		results[i] = Result{Name: job.Name, State: process.StateNotLaunched}

		proc, err := r.build(f, job)
		if err == nil {
			err = pool.AddProcess(proc)
		}
		if err != nil {
			results[i].State = process.StateError
			results[i].Error = err.Error()
			r.logger.Error("Failed to queue job", "job", job.Name, "error", err)
			continue
		}
		procs[i] = proc
		results[i].ProcessID = proc.ID()
	}

	r.logger.Info("Running jobs", "count", len(f.Jobs), "limit", f.Limit)

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	var runErr error
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("Run cancelled, stopping jobs", "error", ctx.Err())
		runErr = ctx.Err()
		// Newest first, so a freed slot never admits a job about to be stopped.
		for i := len(procs) - 1; i >= 0; i-- {
			if procs[i] != nil {
				procs[i].Stop()
			}
		}
		<-done
	}

	for i, proc := range procs {
		if proc == nil {
			continue
		}
		fill(&results[i], proc.Info())
	}

	failed := CountFailed(results)
	r.logger.Info("Jobs complete", "total", len(results), "failed", failed)
	return results, runErr
}

// build creates the process for job. File-level options precede the job's own.
func (r *Runner) build(f *File, job Job) (*process.Process, error) {
	proc := process.New(job.Args...)
	proc.SetOutputHandler(echo{logger: r.logger, job: job.Name})

	opts := append(append([]string{}, f.GlobalOptions...), job.Options...)
	if len(opts) > 0 {
		if err := proc.AddOption(opts...); err != nil {
			return nil, err
		}
	}
	if err := proc.SetInput(job.Stdin); err != nil {
		return nil, err
	}
	return proc, nil
}

func fill(res *Result, info process.Info) {
	res.State = info.State
	res.Lines = info.Lines
	res.ErrLines = info.ErrLines
	if info.ExitCode != nil {
		res.ExitCode = *info.ExitCode
	}
	if info.LastError != nil {
		res.Error = info.LastError.Error()
	}
}
