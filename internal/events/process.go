package events

import (
	"time"

	"github.com/smazurov/procpool/internal/process"
)

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// processOutput publishes the lines of one process.
type processOutput struct {
	bus *Bus
	id  string
}

func (o processOutput) HandleLine(source, line string) {
	o.bus.Publish(ProcessOutputEvent{ProcessID: o.id, Source: source, Line: line, Timestamp: now()})
}

// AttachPool extends opts so that every pooled process publishes its state
// changes, output lines and completion on bus. Callbacks and output handlers
// already present keep running first.
func AttachPool(bus *Bus, opts *process.PoolOptions) {
	onState := opts.OnStateChange
	opts.OnStateChange = func(id string, oldState, newState process.State, err error) {
		if onState != nil {
			onState(id, oldState, newState, err)
		}
		ev := ProcessStateChangedEvent{
			ProcessID: id,
			OldState:  string(oldState),
			NewState:  string(newState),
			Timestamp: now(),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		bus.Publish(ev)
	}

	configure := opts.ConfigureProcess
	opts.ConfigureProcess = func(proc *process.Process) {
		if configure != nil {
			configure(proc)
		}
		id := proc.ID()
		proc.AddOutputHandler(processOutput{bus: bus, id: id})
		proc.Finished(func(exitCode int) {
			bus.Publish(ProcessFinishedEvent{
				ProcessID: id,
				ExitCode:  exitCode,
				Lines:     len(proc.Output()),
				Timestamp: now(),
			})
		})
	}
}
