package events

// Event type constants for kelindar/event.
const (
	TypeProcessStateChanged uint32 = iota + 1
	TypeProcessOutput
	TypeProcessFinished
	TypePoolCleared
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessStateChangedEvent is published on every transition of a pooled process.
type ProcessStateChangedEvent struct {
	ProcessID string `json:"process_id" example:"7b0c7f8e-2f7a-4c39-9d0e-6f8d2b1f4a11" doc:"Process identifier"`
	OldState  string `json:"old_state" example:"not_launched" doc:"State before the transition"`
	NewState  string `json:"new_state" example:"launched" doc:"State after the transition"`
	Error     string `json:"error,omitempty" doc:"Error attached to the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessStateChangedEvent.
func (e ProcessStateChangedEvent) Type() uint32 { return TypeProcessStateChanged }

// ProcessOutputEvent carries one output line of a pooled process.
type ProcessOutputEvent struct {
	ProcessID string `json:"process_id" doc:"Process identifier"`
	Source    string `json:"source" example:"stdout" enum:"stdout,stderr" doc:"Stream the line was read from"`
	Line      string `json:"line" doc:"Output line without its terminator"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessOutputEvent.
func (e ProcessOutputEvent) Type() uint32 { return TypeProcessOutput }

// ProcessFinishedEvent is published once a process exited on its own and all
// of its lines were dispatched.
type ProcessFinishedEvent struct {
	ProcessID string `json:"process_id" doc:"Process identifier"`
	ExitCode  int    `json:"exit_code" example:"0" doc:"Exit code of the process"`
	Lines     int    `json:"lines" example:"12" doc:"Number of stdout lines"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessFinishedEvent.
func (e ProcessFinishedEvent) Type() uint32 { return TypeProcessFinished }

// PoolClearedEvent is published when the pool releases its processes.
type PoolClearedEvent struct {
	Stopped   bool   `json:"stopped" doc:"Whether launched processes were stopped first"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PoolClearedEvent.
func (e PoolClearedEvent) Type() uint32 { return TypePoolCleared }
