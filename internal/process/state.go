package process

// State represents the lifecycle state of a Process.
type State string

// Process states.
const (
	StateNotLaunched State = "not_launched" // Created, not yet spawned
	StateLaunched    State = "launched"     // OS process running
	StateStopped     State = "stopped"      // Terminated by Stop
	StateError       State = "error"        // Spawn failed
	StateFinished    State = "finished"     // Exited and fully drained
)

// Terminal reports whether no further transitions can occur from s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError || s == StateFinished
}

// canTransition reports whether the state machine allows from -> to.
func canTransition(from, to State) bool {
	switch from {
	case StateNotLaunched:
		return to == StateLaunched || to == StateError || to == StateStopped
	case StateLaunched:
		return to == StateFinished || to == StateStopped
	default:
		return false
	}
}

// Info is a point-in-time summary of a process.
type Info struct {
	ID        string
	Args      []string
	State     State
	ExitCode  *int
	Lines     int
	ErrLines  int
	LastError error
}
