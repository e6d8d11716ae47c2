package process

import "github.com/smazurov/procpool/internal/logging"

// StateChangeCallback is called when a pooled process changes state.
// Used for domain-specific reactions (e.g., events, metrics).
type StateChangeCallback func(id string, oldState, newState State, err error)

// Configurer configures a Process when it is added to the pool.
type Configurer func(proc *Process)

// PoolOptions configures a new Pool.
type PoolOptions struct {
	// Limit is the maximum number of simultaneously launched processes (required, >= 1).
	Limit int

	// OnStateChange is called when a pooled process transitions (optional).
	OnStateChange StateChangeCallback

	// Output receives every output line of pooled processes that have no
	// handler of their own (optional).
	Output OutputHandler

	// ConfigureProcess allows customization of a Process as it joins the pool (optional).
	// It runs after Output is installed, under the pool lock, and must not call
	// back into the pool.
	ConfigureProcess Configurer

	// Logger for pool operations. If nil, uses the "pool" module logger.
	Logger logging.Logger
}
