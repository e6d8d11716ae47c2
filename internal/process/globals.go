package process

import (
	"fmt"
	"slices"
	"sync"
)

// executable holds the process-wide spawn configuration.
// Written once by Initialize, read by every Execute.
var executable struct {
	mu            sync.RWMutex
	path          string
	initialized   bool
	globalOptions []string
}

// Initialize sets the path of the external program every Process launches.
// A bare program name is resolved through PATH at spawn time.
// Must be called exactly once before any Execute.
func Initialize(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty executable path", ErrInvalidConfiguration)
	}

	executable.mu.Lock()
	defer executable.mu.Unlock()

	if executable.initialized {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, executable.path)
	}
	executable.path = path
	executable.initialized = true
	return nil
}

// Initialized reports whether Initialize has been called.
func Initialized() bool {
	executable.mu.RLock()
	defer executable.mu.RUnlock()
	return executable.initialized
}

// Executable returns the path given to Initialize, or "" before it.
func Executable() string {
	executable.mu.RLock()
	defer executable.mu.RUnlock()
	return executable.path
}

// AddGlobalOption appends options placed before the per-process options of every
// subsequently launched process.
func AddGlobalOption(opts ...string) {
	executable.mu.Lock()
	defer executable.mu.Unlock()
	executable.globalOptions = append(executable.globalOptions, opts...)
}

// GlobalOptions returns a copy of the process-wide options.
func GlobalOptions() []string {
	executable.mu.RLock()
	defer executable.mu.RUnlock()
	return slices.Clone(executable.globalOptions)
}

// spawnConfig returns the executable path and a snapshot of the global options.
func spawnConfig() (string, []string, error) {
	executable.mu.RLock()
	defer executable.mu.RUnlock()
	if !executable.initialized {
		return "", nil, ErrNotInitialized
	}
	return executable.path, slices.Clone(executable.globalOptions), nil
}
