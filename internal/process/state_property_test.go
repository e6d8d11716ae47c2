package process

import (
	"fmt"
	"sync"
	"testing"

	"pgregory.net/rapid"
)

var allStates = []State{StateNotLaunched, StateLaunched, StateStopped, StateError, StateFinished}

// Terminal states never transition, and every allowed transition moves forward.
func TestProperty_StateMachine(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		from := rapid.SampledFrom(allStates).Draw(rt, "from")
		to := rapid.SampledFrom(allStates).Draw(rt, "to")

		if from.Terminal() && canTransition(from, to) {
			rt.Fatalf("terminal state %s allows transition to %s", from, to)
		}
		if canTransition(from, to) && to == StateNotLaunched {
			rt.Fatalf("%s allows transition back to not_launched", from)
		}
		if from == to && canTransition(from, to) {
			rt.Fatalf("self transition allowed for %s", from)
		}
	})
}

// For any limit and workload, the pool never has more than limit processes
// launched and executes every process exactly once.
func TestProperty_PoolLimit(t *testing.T) {
	useShell(t)

	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 3).Draw(rt, "limit")
		count := rapid.IntRange(0, 6).Draw(rt, "count")

		var mu sync.Mutex
		active, maxActive, launches := 0, 0, 0
		pool, err := NewPool(&PoolOptions{
			Limit:  limit,
			Logger: testLogger(),
			OnStateChange: func(_ string, _, newState State, _ error) {
				mu.Lock()
				defer mu.Unlock()
				switch newState {
				case StateLaunched:
					launches++
					active++
					maxActive = max(maxActive, active)
				case StateFinished, StateStopped:
					active--
				}
			},
		})
		if err != nil {
			rt.Fatalf("NewPool failed: %v", err)
		}
		defer pool.Close()

		for i := 0; i < count; i++ {
			if err := pool.AddProcess(newShellProcess(fmt.Sprintf("echo %d", i))); err != nil {
				rt.Fatalf("AddProcess failed: %v", err)
			}
		}
		pool.Wait()

		mu.Lock()
		defer mu.Unlock()
		if maxActive > limit {
			rt.Fatalf("observed %d simultaneous processes with limit %d", maxActive, limit)
		}
		if launches != count || pool.Executed() != count {
			rt.Fatalf("launched %d, executed %d, want %d", launches, pool.Executed(), count)
		}
	})
}
