package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smazurov/procpool/internal/events"
)

type fakePool struct {
	limit, size, running, queued, executed, failed int
}

func (f fakePool) Limit() int    { return f.limit }
func (f fakePool) Size() int     { return f.size }
func (f fakePool) Running() int  { return f.running }
func (f fakePool) Queued() int   { return f.queued }
func (f fakePool) Executed() int { return f.executed }
func (f fakePool) Failed() int   { return f.failed }

func TestTrackPool(t *testing.T) {
	TrackPool(nil)
	if got := testutil.ToFloat64(poolRunning); got != 0 {
		t.Errorf("running without a pool = %v, want 0", got)
	}

	TrackPool(fakePool{limit: 4, size: 7, running: 3, queued: 2, executed: 2, failed: 1})
	defer TrackPool(nil)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"limit", testutil.ToFloat64(poolLimit), 4},
		{"size", testutil.ToFloat64(poolSize), 7},
		{"running", testutil.ToFloat64(poolRunning), 3},
		{"queued", testutil.ToFloat64(poolQueued), 2},
		{"executed", testutil.ToFloat64(poolExecuted), 2},
		{"failed", testutil.ToFloat64(poolFailed), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

// eventually polls cond because the bus delivers asynchronously.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestObserve(t *testing.T) {
	bus := events.New()
	unsub := Observe(bus)
	defer unsub()

	launched := testutil.ToFloat64(processTransitions.WithLabelValues("launched"))
	failures := testutil.ToFloat64(processExits.WithLabelValues("failure"))
	stderr := testutil.ToFloat64(outputLines.WithLabelValues("stderr"))

	bus.Publish(events.ProcessStateChangedEvent{ProcessID: "p1", NewState: "launched"})
	bus.Publish(events.ProcessFinishedEvent{ProcessID: "p1", ExitCode: 2})
	bus.Publish(events.ProcessOutputEvent{ProcessID: "p1", Source: "stderr", Line: "x"})
	bus.Publish(events.ProcessOutputEvent{ProcessID: "p1", Source: "stderr", Line: "y"})

	eventually(t, "transition counter", func() bool {
		return testutil.ToFloat64(processTransitions.WithLabelValues("launched")) == launched+1
	})
	eventually(t, "exit counter", func() bool {
		return testutil.ToFloat64(processExits.WithLabelValues("failure")) == failures+1
	})
	eventually(t, "output counter", func() bool {
		return testutil.ToFloat64(outputLines.WithLabelValues("stderr")) == stderr+2
	})
}

func TestHandler(t *testing.T) {
	TrackPool(fakePool{limit: 2})
	defer TrackPool(nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); !strings.Contains(body, "procpool_pool_limit 2") {
		t.Errorf("expected procpool_pool_limit in response, got:\n%s", body)
	}
}
