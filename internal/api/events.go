package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/procpool/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of process state changes, output lines and pool activity",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"process-state-changed": events.ProcessStateChangedEvent{},
		"process-output":        events.ProcessOutputEvent{},
		"process-finished":      events.ProcessFinishedEvent{},
		"pool-cleared":          events.PoolClearedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Output lines can arrive in bursts
		eventCh := make(chan any, 256)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ProcessStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessOutputEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessFinishedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PoolClearedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
