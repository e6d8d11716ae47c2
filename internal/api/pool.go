package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/procpool/internal/api/models"
	"github.com/smazurov/procpool/internal/events"
)

// registerPoolRoutes registers pool-level endpoints.
func (s *Server) registerPoolRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-pool",
		Method:      http.MethodGet,
		Path:        "/api/pool",
		Summary:     "Pool Status",
		Description: "Get the pool limit and its execution counters",
		Tags:        []string{"pool"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.PoolResponse, error) {
		return &models.PoolResponse{Body: s.poolData()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-pool",
		Method:      http.MethodPost,
		Path:        "/api/pool/stop",
		Summary:     "Stop Pool",
		Description: "Stop every launched process. Queued processes stay queued.",
		Tags:        []string{"pool"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.PoolActionResponse, error) {
		s.pool.Stop()
		return &models.PoolActionResponse{
			Body: models.PoolActionData{Status: "ok", Message: "Launched processes stopped"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-pool",
		Method:      http.MethodDelete,
		Path:        "/api/pool",
		Summary:     "Clear Pool",
		Description: "Release every pooled process, stopping launched ones first unless stop=false",
		Tags:        []string{"pool"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.PoolClearRequest) (*models.PoolActionResponse, error) {
		if input.Stop {
			s.pool.StopAndClear()
		} else {
			s.pool.ClearPool()
		}
		s.eventBus.Publish(events.PoolClearedEvent{
			Stopped:   input.Stop,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
		return &models.PoolActionResponse{
			Body: models.PoolActionData{Status: "ok", Message: "Pool cleared"},
		}, nil
	})
}

func (s *Server) poolData() models.PoolData {
	return models.PoolData{
		Limit:    s.pool.Limit(),
		Size:     s.pool.Size(),
		Running:  s.pool.Running(),
		Queued:   s.pool.Queued(),
		Executed: s.pool.Executed(),
		Failed:   s.pool.Failed(),
		Empty:    s.pool.Empty(),
	}
}
