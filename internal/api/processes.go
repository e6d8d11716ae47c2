package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/procpool/internal/api/models"
	"github.com/smazurov/procpool/internal/process"
)

// registerProcessRoutes registers endpoints for individual processes.
func (s *Server) registerProcessRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/api/processes",
		Summary:     "List Processes",
		Description: "List pooled processes in insertion order",
		Tags:        []string{"processes"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ProcessListResponse, error) {
		procs := s.pool.Processes()
		data := make([]models.ProcessData, 0, len(procs))
		for _, proc := range procs {
			data = append(data, toProcessData(proc))
		}
		return &models.ProcessListResponse{
			Body: models.ProcessListData{Processes: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-process",
		Method:        http.MethodPost,
		Path:          "/api/processes",
		Summary:       "Create Process",
		Description:   "Queue a new process for execution. Either args or command must name at least one argument. It launches once the pool has a free slot.",
		Tags:          []string{"processes"},
		DefaultStatus: http.StatusCreated,
		Security:      withAuth(),
		Errors:        []int{400, 401, 409},
	}, func(_ context.Context, input *models.ProcessCreateRequest) (*models.ProcessResponse, error) {
		proc, err := s.newProcess(&input.Body)
		if err != nil {
			return nil, err
		}
		if err := s.pool.AddProcess(proc); err != nil {
			return nil, processError(err)
		}
		s.logger.Info("Process queued via API", "process_id", proc.ID(), "args", proc.Args())
		return &models.ProcessResponse{Body: toProcessData(proc)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-process",
		Method:      http.MethodGet,
		Path:        "/api/processes/{id}",
		Summary:     "Get Process",
		Description: "Get a process with its captured output",
		Tags:        []string{"processes"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.ProcessIDRequest) (*models.ProcessDetailResponse, error) {
		proc, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		return &models.ProcessDetailResponse{
			Body: models.ProcessDetailData{
				ProcessData: toProcessData(proc),
				Output:      nonNil(proc.Output()),
				Errors:      nonNil(proc.Errors()),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-process",
		Method:      http.MethodPost,
		Path:        "/api/processes/{id}/stop",
		Summary:     "Stop Process",
		Description: "Stop a process. Stopping a queued process prevents it from launching.",
		Tags:        []string{"processes"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.ProcessIDRequest) (*models.ProcessResponse, error) {
		proc, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		proc.Stop()
		return &models.ProcessResponse{Body: toProcessData(proc)}, nil
	})
}

func (s *Server) newProcess(body *models.ProcessCreateData) (*process.Process, error) {
	args := body.Args
	if len(args) == 0 && body.Command != "" {
		parsed, err := process.SplitArgs(body.Command)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid command", err)
		}
		args = parsed
	}
	if len(args) == 0 {
		return nil, huma.Error400BadRequest("args or command is required")
	}

	proc := process.New(args...)
	if len(body.Options) > 0 {
		if err := proc.AddOption(body.Options...); err != nil {
			return nil, processError(err)
		}
	}
	if body.Stdin != nil {
		if err := proc.SetInput(*body.Stdin); err != nil {
			return nil, processError(err)
		}
	}
	return proc, nil
}

func (s *Server) lookup(id string) (*process.Process, error) {
	proc, ok := s.pool.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("process " + id + " not found")
	}
	return proc, nil
}

func toProcessData(proc *process.Process) models.ProcessData {
	info := proc.Info()
	data := models.ProcessData{
		ID:       info.ID,
		Args:     nonNil(info.Args),
		Options:  proc.Options(),
		State:    string(info.State),
		ExitCode: info.ExitCode,
		Lines:    info.Lines,
		ErrLines: info.ErrLines,
	}
	if info.LastError != nil {
		data.LastError = info.LastError.Error()
	}
	return data
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
