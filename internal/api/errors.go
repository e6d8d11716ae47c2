package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/procpool/internal/process"
)

// processError maps process package errors onto HTTP status errors.
func processError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrInvalidConfiguration):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, process.ErrNotInitialized):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, process.ErrAlreadyLaunched),
		errors.Is(err, process.ErrNotStarted),
		errors.Is(err, process.ErrNotFinished),
		errors.Is(err, process.ErrStopped),
		errors.Is(err, process.ErrPoolClosed):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError("process operation failed", err)
	}
}
