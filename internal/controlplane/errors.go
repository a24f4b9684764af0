package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/tickos/internal/scheduler"
)

// Sentinel errors for control plane operations.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrNoStore    = errors.New("persistence disabled")
	ErrBadRequest = errors.New("bad request")
)

// httpStatus maps a service error to an HTTP status code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, scheduler.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoStore):
		return http.StatusNotImplemented
	case errors.Is(err, scheduler.ErrSlotInUse), errors.Is(err, scheduler.ErrTableFull):
		return http.StatusConflict
	}

	switch scheduler.StatusOf(err) {
	case scheduler.StatusInvalidParameter:
		return http.StatusBadRequest
	case scheduler.StatusNotInitialized:
		return http.StatusConflict
	case scheduler.StatusBusy:
		return http.StatusServiceUnavailable
	case scheduler.StatusTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
