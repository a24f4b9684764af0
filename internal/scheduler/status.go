package scheduler

import (
	"errors"
	"fmt"
)

// Status is the result code of a mutating scheduler operation.
type Status uint8

const (
	StatusOK               Status = iota // Operation successful
	StatusError                          // Lookup failed or generic error
	StatusTimeout                        // Reserved
	StatusInvalidParameter               // Caller input out of contract
	StatusNotInitialized                 // Target slot or entry is not live
	StatusBusy                           // Fixed pool exhausted
)

var statusNames = [...]string{
	StatusOK:               "ok",
	StatusError:            "error",
	StatusTimeout:          "timeout",
	StatusInvalidParameter: "invalid_parameter",
	StatusNotInitialized:   "not_initialized",
	StatusBusy:             "busy",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Sentinel errors for scheduler operations.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotInitialized   = errors.New("not initialized")
	ErrBusy             = errors.New("pool exhausted")
	ErrNotFound         = errors.New("not found")
	ErrSlotInUse        = errors.New("task slot already in use")
	ErrTableFull        = errors.New("task table full")
	ErrTimeout          = errors.New("timeout")
)

// StatusOf maps an error returned by the scheduler to its status code.
// A nil error is StatusOK.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrInvalidParameter):
		return StatusInvalidParameter
	case errors.Is(err, ErrNotInitialized):
		return StatusNotInitialized
	case errors.Is(err, ErrBusy):
		return StatusBusy
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	default:
		return StatusError
	}
}
