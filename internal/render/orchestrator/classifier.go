package orchestrator

import (
	"errors"
	"net/http"

	"github.com/edgecomet/pagerender/pkg/types"
)

// Fixed response bodies
const (
	TimeoutBody     = "Timeout exceeded rendering page\n"
	RenderErrorBody = "Error rendering page\n"
)

// Class is the HTTP-facing classification of a job result
type Class int

const (
	ClassCompleted Class = iota + 1
	ClassTimedOut
	ClassRenderFailed
	ClassInternalFailed
)

func (c Class) String() string {
	switch c {
	case ClassCompleted:
		return "completed"
	case ClassTimedOut:
		return "timed_out"
	case ClassRenderFailed:
		return "render_failed"
	default:
		return "internal_failed"
	}
}

// StatusCode is the HTTP status the class answers with
func (c Class) StatusCode() int {
	switch c {
	case ClassCompleted:
		return http.StatusOK
	case ClassTimedOut:
		return http.StatusGatewayTimeout
	case ClassRenderFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (c Class) state() State {
	switch c {
	case ClassCompleted:
		return StateCompleted
	case ClassTimedOut:
		return StateTimedOut
	case ClassRenderFailed:
		return StateRenderFailed
	default:
		return StateInternalFailed
	}
}

// Classify maps a job result to its class. Cancellation is checked before
// render errors, and render errors before the generic failure.
func Classify(r Result) Class {
	switch {
	case r.Outcome == OutcomeSuccess:
		return ClassCompleted
	case r.Outcome == OutcomeCancelled:
		return ClassTimedOut
	case errors.Is(r.Err, types.ErrRender):
		return ClassRenderFailed
	default:
		return ClassInternalFailed
	}
}

// errorBody is the response body for a failed class
func errorBody(c Class, err error) string {
	switch c {
	case ClassTimedOut:
		return TimeoutBody
	case ClassRenderFailed:
		return RenderErrorBody
	default:
		if err == nil {
			return "internal error"
		}
		return err.Error()
	}
}
