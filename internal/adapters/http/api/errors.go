package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/matchlearn/internal/adapters/repository"
	service "github.com/okian/matchlearn/internal/app"
	"github.com/okian/matchlearn/internal/domain/eligibility"
	"github.com/okian/matchlearn/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrNotFound     = errors.New("not found")
)

// Error annotates a failure with the handler operation that produced it.
// Kind is a sentinel for errors.Is; Err is the underlying cause, if any.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Kind != nil && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error { return &Error{Op: op, Kind: kind} }

// WrapKind classifies err as kind under op.
func WrapKind(op string, kind, err error) error { return &Error{Op: op, Kind: kind, Err: err} }

// Wrap annotates err with op.
func Wrap(op string, err error) error { return &Error{Op: op, Err: err} }

// classify maps an engine error to an HTTP status and response code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, model.ErrActivationConflict):
		return http.StatusConflict, "activation_conflict"
	case errors.Is(err, model.ErrDegenerateModel):
		return http.StatusConflict, "degenerate_model"
	case errors.Is(err, model.ErrNoRollbackTarget):
		return http.StatusConflict, "no_rollback_target"
	case errors.Is(err, model.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, model.ErrDegenerateFit):
		return http.StatusUnprocessableEntity, "degenerate_fit"
	case errors.Is(err, model.ErrNoActiveModel):
		return http.StatusNotFound, "no_active_model"
	case errors.Is(err, model.ErrModelNotFound):
		return http.StatusNotFound, "model_not_found"
	case errors.Is(err, model.ErrProfileNotFound):
		return http.StatusNotFound, "profile_not_found"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, eligibility.ErrCompile),
		errors.Is(err, model.ErrInvalidWeights),
		errors.Is(err, model.ErrInvalidDecision),
		errors.Is(err, repository.ErrInvalidFeedback),
		errors.Is(err, repository.ErrInvalidModel):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err with its classified status.
func fail(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
