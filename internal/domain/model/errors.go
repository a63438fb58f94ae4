package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for the matching engine. These allow errors.Is/As from callers.
var (
	ErrInsufficientData   = errors.New("insufficient labeled feedback")
	ErrDegenerateFit      = errors.New("degenerate fit")
	ErrNoActiveModel      = errors.New("no active model")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrActivationConflict = errors.New("activation conflict")

	ErrModelNotFound    = errors.New("model not found")
	ErrNoRollbackTarget = errors.New("no previous active version to roll back to")
	ErrDegenerateModel  = errors.New("model is flagged degenerate")
	ErrInvalidWeights   = errors.New("invalid weights")
	ErrInvalidDecision  = errors.New("invalid decision")
)

// InsufficientDataError reports a training precondition failure with sample counts.
type InsufficientDataError struct {
	Domain   string
	Labeled  int
	Required int
	Accepted int
	Rejected int
	Ignored  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: domain %q has %d labeled records (accepted=%d rejected=%d ignored=%d), need %d",
		ErrInsufficientData, e.Domain, e.Labeled, e.Accepted, e.Rejected, e.Ignored, e.Required)
}

// Is matches ErrInsufficientData.
func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// DegenerateFitError reports a fit that ended with all-zero weights. The model
// was still published, flagged degenerate.
type DegenerateFitError struct {
	Domain  string
	Version int64
	Samples int
	Metrics Metrics
}

func (e *DegenerateFitError) Error() string {
	return fmt.Sprintf("%s: domain %q version %d trained on %d samples produced all-zero weights (accuracy=%.3f)",
		ErrDegenerateFit, e.Domain, e.Version, e.Samples, e.Metrics.Accuracy)
}

// Is matches ErrDegenerateFit.
func (e *DegenerateFitError) Is(target error) bool { return target == ErrDegenerateFit }

// ConflictError reports a lost activation race.
type ConflictError struct {
	Domain   string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: domain %q expected active version %d, found %d",
		ErrActivationConflict, e.Domain, e.Expected, e.Actual)
}

// Is matches ErrActivationConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrActivationConflict }
