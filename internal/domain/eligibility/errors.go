package eligibility

import "errors"

// Sentinel kinds for eligibility filter errors.
var (
	ErrCompile    = errors.New("eligibility expression does not compile")
	ErrEvaluate   = errors.New("eligibility expression failed")
	ErrNotBoolean = errors.New("eligibility expression must return a boolean")
)
