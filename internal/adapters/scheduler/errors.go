package scheduler

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrInvalidSchedule = errors.New("invalid retrain schedule")
	ErrAlreadyStarted  = errors.New("retrain trigger already started")
)
