package repository

import "errors"

// Sentinel kinds for store errors. Registry errors use the engine taxonomy in
// the model package.
var (
	ErrEventNotFound     = errors.New("scoring event not found")
	ErrInvalidFeedback   = errors.New("invalid feedback")
	ErrInvalidModel      = errors.New("invalid model")
	ErrUnsupportedDriver = errors.New("unsupported store driver")
	ErrPublishContention = errors.New("could not allocate a model version")
)
