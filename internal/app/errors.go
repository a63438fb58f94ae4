package service

import "errors"

// Sentinel error kinds for the service layer.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrBackpressure   = errors.New("feedback queue is full")
	ErrNotStarted     = errors.New("service not started")
)
