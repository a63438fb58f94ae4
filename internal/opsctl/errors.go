package opsctl

import (
	"errors"
	"fmt"
)

// ErrServer marks non-2xx responses from the matching service.
var ErrServer = errors.New("server error")

// APIError is a decoded error response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Is matches ErrServer.
func (e *APIError) Is(target error) bool { return target == ErrServer }
