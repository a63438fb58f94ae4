package profiles

import "errors"

// Sentinel kinds for profile store errors.
var (
	ErrInvalidProfile = errors.New("invalid profile")
	ErrInvalidSeed    = errors.New("invalid profile seed file")
)
