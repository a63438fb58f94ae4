package insight

import "errors"

// Sentinel kinds for insight errors.
var (
	ErrUnknownProvider = errors.New("unknown insight provider")
	ErrMissingAPIKey   = errors.New("insight provider needs an api key")
	ErrEmptyResponse   = errors.New("insight provider returned no text")
)
