package repository

import (
	"time"

	"github.com/okian/matchlearn/pkg/logger"
)

// Option applies a configuration option to a store.
type Option func(*storeOptions)

type storeOptions struct {
	log          logger.Logger
	now          func() time.Time
	maxOpenConns int
}

func defaultStoreOptions() storeOptions {
	return storeOptions{
		log: logger.Get().Named("repository"),
		now: time.Now,
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *storeOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the clock used for CreatedAt and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxOpenConns caps the SQL connection pool. In-memory sqlite needs 1.
func WithMaxOpenConns(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}
