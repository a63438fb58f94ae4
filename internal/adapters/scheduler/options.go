package scheduler

import (
	"time"

	"github.com/okian/matchlearn/pkg/logger"
)

// Option applies a configuration option to the RetrainTrigger.
type Option func(*RetrainTrigger)

// WithThreshold sets the unconsumed-feedback count that makes a domain due.
func WithThreshold(n int) Option {
	return func(t *RetrainTrigger) {
		if n > 0 {
			t.threshold = n
		}
	}
}

// WithDomains restricts the trigger to the given domains. Without it every
// domain known to the registry is checked.
func WithDomains(domains ...string) Option {
	return func(t *RetrainTrigger) {
		for _, d := range domains {
			if d != "" {
				t.domains = append(t.domains, d)
			}
		}
	}
}

// WithAutoActivate activates a freshly trained model when it beats the active
// one's accuracy by at least minGain.
func WithAutoActivate(minGain float64) Option {
	return func(t *RetrainTrigger) {
		t.autoActivate = true
		if minGain >= 0 {
			t.minGain = minGain
		}
	}
}

// WithLocation evaluates the cron expression in loc.
func WithLocation(loc *time.Location) Option {
	return func(t *RetrainTrigger) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(t *RetrainTrigger) {
		if l != nil {
			t.log = l
		}
	}
}
