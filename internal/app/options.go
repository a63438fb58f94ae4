package service

import (
	"time"

	"github.com/okian/matchlearn/internal/adapters/insight"
	"github.com/okian/matchlearn/internal/adapters/profiles"
	"github.com/okian/matchlearn/internal/adapters/repository"
	"github.com/okian/matchlearn/internal/domain/ranking"
	"github.com/okian/matchlearn/internal/domain/training"
	"github.com/okian/matchlearn/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the feedback store, model registry and event log backend.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithProfiles sets the profile store rankings read from.
func WithProfiles(p profiles.Store) Option {
	return func(s *Service) {
		if p != nil {
			s.profiles = p
		}
	}
}

// WithInsight enables rationale generation. A nil generator disables it.
func WithInsight(g insight.Generator) Option {
	return func(s *Service) { s.insight = g }
}

// WithInsightTimeout bounds each rationale call.
func WithInsightTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.insightTimeout = d
		}
	}
}

// WithTrainerOptions configures the model trainer.
func WithTrainerOptions(opts ...training.Option) Option {
	return func(s *Service) { s.trainerOpts = append(s.trainerOpts, opts...) }
}

// WithRankerOptions configures confidence estimation.
func WithRankerOptions(opts ...ranking.Option) Option {
	return func(s *Service) { s.rankerOpts = append(s.rankerOpts, opts...) }
}

// WithWorkerCount sets the number of feedback workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending feedback submissions.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the submission idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxCandidates caps the candidate pool of one rank request.
func WithMaxCandidates(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCandidates = n
		}
	}
}

// WithRankConcurrency bounds concurrent profile loads and rationale calls.
func WithRankConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankConcurrency = n
		}
	}
}

// WithDefaultDomain sets the domain used when a request names none.
func WithDefaultDomain(domain string) Option {
	return func(s *Service) {
		if domain != "" {
			s.defaultDomain = domain
		}
	}
}

// WithRetrainThreshold sets the default unconsumed-feedback threshold.
func WithRetrainThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retrainThreshold = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
