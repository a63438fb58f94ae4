// Package service orchestrates the matching engine: it ranks candidate pools
// with the active scoring model, ingests feedback and drives the model
// lifecycle. HTTP handlers, the CLI and the retrain trigger all go through it.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/matchlearn/internal/adapters/insight"
	eventqueue "github.com/okian/matchlearn/internal/adapters/mq/queue"
	workerpool "github.com/okian/matchlearn/internal/adapters/mq/worker"
	"github.com/okian/matchlearn/internal/adapters/profiles"
	"github.com/okian/matchlearn/internal/adapters/repository"
	"github.com/okian/matchlearn/internal/domain/dedupe"
	"github.com/okian/matchlearn/internal/domain/features"
	"github.com/okian/matchlearn/internal/domain/ranking"
	"github.com/okian/matchlearn/internal/domain/training"
	"github.com/okian/matchlearn/internal/domain/types"
	"github.com/okian/matchlearn/pkg/logger"
)

// Default service configuration constants.
const (
	defaultQueueSize        = 10_000
	defaultDedupeSize       = 50_000
	defaultMaxCandidates    = 500
	defaultRankConcurrency  = 8
	defaultInsightTimeout   = 2 * time.Second
	defaultRetrainThreshold = 50
	defaultDomain           = "default"
	stopTimeout             = 10 * time.Second
)

// Service implements the matching engine's public operations.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	profiles  profiles.Store
	insight   insight.Generator
	extractor features.Extractor
	ranker    *ranking.Ranker
	trainer   *training.Trainer
	deduper   dedupe.Deduper
	queue     eventqueue.Queue
	pool      *workerpool.Pool

	trainerOpts []training.Option
	rankerOpts  []ranking.Option
	trainLocks  sync.Map

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	maxCandidates    int
	rankConcurrency  int
	insightTimeout   time.Duration
	retrainThreshold int
	defaultDomain    string

	// State
	started bool

	now    func() time.Time
	logger logger.Logger
}

// New constructs a Service. Without WithStore and WithProfiles it runs on
// in-memory backends.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        defaultQueueSize,
		dedupeSize:       defaultDedupeSize,
		maxCandidates:    defaultMaxCandidates,
		rankConcurrency:  defaultRankConcurrency,
		insightTimeout:   defaultInsightTimeout,
		retrainThreshold: defaultRetrainThreshold,
		defaultDomain:    defaultDomain,
		extractor:        features.New(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.profiles == nil {
		s.profiles = profiles.NewMemoryStore()
	}
	s.ranker = ranking.New(s.rankerOpts...)
	s.trainer = training.New(s.store, s.trainerOpts...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start creates the feedback queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting matching service...")
	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s)
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "matching service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("defaultDomain", s.defaultDomain),
	)
	return nil
}

// Stop drains queued feedback and releases the backends.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping matching service...")

	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	var firstErr error
	if err := s.pool.Shutdown(ctx); err != nil {
		firstErr = err
		s.logger.Warn(ctx, "feedback workers did not drain", logger.Error(err))
	}
	if err := s.profiles.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.started = false
	s.logger.Info(ctx, "matching service stopped")
	return firstErr
}

// Stats returns a snapshot of the service. With a non-empty domain the
// snapshot also carries that domain's retraining status.
func (s *Service) Stats(ctx context.Context, domain string) (types.ServiceStats, error) {
	s.mu.RLock()
	st := types.ServiceStats{
		Started:        s.started,
		WorkerCount:    s.workerCount,
		QueueSize:      s.queueSize,
		DedupeSize:     s.dedupeSize,
		DedupeEntries:  s.deduper.Size(),
		DefaultDomain:  s.defaultDomain,
		MaxCandidates:  s.maxCandidates,
		MinSamples:     s.trainer.MinSamples(),
		InsightEnabled: s.insight != nil,
	}
	if s.started {
		st.QueueLength = s.queue.Len(ctx)
		st.FeedbackProcessed = s.pool.Processed()
	}
	s.mu.RUnlock()

	domains, err := s.store.Domains(ctx)
	if err != nil {
		return st, fmt.Errorf("listing domains: %w", err)
	}
	st.Domains = domains

	if domain != "" {
		rs, err := s.RetrainStatus(ctx, domain, 0)
		if err != nil {
			return st, err
		}
		st.Retrain = &rs
	}
	return st, nil
}

// Ready reports whether the service accepts work: it must be started and
// its model store must answer.
func (s *Service) Ready(ctx context.Context) error {
	if _, ok := s.running(); !ok {
		return ErrNotStarted
	}
	if _, err := s.store.Domains(ctx); err != nil {
		return fmt.Errorf("model store: %w", err)
	}
	return nil
}

// DefaultDomain returns the domain used when a request names none.
func (s *Service) DefaultDomain() string { return s.defaultDomain }

func (s *Service) domainOr(d string) string {
	if d == "" {
		return s.defaultDomain
	}
	return d
}

func (s *Service) running() (eventqueue.Queue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue, s.started
}
