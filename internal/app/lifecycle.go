package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchlearn/internal/adapters/repository"
	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/types"
	"github.com/okian/matchlearn/pkg/logger"
	"github.com/okian/matchlearn/pkg/metrics"
)

// Training run outcomes reported to metrics.
const (
	outcomePublished    = "published"
	outcomeInsufficient = "insufficient_data"
	outcomeDegenerate   = "degenerate"
	outcomeFailed       = "failed"
	outcomeCancelled    = "cancelled"
)

// Train runs one training pass over the domain's unconsumed feedback and
// publishes the result inactive. Runs for the same domain are serialized.
// Feedback read by a run that published a version is marked consumed by it.
func (s *Service) Train(ctx context.Context, domain string) (model.ScoringModel, error) {
	domain = s.domainOr(domain)
	lock := s.trainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	records, err := s.store.Query(ctx, model.FeedbackQuery{Domain: domain, UnconsumedOnly: true})
	if err != nil {
		metrics.RecordTrainingRun(domain, outcomeFailed, msSince(start))
		return model.ScoringModel{}, fmt.Errorf("loading feedback for %q: %w", domain, err)
	}

	m, trainErr := s.trainer.Train(ctx, domain, records)
	outcome := trainOutcome(trainErr)
	if m.Version > 0 {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		// Consumption marking uses a fresh context: the version already exists.
		if err := s.store.MarkConsumed(context.WithoutCancel(ctx), ids, m.Version); err != nil {
			s.logger.Error(ctx, "marking feedback consumed failed",
				logger.Domain(domain),
				logger.Version(m.Version),
				logger.Error(err),
			)
		}
	}
	metrics.RecordTrainingRun(domain, outcome, msSince(start))
	return m, trainErr
}

// PublishWeights stores operator-supplied weights as the domain's next
// inactive version.
func (s *Service) PublishWeights(ctx context.Context, domain string, w model.Weights) (model.ScoringModel, error) {
	domain = s.domainOr(domain)
	if err := w.Validate(); err != nil {
		return model.ScoringModel{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	var parent int64
	switch active, err := s.store.Active(ctx, domain); {
	case err == nil:
		parent = active.Version
	case !errors.Is(err, model.ErrNoActiveModel):
		return model.ScoringModel{}, err
	}

	m, err := s.store.Publish(ctx, model.ScoringModel{
		Domain:        domain,
		Weights:       w,
		ParentVersion: parent,
		RunID:         uuid.NewString(),
		Degenerate:    w.IsZero(),
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidModel) {
			return model.ScoringModel{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return model.ScoringModel{}, err
	}
	s.logger.Info(ctx, "weights published",
		logger.Domain(domain),
		logger.Version(m.Version),
		logger.Bool("degenerate", m.Degenerate),
	)
	return m, nil
}

// Activate makes version the domain's active model. With expected set the
// switch only happens while *expected is still active (0 meaning none).
// Degenerate versions require force.
func (s *Service) Activate(ctx context.Context, domain string, version int64, expected *int64, force bool) (model.ScoringModel, error) {
	domain = s.domainOr(domain)
	var opts []repository.ActivateOption
	if expected != nil {
		opts = append(opts, repository.IfActive(*expected))
	}
	if force {
		opts = append(opts, repository.AllowDegenerate())
	}

	m, err := s.store.Activate(ctx, domain, version, opts...)
	if err != nil {
		if errors.Is(err, model.ErrActivationConflict) {
			metrics.RecordActivationConflict()
		}
		return model.ScoringModel{}, err
	}
	metrics.RecordActivation(domain, string(model.ActionActivate))
	metrics.UpdateActiveModel(domain, m.Version, m.AccuracyEstimate)
	s.logger.Info(ctx, "model activated",
		logger.Domain(domain),
		logger.Version(m.Version),
		logger.Float64("accuracy", m.AccuracyEstimate),
	)
	return m, nil
}

// Rollback restores the version that was active before the current one.
func (s *Service) Rollback(ctx context.Context, domain string) (model.ScoringModel, error) {
	domain = s.domainOr(domain)
	m, err := s.store.Rollback(ctx, domain)
	if err != nil {
		return model.ScoringModel{}, err
	}
	metrics.RecordActivation(domain, string(model.ActionRollback))
	metrics.UpdateActiveModel(domain, m.Version, m.AccuracyEstimate)
	s.logger.Warn(ctx, "model rolled back",
		logger.Domain(domain),
		logger.Version(m.Version),
	)
	return m, nil
}

// Models lists every published version of domain.
func (s *Service) Models(ctx context.Context, domain string) ([]model.ScoringModel, error) {
	return s.store.List(ctx, s.domainOr(domain))
}

// Model returns one published version.
func (s *Service) Model(ctx context.Context, domain string, version int64) (model.ScoringModel, error) {
	return s.store.Get(ctx, s.domainOr(domain), version)
}

// ActiveModel returns the active model or model.ErrNoActiveModel.
func (s *Service) ActiveModel(ctx context.Context, domain string) (model.ScoringModel, error) {
	return s.store.Active(ctx, s.domainOr(domain))
}

// History returns the domain's activation audit trail.
func (s *Service) History(ctx context.Context, domain string) ([]model.ActivationRecord, error) {
	return s.store.History(ctx, s.domainOr(domain))
}

// Domains lists domains with at least one published model.
func (s *Service) Domains(ctx context.Context) ([]string, error) {
	return s.store.Domains(ctx)
}

// RetrainStatus reports whether the domain has accumulated threshold
// unconsumed decisions. A threshold of zero or less uses the configured one.
func (s *Service) RetrainStatus(ctx context.Context, domain string, threshold int) (types.RetrainStatus, error) {
	domain = s.domainOr(domain)
	if threshold <= 0 {
		threshold = s.retrainThreshold
	}
	n, err := s.store.CountUnconsumed(ctx, domain)
	if err != nil {
		return types.RetrainStatus{}, err
	}
	st := types.RetrainStatus{
		Domain:     domain,
		Unconsumed: n,
		Threshold:  threshold,
		MinSamples: s.trainer.MinSamples(),
		Due:        n >= threshold,
	}
	switch active, err := s.store.Active(ctx, domain); {
	case err == nil:
		st.ActiveVersion = active.Version
	case !errors.Is(err, model.ErrNoActiveModel):
		return types.RetrainStatus{}, err
	}
	return st, nil
}

func (s *Service) trainLock(domain string) *sync.Mutex {
	l, _ := s.trainLocks.LoadOrStore(domain, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func trainOutcome(err error) string {
	switch {
	case err == nil:
		return outcomePublished
	case errors.Is(err, model.ErrInsufficientData):
		return outcomeInsufficient
	case errors.Is(err, model.ErrDegenerateFit):
		return outcomeDegenerate
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCancelled
	default:
		return outcomeFailed
	}
}

func msSince(t time.Time) float64 { return float64(time.Since(t).Milliseconds()) }
