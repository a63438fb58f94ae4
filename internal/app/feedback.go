package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/matchlearn/internal/adapters/mq/queue"
	"github.com/okian/matchlearn/internal/adapters/repository"
	"github.com/okian/matchlearn/internal/domain/dedupe"
	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/pkg/logger"
	"github.com/okian/matchlearn/pkg/metrics"
)

// SubmitFeedback validates a decision and queues it for recording. A
// submission whose id was already accepted for the domain is acknowledged
// without being queued again and reported as a duplicate.
func (s *Service) SubmitFeedback(ctx context.Context, sub model.FeedbackSubmission) (duplicate bool, err error) {
	sub, err = s.normalizeSubmission(sub)
	if err != nil {
		return false, err
	}
	q, ok := s.running()
	if !ok {
		return false, ErrNotStarted
	}

	key := dedupe.Key(sub.Input.Domain, sub.SubmissionID)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordFeedbackDuplicate()
		s.logger.Debug(ctx, "duplicate feedback submission",
			logger.Domain(sub.Input.Domain),
			logger.String("submission_id", sub.SubmissionID),
		)
		return true, nil
	}
	if sub.ReceivedAt.IsZero() {
		sub.ReceivedAt = s.now().UTC()
	}

	if err := q.Enqueue(ctx, sub); err != nil {
		s.deduper.Unrecord(ctx, key)
		if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
			return false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return false, err
	}
	return false, nil
}

// RecordFeedback persists one dequeued submission. On failure the idempotency
// key is released so the client may retry.
func (s *Service) RecordFeedback(ctx context.Context, sub model.FeedbackSubmission) (model.FeedbackRecord, error) {
	rec, err := s.Record(ctx, sub.Input)
	if err != nil {
		s.deduper.Unrecord(ctx, dedupe.Key(sub.Input.Domain, sub.SubmissionID))
		return model.FeedbackRecord{}, err
	}
	return rec, nil
}

// Record writes a decision synchronously. When ScoringEventID names a known
// event of the same domain, the feature snapshot, score and model version are
// taken from the event rather than the client.
func (s *Service) Record(ctx context.Context, in model.FeedbackInput) (model.FeedbackRecord, error) {
	in.Domain = s.domainOr(in.Domain)
	if in.ScoringEventID != "" {
		in = s.attachEvent(ctx, in)
	}
	if in.CandidatePairID == "" && in.RequesterID != "" && in.CandidateID != "" {
		in.CandidatePairID = model.PairID(in.RequesterID, in.CandidateID)
	}

	rec, err := s.store.Record(ctx, in)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidFeedback) {
			return model.FeedbackRecord{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		metrics.RecordErrorByComponent("service", "feedback_write")
		return model.FeedbackRecord{}, err
	}
	metrics.RecordFeedback(string(rec.Decision))
	return rec, nil
}

// QueryFeedback reads the decision log.
func (s *Service) QueryFeedback(ctx context.Context, q model.FeedbackQuery) ([]model.FeedbackRecord, error) {
	return s.store.Query(ctx, q)
}

func (s *Service) attachEvent(ctx context.Context, in model.FeedbackInput) model.FeedbackInput {
	ev, err := s.store.Event(ctx, in.ScoringEventID)
	if err != nil {
		s.logger.Warn(ctx, "scoring event unavailable, keeping client snapshot",
			logger.String("scoring_event_id", in.ScoringEventID),
			logger.Error(err),
		)
		return in
	}
	if ev.Domain != in.Domain {
		s.logger.Warn(ctx, "scoring event belongs to another domain",
			logger.String("scoring_event_id", ev.ID),
			logger.String("event_domain", ev.Domain),
			logger.Domain(in.Domain),
		)
		return in
	}
	in.FeatureVector = ev.FeatureVector
	in.ScoreAtDecision = ev.Score
	in.ModelVersionAtDecision = ev.ModelVersion
	if in.RequesterID == "" {
		in.RequesterID = ev.RequesterID
	}
	if in.CandidateID == "" {
		in.CandidateID = ev.CandidateID
	}
	return in
}

func (s *Service) normalizeSubmission(sub model.FeedbackSubmission) (model.FeedbackSubmission, error) {
	sub.SubmissionID = strings.TrimSpace(sub.SubmissionID)
	if sub.SubmissionID == "" {
		return sub, fmt.Errorf("%w: submission_id is required", ErrInvalidRequest)
	}
	in := &sub.Input
	in.Domain = s.domainOr(in.Domain)
	if in.CandidatePairID == "" && in.RequesterID != "" && in.CandidateID != "" {
		in.CandidatePairID = model.PairID(in.RequesterID, in.CandidateID)
	}
	if in.CandidatePairID == "" && in.ScoringEventID == "" {
		return sub, fmt.Errorf("%w: candidate_pair_id, requester_id/candidate_id or scoring_event_id is required", ErrInvalidRequest)
	}
	d, err := model.ParseDecision(string(in.Decision))
	if err != nil {
		return sub, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	in.Decision = d
	return sub, nil
}
