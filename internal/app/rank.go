package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/matchlearn/internal/adapters/insight"
	"github.com/okian/matchlearn/internal/domain/eligibility"
	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/ranking"
	"github.com/okian/matchlearn/internal/domain/types"
	"github.com/okian/matchlearn/pkg/logger"
	"github.com/okian/matchlearn/pkg/metrics"
)

// profileBatch is how many candidate ids one profile lookup carries.
const profileBatch = 64

// RankRequest asks for a candidate pool ordered by compatibility.
type RankRequest struct {
	Domain       string
	RequesterID  string
	CandidateIDs []string
	// Explain attaches a rationale to every result when a generator is set.
	Explain bool
	// Filter is an optional CEL eligibility expression.
	Filter string
}

// Rank scores every resolvable candidate against the requester with the
// domain's active model and records one scoring event per result. Without an
// active model the unweighted baseline is used and results are provisional.
// Candidates that cannot be ranked are reported in Skipped.
func (s *Service) Rank(ctx context.Context, req RankRequest) (types.Ranking, error) {
	start := time.Now()
	domain := s.domainOr(req.Domain)
	ctx = logger.WithFields(ctx, logger.Domain(domain), logger.String("requester_id", req.RequesterID))
	if strings.TrimSpace(req.RequesterID) == "" {
		return types.Ranking{}, fmt.Errorf("%w: requester_id is required", ErrInvalidRequest)
	}
	filter, err := eligibility.Compile(req.Filter)
	if err != nil {
		return types.Ranking{}, err
	}

	out := types.Ranking{
		Domain:      domain,
		RequesterID: req.RequesterID,
		Results:     []types.RankedCandidate{},
		Skipped:     []types.Skipped{},
	}
	skip := func(id, reason string) {
		out.Skipped = append(out.Skipped, types.Skipped{CandidateID: id, Reason: reason})
		metrics.RecordCandidateSkipped(reason)
	}

	ids := s.admit(req, skip)

	requester, found, err := s.loadProfiles(ctx, req.RequesterID, ids)
	if err != nil {
		return types.Ranking{}, err
	}

	m, err := s.store.Active(ctx, domain)
	switch {
	case errors.Is(err, model.ErrNoActiveModel):
		m = model.Baseline(domain)
		out.Baseline = true
	case err != nil:
		return types.Ranking{}, fmt.Errorf("loading active model for %q: %w", domain, err)
	}
	out.ModelVersion = m.Version
	_, out.Provisional = s.ranker.Confidence(m, false)

	eligible := make([]model.Profile, 0, len(ids))
	for _, id := range ids {
		p, ok := found[id]
		if !ok {
			skip(id, types.SkipProfileNotFound)
			continue
		}
		allowed, err := filter.Allow(requester, p, s.extractor.Extract(requester, p))
		if err != nil {
			s.logger.Warn(ctx, "eligibility filter failed",
				logger.String("candidate_id", id),
				logger.String("filter", filter.String()),
				logger.Error(err),
			)
			skip(id, types.SkipFilterError)
			continue
		}
		if !allowed {
			skip(id, types.SkipFiltered)
			continue
		}
		eligible = append(eligible, p)
	}

	ranked := s.ranker.Rank(m, requester, eligible)
	eventIDs := s.recordEvents(ctx, domain, req.RequesterID, m.Version, ranked)

	for i, r := range ranked {
		if r.Provisional {
			out.Provisional = true
		}
		out.Results = append(out.Results, types.RankedCandidate{
			CandidateID:    r.CandidateID,
			Score:          r.Score,
			Rank:           r.Rank,
			Contributions:  r.Contributions.Map(),
			Confidence:     r.Confidence,
			Provisional:    r.Provisional,
			ScoringEventID: eventIDs[i],
		})
		metrics.RecordConfidence(r.Confidence)
	}

	if req.Explain && s.insight != nil {
		s.explain(ctx, domain, m.Version, requester, found, ranked, out.Results)
	}

	metrics.RecordRankRequest(domain, out.Baseline)
	metrics.RecordCandidatesScored(len(ranked))
	metrics.RecordRankLatency(float64(time.Since(start).Milliseconds()))
	s.logger.Debug(ctx, "ranked candidates",
		logger.Version(m.Version),
		logger.Int("ranked", len(ranked)),
		logger.Int("skipped", len(out.Skipped)),
	)
	return out, nil
}

// admit drops duplicate, self-referencing and over-limit candidate ids.
func (s *Service) admit(req RankRequest, skip func(id, reason string)) []string {
	seen := make(map[string]struct{}, len(req.CandidateIDs))
	ids := make([]string, 0, len(req.CandidateIDs))
	for _, id := range req.CandidateIDs {
		switch _, dup := seen[id]; {
		case dup:
			skip(id, types.SkipDuplicate)
		case id == req.RequesterID:
			skip(id, types.SkipSelf)
		case strings.TrimSpace(id) == "":
			skip(id, types.SkipProfileNotFound)
		case len(ids) >= s.maxCandidates:
			skip(id, types.SkipOverLimit)
		default:
			ids = append(ids, id)
		}
		seen[id] = struct{}{}
	}
	return ids
}

// loadProfiles fetches the requester and candidates concurrently. A missing
// requester fails the request; missing candidates are simply absent.
func (s *Service) loadProfiles(ctx context.Context, requesterID string, ids []string) (model.Profile, map[string]model.Profile, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.rankConcurrency)

	var requester model.Profile
	g.Go(func() error {
		p, err := s.profiles.Get(gctx, requesterID)
		if err != nil {
			return fmt.Errorf("requester: %w", err)
		}
		requester = p
		return nil
	})

	var mu sync.Mutex
	found := make(map[string]model.Profile, len(ids))
	for lo := 0; lo < len(ids); lo += profileBatch {
		batch := ids[lo:min(lo+profileBatch, len(ids))]
		g.Go(func() error {
			ps, err := s.profiles.GetMany(gctx, batch)
			if err != nil {
				return fmt.Errorf("candidates: %w", err)
			}
			mu.Lock()
			defer mu.Unlock()
			for id, p := range ps {
				found[id] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Profile{}, nil, err
	}
	return requester, found, nil
}

// recordEvents writes one scoring event per ranked candidate and returns
// their ids by position. A failed write leaves the ids empty; the ranking
// itself is still served.
func (s *Service) recordEvents(ctx context.Context, domain, requesterID string, version int64, ranked []ranking.Ranked) []string {
	ids := make([]string, len(ranked))
	if len(ranked) == 0 {
		return ids
	}
	now := s.now().UTC()
	events := make([]model.ScoringEvent, len(ranked))
	for i, r := range ranked {
		events[i] = model.ScoringEvent{
			ID:            uuid.NewString(),
			Domain:        domain,
			RequesterID:   requesterID,
			CandidateID:   r.CandidateID,
			FeatureVector: r.Features,
			Score:         r.Score,
			ModelVersion:  version,
			RankPosition:  r.Rank,
			CreatedAt:     now,
		}
	}
	if err := s.store.AppendEvents(ctx, events); err != nil {
		metrics.RecordErrorByComponent("service", "scoring_event_write")
		s.logger.Error(ctx, "recording scoring events failed",
			logger.Int("events", len(events)),
			logger.Error(err),
		)
		return ids
	}
	for i := range events {
		ids[i] = events[i].ID
	}
	metrics.RecordScoringEvents(len(events))
	return ids
}

// explain fills in rationales concurrently. Failures leave a rationale empty.
func (s *Service) explain(ctx context.Context, domain string, version int64, requester model.Profile, found map[string]model.Profile, ranked []ranking.Ranked, results []types.RankedCandidate) {
	var g errgroup.Group
	g.SetLimit(s.rankConcurrency)
	provider := s.insight.Name()
	for i := range ranked {
		r := ranked[i]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.insightTimeout)
			defer cancel()
			start := time.Now()
			text, err := s.insight.Explain(cctx, insight.Request{
				Domain:        domain,
				Requester:     requester,
				Candidate:     found[r.CandidateID],
				Score:         r.Score,
				Rank:          r.Rank,
				Confidence:    r.Confidence,
				Provisional:   r.Provisional,
				ModelVersion:  version,
				Contributions: r.Contributions,
			})
			metrics.RecordInsight(provider, float64(time.Since(start).Milliseconds()), err != nil)
			if err != nil {
				s.logger.Warn(ctx, "rationale generation failed",
					logger.String("provider", provider),
					logger.String("candidate_id", r.CandidateID),
					logger.Error(err),
				)
				return nil
			}
			results[i].Rationale = text
			return nil
		})
	}
	_ = g.Wait()
}
