package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/matchlearn/internal/domain/model"
)

// FeedbackDependencies defines the interface for feedback ingress and reads.
type FeedbackDependencies interface {
	// SubmitFeedback queues a decision; duplicate reports an already-seen
	// submission id.
	SubmitFeedback(ctx context.Context, sub model.FeedbackSubmission) (duplicate bool, err error)
	QueryFeedback(ctx context.Context, q model.FeedbackQuery) ([]model.FeedbackRecord, error)
}

// FeedbackHandler handles feedback requests.
type FeedbackHandler struct {
	deps FeedbackDependencies
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(deps FeedbackDependencies) *FeedbackHandler {
	return &FeedbackHandler{deps: deps}
}

// feedbackRequest mirrors the OpenAPI schema for POST /feedback.
type feedbackRequest struct {
	SubmissionID    string               `json:"submission_id"`
	Domain          string               `json:"domain"`
	PairID          string               `json:"pair_id"`
	CandidatePairID string               `json:"candidate_pair_id"`
	RequesterID     string               `json:"requester_id"`
	CandidateID     string               `json:"candidate_id"`
	ScoringEventID  string               `json:"scoring_event_id"`
	Features        *model.FeatureVector `json:"features"`
	Score           float64              `json:"score"`
	ModelVersion    int64                `json:"model_version"`
	Decision        string               `json:"decision"`
	Reason          *string              `json:"reason"`
}

func (f feedbackRequest) validate() error {
	switch {
	case strings.TrimSpace(f.SubmissionID) == "":
		return errMissing("submission_id")
	case strings.TrimSpace(f.Decision) == "":
		return errMissing("decision")
	}
	return nil
}

func (f feedbackRequest) submission() model.FeedbackSubmission {
	pair := f.CandidatePairID
	if pair == "" {
		pair = f.PairID
	}
	in := model.FeedbackInput{
		Domain:                 f.Domain,
		CandidatePairID:        pair,
		RequesterID:            f.RequesterID,
		CandidateID:            f.CandidateID,
		ScoringEventID:         f.ScoringEventID,
		ScoreAtDecision:        f.Score,
		ModelVersionAtDecision: f.ModelVersion,
		Decision:               model.Decision(f.Decision),
		Reason:                 f.Reason,
	}
	if f.Features != nil {
		in.FeatureVector = *f.Features
	} else {
		for i := range in.FeatureVector {
			in.FeatureVector[i] = model.NeutralValue
		}
	}
	return model.FeedbackSubmission{SubmissionID: f.SubmissionID, Input: in}
}

// HandleFeedback dispatches POST and GET /feedback.
func (h *FeedbackHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.HandlePostFeedback(w, r)
	case http.MethodGet:
		h.HandleQueryFeedback(w, r)
	default:
		http.NotFound(w, r)
	}
}

// HandlePostFeedback handles POST /feedback requests.
func (h *FeedbackHandler) HandlePostFeedback(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_feedback"
	var req feedbackRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	duplicate, err := h.deps.SubmitFeedback(r.Context(), req.submission())
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}

// HandleQueryFeedback handles GET /feedback?domain=&since=&model_version=&unconsumed=.
func (h *FeedbackHandler) HandleQueryFeedback(w http.ResponseWriter, r *http.Request) {
	const op = "api.query_feedback"
	q, err := parseFeedbackQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	records, err := h.deps.QueryFeedback(r.Context(), q)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if records == nil {
		records = []model.FeedbackRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func parseFeedbackQuery(r *http.Request) (model.FeedbackQuery, error) {
	v := r.URL.Query()
	q := model.FeedbackQuery{Domain: v.Get("domain")}
	if s := v.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, errors.New("invalid since; must be RFC3339")
		}
		q.Since = t
	}
	if s := v.Get("model_version"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return q, errors.New("invalid model_version")
		}
		q.ModelVersion = &n
	}
	if s := v.Get("unconsumed"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, errors.New("invalid unconsumed")
		}
		q.UnconsumedOnly = b
	}
	return q, nil
}
