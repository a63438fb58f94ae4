package model

import (
	"fmt"
	"strings"
	"time"
)

// Decision is the human verdict on a surfaced match.
type Decision string

// Known decisions.
const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
	DecisionIgnored  Decision = "ignored"
)

// ParseDecision validates a decision string.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionAccepted, DecisionRejected, DecisionIgnored:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

// Label returns 1 for accepted, 0 for rejected; ok is false for ignored.
func (d Decision) Label() (label float64, ok bool) {
	switch d {
	case DecisionAccepted:
		return 1, true
	case DecisionRejected:
		return 0, true
	default:
		return 0, false
	}
}

// FeedbackRecord is an append-only decision on a candidate pair, carrying the
// feature snapshot and model version that were shown at decision time.
type FeedbackRecord struct {
	ID                     string        `json:"id"`
	Domain                 string        `json:"domain"`
	CandidatePairID        string        `json:"candidate_pair_id"`
	RequesterID            string        `json:"requester_id,omitempty"`
	CandidateID            string        `json:"candidate_id,omitempty"`
	ScoringEventID         string        `json:"scoring_event_id,omitempty"`
	FeatureVector          FeatureVector `json:"feature_vector"`
	ScoreAtDecision        float64       `json:"score_at_decision"`
	ModelVersionAtDecision int64         `json:"model_version_at_decision"`
	Decision               Decision      `json:"decision"`
	Reason                 *string       `json:"reason,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`

	// ConsumedByVersion is the model version whose training run consumed this
	// record, 0 while unconsumed. It is the only field that changes after write.
	ConsumedByVersion int64 `json:"consumed_by_version,omitempty"`
}

// FeedbackInput is what ingress supplies to record a decision.
type FeedbackInput struct {
	Domain                 string
	CandidatePairID        string
	RequesterID            string
	CandidateID            string
	ScoringEventID         string
	FeatureVector          FeatureVector
	ScoreAtDecision        float64
	ModelVersionAtDecision int64
	Decision               Decision
	Reason                 *string
}

// FeedbackQuery filters Feedback Store reads. Zero values mean "no filter".
type FeedbackQuery struct {
	Domain         string
	Since          time.Time
	ModelVersion   *int64
	UnconsumedOnly bool
}

// Matches reports whether r satisfies q.
func (q FeedbackQuery) Matches(r FeedbackRecord) bool {
	if q.Domain != "" && r.Domain != q.Domain {
		return false
	}
	if !q.Since.IsZero() && r.CreatedAt.Before(q.Since) {
		return false
	}
	if q.ModelVersion != nil && r.ModelVersionAtDecision != *q.ModelVersion {
		return false
	}
	if q.UnconsumedOnly && r.ConsumedByVersion != 0 {
		return false
	}
	return true
}

// FeedbackSubmission is the async ingress envelope. SubmissionID is the
// idempotency key supplied by the client.
type FeedbackSubmission struct {
	SubmissionID string
	Input        FeedbackInput
	ReceivedAt   time.Time
}
