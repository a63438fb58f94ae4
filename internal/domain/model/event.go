package model

import "time"

// ScoringEvent links a surfaced ranking position to the exact inputs that
// produced it, so later feedback can be attributed.
type ScoringEvent struct {
	ID            string        `json:"id"`
	Domain        string        `json:"domain"`
	RequesterID   string        `json:"requester_id"`
	CandidateID   string        `json:"candidate_id"`
	FeatureVector FeatureVector `json:"feature_vector"`
	Score         float64       `json:"score"`
	ModelVersion  int64         `json:"model_version"`
	RankPosition  int           `json:"rank_position"`
	CreatedAt     time.Time     `json:"created_at"`
}

// PairID derives the candidate pair identifier used by feedback records.
func PairID(requesterID, candidateID string) string {
	return requesterID + ":" + candidateID
}
