// Package types contains the read shapes shared by the service and its
// transports.
package types

// Skip reasons reported for candidates excluded from a ranking.
const (
	SkipProfileNotFound = "profile_not_found"
	SkipFiltered        = "filtered"
	SkipFilterError     = "filter_error"
	SkipDuplicate       = "duplicate"
	SkipSelf            = "self"
	SkipOverLimit       = "over_limit"
)

// RankedCandidate is one entry of a ranking response.
type RankedCandidate struct {
	CandidateID    string             `json:"candidate_id"`
	Score          float64            `json:"score"`
	Rank           int                `json:"rank"`
	Contributions  map[string]float64 `json:"contributions"`
	Confidence     float64            `json:"confidence"`
	Provisional    bool               `json:"provisional"`
	Rationale      string             `json:"rationale,omitempty"`
	ScoringEventID string             `json:"scoring_event_id,omitempty"`
}

// Skipped names a candidate left out of a ranking and why.
type Skipped struct {
	CandidateID string `json:"candidate_id"`
	Reason      string `json:"reason"`
}

// Ranking is the result of ranking a candidate pool.
type Ranking struct {
	Domain       string            `json:"domain"`
	RequesterID  string            `json:"requester_id"`
	ModelVersion int64             `json:"model_version"`
	Baseline     bool              `json:"baseline"`
	Provisional  bool              `json:"provisional"`
	Results      []RankedCandidate `json:"results"`
	Skipped      []Skipped         `json:"skipped"`
}

// RetrainStatus reports whether enough new feedback exists to retrain.
type RetrainStatus struct {
	Domain        string `json:"domain"`
	ActiveVersion int64  `json:"active_version"`
	Unconsumed    int    `json:"unconsumed"`
	Threshold     int    `json:"threshold"`
	MinSamples    int    `json:"min_samples"`
	Due           bool   `json:"due"`
}

// ServiceStats is a snapshot of the engine's runtime state.
type ServiceStats struct {
	Started           bool     `json:"started"`
	WorkerCount       int      `json:"worker_count"`
	QueueSize         int      `json:"queue_size"`
	QueueLength       int      `json:"queue_length"`
	FeedbackProcessed int64    `json:"feedback_processed"`
	DedupeSize        int      `json:"dedupe_size"`
	DedupeEntries     int64    `json:"dedupe_entries"`
	DefaultDomain     string   `json:"default_domain"`
	MaxCandidates     int      `json:"max_candidates"`
	MinSamples        int      `json:"min_samples"`
	InsightEnabled    bool     `json:"insight_enabled"`
	Domains           []string `json:"domains,omitempty"`

	// Retrain is set when the snapshot was taken for a single domain.
	Retrain *RetrainStatus `json:"retrain,omitempty"`
}
