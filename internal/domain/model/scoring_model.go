package model

import "time"

// BaselineVersion identifies the unweighted fallback model. Real versions start at 1.
const BaselineVersion int64 = 0

// Metrics are the held-out evaluation results of a training run.
type Metrics struct {
	Accuracy    float64 `json:"accuracy"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1          float64 `json:"f1"`
	TrainSize   int     `json:"train_size"`
	HoldoutSize int     `json:"holdout_size"`
	Threshold   float64 `json:"threshold"`
}

// ScoringModel is an immutable, versioned set of factor weights. Only the
// registry toggles IsActive, and it does so on copies it hands out.
type ScoringModel struct {
	Domain              string    `json:"domain"`
	Version             int64     `json:"version"`
	Weights             Weights   `json:"weights"`
	TrainingSampleCount int       `json:"training_sample_count"`
	AccuracyEstimate    float64   `json:"accuracy_estimate"`
	Metrics             Metrics   `json:"metrics"`
	ParentVersion       int64     `json:"parent_version"`
	RunID               string    `json:"run_id,omitempty"`
	Degenerate          bool      `json:"degenerate"`
	CreatedAt           time.Time `json:"created_at"`
	IsActive            bool      `json:"is_active"`
}

// Baseline returns the unweighted fallback model for domain.
func Baseline(domain string) ScoringModel {
	return ScoringModel{
		Domain:           domain,
		Version:          BaselineVersion,
		Weights:          UniformWeights(),
		AccuracyEstimate: NeutralValue,
	}
}

// IsBaseline reports whether m is the unweighted fallback.
func (m ScoringModel) IsBaseline() bool { return m.Version == BaselineVersion }

// ActivationAction names an entry in the activation audit trail.
type ActivationAction string

// Audit trail actions.
const (
	ActionActivate ActivationAction = "activate"
	ActionRollback ActivationAction = "rollback"
)

// ActivationRecord is one entry of the per-domain activation audit trail.
// FromVersion is 0 when no model was active before.
type ActivationRecord struct {
	ID          string           `json:"id"`
	Domain      string           `json:"domain"`
	FromVersion int64            `json:"from_version"`
	ToVersion   int64            `json:"to_version"`
	Action      ActivationAction `json:"action"`
	At          time.Time        `json:"at"`
}
