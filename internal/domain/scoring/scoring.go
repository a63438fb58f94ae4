// Package scoring computes compatibility scores from feature vectors with a
// weighted-linear model.
package scoring

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/okian/matchlearn/internal/domain/model"
)

// Contributions holds each factor's share of the final score. The entries sum
// to the score value.
type Contributions [model.NumFactors]float64

// Map returns contributions keyed by factor name.
func (c Contributions) Map() map[string]float64 {
	out := make(map[string]float64, model.NumFactors)
	for _, f := range model.Factors() {
		out[f.String()] = c[f]
	}
	return out
}

// MarshalJSON encodes contributions as an object keyed by factor name.
func (c Contributions) MarshalJSON() ([]byte, error) { return json.Marshal(c.Map()) }

// FactorShare is one factor's contribution, used for explanations.
type FactorShare struct {
	Factor model.Factor
	Value  float64
}

// Ranked returns factors ordered by contribution, largest first. Ties keep
// canonical factor order.
func (c Contributions) Ranked() []FactorShare {
	out := make([]FactorShare, 0, model.NumFactors)
	for _, f := range model.Factors() {
		out = append(out, FactorShare{Factor: f, Value: c[f]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

// Result is a score plus its explanation.
type Result struct {
	Value         float64
	Contributions Contributions
	// LowConfidence is set when the weights were degenerate and the score fell
	// back to an unweighted average.
	LowConfidence bool
}

// Score computes clamp(Σ w[f]·x[f] / Σ w[f], 0, 1). Negative or non-finite
// weights count as zero; if nothing remains, every factor weighs the same and
// the result is flagged low-confidence.
func Score(w model.Weights, x model.FeatureVector) Result {
	x = x.Clamped()

	var eff model.Weights
	var sum float64
	for i, wi := range w {
		if wi > 0 && !math.IsInf(wi, 1) {
			eff[i] = wi
			sum += wi
		}
	}

	low := false
	if sum <= 0 || math.IsInf(sum, 0) {
		eff = model.UniformWeights()
		sum = float64(model.NumFactors)
		low = true
	}

	var res Result
	var value float64
	for i := range eff {
		c := eff[i] * x[i] / sum
		res.Contributions[i] = c
		value += c
	}
	res.Value = model.Clamp01(value)
	res.LowConfidence = low
	return res
}

// Scorer binds a scoring model's weights.
type Scorer struct {
	model model.ScoringModel
}

// NewScorer returns a Scorer for m. The model is copied.
func NewScorer(m model.ScoringModel) Scorer { return Scorer{model: m} }

// Model returns the bound model.
func (s Scorer) Model() model.ScoringModel { return s.model }

// Score scores x with the bound weights. Degenerate models always yield
// low-confidence results.
func (s Scorer) Score(x model.FeatureVector) Result {
	r := Score(s.model.Weights, x)
	if s.model.Degenerate {
		r.LowConfidence = true
	}
	return r
}
