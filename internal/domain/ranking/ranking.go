// Package ranking orders candidates by compatibility with a requester and
// attaches a confidence estimate. It performs no I/O.
package ranking

import (
	"math"
	"sort"

	"github.com/okian/matchlearn/internal/domain/features"
	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/scoring"
)

// Default ranking configuration constants.
const (
	defaultMinSamples         = 30
	defaultProvisionalCeiling = 0.6
	defaultHalfSamples        = 20.0
)

// Ranked is one ranked candidate.
type Ranked struct {
	CandidateID   string
	Score         float64
	Rank          int
	Features      model.FeatureVector
	Contributions scoring.Contributions
	Confidence    float64
	Provisional   bool
}

// Ranker scores and orders candidate pools.
type Ranker struct {
	extractor          features.Extractor
	minSamples         int
	provisionalCeiling float64
	halfSamples        float64
}

// New creates a Ranker with configuration options.
func New(opts ...Option) *Ranker {
	r := &Ranker{
		extractor:          features.New(),
		minSamples:         defaultMinSamples,
		provisionalCeiling: defaultProvisionalCeiling,
		halfSamples:        defaultHalfSamples,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Confidence derives a [0,1] confidence from held-out accuracy and training
// volume. More samples and higher accuracy give higher confidence. Models below
// the minimum sample count, the baseline, and low-confidence scores are
// provisional and capped at the provisional ceiling.
func (r *Ranker) Confidence(m model.ScoringModel, lowConfidence bool) (float64, bool) {
	n := float64(m.TrainingSampleCount)
	if n < 0 {
		n = 0
	}
	volume := n / (n + r.halfSamples)
	c := model.Clamp01(m.AccuracyEstimate) * volume

	provisional := m.IsBaseline() || m.Degenerate || lowConfidence || m.TrainingSampleCount < r.minSamples
	if provisional {
		c = math.Min(c, r.provisionalCeiling)
	}
	return c, provisional
}

// Rank extracts features, scores every candidate with m and orders them by
// score DESC, candidate id ASC. Ranks are 1-based positions.
func (r *Ranker) Rank(m model.ScoringModel, requester model.Profile, candidates []model.Profile) []Ranked {
	scorer := scoring.NewScorer(m)
	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		x := r.extractor.Extract(requester, c)
		res := scorer.Score(x)
		conf, provisional := r.Confidence(m, res.LowConfidence)
		out = append(out, Ranked{
			CandidateID:   c.ID,
			Score:         res.Value,
			Features:      x,
			Contributions: res.Contributions,
			Confidence:    conf,
			Provisional:   provisional,
		})
	}
	Sort(out)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Sort orders entries by score DESC, then candidate id ASC.
func Sort(entries []Ranked) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].CandidateID < entries[j].CandidateID
	})
}
