// Package training fits new scoring model versions from labeled feedback.
//
// A run warm-starts from the domain's active weights and applies bounded
// coordinate steps on a logistic objective, so one batch of feedback can only
// nudge live scoring. Nothing is published until the fit completes.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/scoring"
	"github.com/okian/matchlearn/pkg/logger"
)

// Default trainer configuration constants.
const (
	defaultMinSamples      = 30
	defaultMaxStepFraction = 0.2
	defaultStepFloor       = 0.1
	defaultHoldoutFraction = 0.2
	defaultLearningRate    = 0.05
	defaultEpochs          = 50

	// steepness scales the score margin fed to the logistic link.
	steepness = 8.0
	// degenerateEpsilon is the weight sum below which a fit is uninformative.
	degenerateEpsilon = 1e-9
)

// Registry is the part of the model registry a training run needs.
type Registry interface {
	// Active returns the active model or model.ErrNoActiveModel.
	Active(ctx context.Context, domain string) (model.ScoringModel, error)
	// Publish stores m as a new inactive version and returns it with its
	// assigned version number.
	Publish(ctx context.Context, m model.ScoringModel) (model.ScoringModel, error)
}

// Sample is one labeled feature vector.
type Sample struct {
	X model.FeatureVector
	Y float64
}

// Trainer produces new inactive model versions.
type Trainer struct {
	registry     Registry
	log          logger.Logger
	now          func() time.Time
	minSamples   int
	maxStep      float64
	stepFloor    float64
	holdout      float64
	learningRate float64
	epochs       int
}

// New creates a Trainer publishing into reg.
func New(reg Registry, opts ...Option) *Trainer {
	t := &Trainer{
		registry:     reg,
		log:          logger.Get().Named("trainer"),
		now:          time.Now,
		minSamples:   defaultMinSamples,
		maxStep:      defaultMaxStepFraction,
		stepFloor:    defaultStepFloor,
		holdout:      defaultHoldoutFraction,
		learningRate: defaultLearningRate,
		epochs:       defaultEpochs,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MinSamples returns the labeled record count a run requires.
func (t *Trainer) MinSamples() int { return t.minSamples }

// Train fits a new version for domain from feedback and publishes it inactive.
//
// It returns *model.InsufficientDataError without publishing when too few
// labeled records are present. A fit ending in all-zero weights is published
// flagged degenerate and returned together with *model.DegenerateFitError.
// Cancellation before publish leaves the registry untouched.
func (t *Trainer) Train(ctx context.Context, domain string, feedback []model.FeedbackRecord) (model.ScoringModel, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoringModel{}, err
	}
	start := time.Now()

	samples, counts := Partition(domain, feedback)
	if len(samples) < t.minSamples {
		err := &model.InsufficientDataError{
			Domain:   domain,
			Labeled:  len(samples),
			Required: t.minSamples,
			Accepted: counts.Accepted,
			Rejected: counts.Rejected,
			Ignored:  counts.Ignored,
		}
		t.log.Warn(ctx, "training skipped",
			logger.Domain(domain),
			logger.Int("labeled", len(samples)),
			logger.Int("required", t.minSamples),
		)
		return model.ScoringModel{}, err
	}

	warm, err := t.warmStart(ctx, domain)
	if err != nil {
		return model.ScoringModel{}, err
	}

	trainSet, holdoutSet := Split(samples, t.holdout)
	w, threshold, err := t.Fit(ctx, warm.Weights, trainSet)
	if err != nil {
		return model.ScoringModel{}, fmt.Errorf("training %q: %w", domain, err)
	}

	evalSet := holdoutSet
	if len(evalSet) == 0 {
		evalSet = trainSet
	}
	metrics := Evaluate(w, threshold, evalSet)
	metrics.TrainSize = len(trainSet)
	metrics.HoldoutSize = len(holdoutSet)

	candidate := model.ScoringModel{
		Domain:              domain,
		Weights:             w,
		TrainingSampleCount: len(samples),
		AccuracyEstimate:    metrics.Accuracy,
		Metrics:             metrics,
		ParentVersion:       warm.Version,
		RunID:               uuid.NewString(),
		Degenerate:          w.Sum() < degenerateEpsilon,
		CreatedAt:           t.now().UTC(),
	}

	if err := ctx.Err(); err != nil {
		return model.ScoringModel{}, err
	}
	published, err := t.registry.Publish(ctx, candidate)
	if err != nil {
		return model.ScoringModel{}, fmt.Errorf("publishing %q: %w", domain, err)
	}

	fields := []logger.Field{
		logger.Domain(domain),
		logger.Version(published.Version),
		logger.Int64("parent", published.ParentVersion),
		logger.Int("samples", len(samples)),
		logger.Float64("accuracy", metrics.Accuracy),
		logger.Float64("f1", metrics.F1),
		logger.Duration("elapsed", time.Since(start)),
	}
	if published.Degenerate {
		t.log.Warn(ctx, "training produced a degenerate model", fields...)
		return published, &model.DegenerateFitError{
			Domain:  domain,
			Version: published.Version,
			Samples: len(samples),
			Metrics: metrics,
		}
	}
	t.log.Info(ctx, "training run published", fields...)
	return published, nil
}

// warmStart returns the model whose weights seed the run. Without an active
// model the unweighted baseline is used.
func (t *Trainer) warmStart(ctx context.Context, domain string) (model.ScoringModel, error) {
	active, err := t.registry.Active(ctx, domain)
	switch {
	case err == nil:
		active.Weights = sanitize(active.Weights)
		return active, nil
	case errors.Is(err, model.ErrNoActiveModel):
		return model.Baseline(domain), nil
	default:
		return model.ScoringModel{}, fmt.Errorf("loading active model for %q: %w", domain, err)
	}
}

// Fit runs bounded coordinate descent on a logistic loss starting at warm.
// Every weight stays within the interval returned by Bounds. It returns the
// fitted weights and the decision threshold separating accepted from rejected
// scores.
func (t *Trainer) Fit(ctx context.Context, warm model.Weights, train []Sample) (model.Weights, float64, error) {
	warm = sanitize(warm)
	lo, hi := Bounds(warm, t.maxStep, t.stepFloor)
	w := warm
	for epoch := 0; epoch < t.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return model.Weights{}, 0, err
		}
		c := Threshold(w, train)
		for i := range w {
			if lo[i] == hi[i] {
				continue
			}
			g := gradient(w, train, c, i)
			w[i] = math.Min(hi[i], math.Max(lo[i], w[i]-t.learningRate*g))
		}
	}
	return w, Threshold(w, train), nil
}

// Bounds returns the per-factor interval a run may move each weight within.
// The step is maxStep of the warm weight, but never less than maxStep of
// floor·mean(warm), so a zero weight can still grow. Lower bounds stop at 0.
func Bounds(warm model.Weights, maxStep, floor float64) (lo, hi model.Weights) {
	base := floor * warm.Sum() / float64(len(warm))
	for i, w := range warm {
		step := maxStep * math.Max(w, base)
		lo[i] = math.Max(0, w-step)
		hi[i] = w + step
	}
	return lo, hi
}

// gradient is the mean derivative of the logistic loss with respect to w[i]
// where p = σ(k·(s−c)) and s is the normalized weighted score.
func gradient(w model.Weights, train []Sample, c float64, i int) float64 {
	sum := w.Sum()
	if sum <= 0 || len(train) == 0 {
		return 0
	}
	var g float64
	for _, smp := range train {
		var s float64
		for j := range w {
			s += w[j] * smp.X[j]
		}
		s /= sum
		p := sigmoid(steepness * (s - c))
		g += steepness * (p - smp.Y) * (smp.X[i] - s) / sum
	}
	return g / float64(len(train))
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

// Threshold is the midpoint between mean accepted and mean rejected scores.
// With a single class present it is that class's mean score.
func Threshold(w model.Weights, set []Sample) float64 {
	var posSum, negSum float64
	var pos, neg int
	for _, smp := range set {
		s := scoring.Score(w, smp.X).Value
		if smp.Y >= 0.5 {
			posSum += s
			pos++
		} else {
			negSum += s
			neg++
		}
	}
	switch {
	case pos > 0 && neg > 0:
		return (posSum/float64(pos) + negSum/float64(neg)) / 2
	case pos > 0:
		return posSum / float64(pos)
	case neg > 0:
		return negSum / float64(neg)
	default:
		return model.NeutralValue
	}
}

// Evaluate classifies set with score >= threshold as accepted and reports
// accuracy, precision, recall and F1.
func Evaluate(w model.Weights, threshold float64, set []Sample) model.Metrics {
	m := model.Metrics{Threshold: threshold}
	if len(set) == 0 {
		return m
	}
	var tp, fp, tn, fn float64
	for _, smp := range set {
		predicted := scoring.Score(w, smp.X).Value >= threshold
		actual := smp.Y >= 0.5
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && !actual:
			tn++
		default:
			fn++
		}
	}
	m.Accuracy = (tp + tn) / float64(len(set))
	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// Counts tallies decisions seen while partitioning.
type Counts struct {
	Accepted int
	Rejected int
	Ignored  int
}

// Partition orders feedback chronologically (ties by id), drops ignored
// decisions and records of other domains, and returns labeled samples.
func Partition(domain string, feedback []model.FeedbackRecord) ([]Sample, Counts) {
	records := make([]model.FeedbackRecord, 0, len(feedback))
	for i := range feedback {
		if domain != "" && feedback[i].Domain != "" && feedback[i].Domain != domain {
			continue
		}
		records = append(records, feedback[i])
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})

	var counts Counts
	samples := make([]Sample, 0, len(records))
	for i := range records {
		y, ok := records[i].Decision.Label()
		if !ok {
			counts.Ignored++
			continue
		}
		if y == 1 {
			counts.Accepted++
		} else {
			counts.Rejected++
		}
		samples = append(samples, Sample{X: records[i].FeatureVector.Clamped(), Y: y})
	}
	return samples, counts
}

// Split returns the chronological head for fitting and the trailing fraction
// for evaluation. The holdout has at least one sample when two or more exist.
func Split(samples []Sample, fraction float64) (train, holdout []Sample) {
	n := len(samples)
	if n < 2 {
		return samples, nil
	}
	h := int(math.Round(float64(n) * fraction))
	if h < 1 {
		h = 1
	}
	if h >= n {
		h = n - 1
	}
	return samples[:n-h], samples[n-h:]
}

// sanitize zeroes negative and non-finite weights.
func sanitize(w model.Weights) model.Weights {
	for i, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			w[i] = 0
		}
	}
	return w
}
