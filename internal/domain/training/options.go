package training

import (
	"time"

	"github.com/okian/matchlearn/pkg/logger"
)

// Option applies a configuration option to the Trainer.
type Option func(*Trainer)

// WithMinSamples sets the minimum labeled record count for a run.
func WithMinSamples(n int) Option {
	return func(t *Trainer) {
		if n > 0 {
			t.minSamples = n
		}
	}
}

// WithMaxStepFraction bounds how far any weight may move from its warm-start
// value in one run, as a fraction of that value.
func WithMaxStepFraction(f float64) Option {
	return func(t *Trainer) {
		if f > 0 && f <= 1 {
			t.maxStep = f
		}
	}
}

// WithStepFloor sets, as a fraction of the mean warm weight, the smallest
// base a weight's step is computed from. Zero restores purely relative steps.
func WithStepFloor(f float64) Option {
	return func(t *Trainer) {
		if f >= 0 && f <= 1 {
			t.stepFloor = f
		}
	}
}

// WithHoldoutFraction sets the chronological tail share used for evaluation.
func WithHoldoutFraction(f float64) Option {
	return func(t *Trainer) {
		if f > 0 && f < 1 {
			t.holdout = f
		}
	}
}

// WithLearningRate sets the gradient step size.
func WithLearningRate(lr float64) Option {
	return func(t *Trainer) {
		if lr > 0 {
			t.learningRate = lr
		}
	}
}

// WithEpochs sets the number of passes over the factors.
func WithEpochs(n int) Option {
	return func(t *Trainer) {
		if n > 0 {
			t.epochs = n
		}
	}
}

// WithLogger sets the logger for the trainer.
func WithLogger(l logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.log = l
		}
	}
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(t *Trainer) {
		if now != nil {
			t.now = now
		}
	}
}
