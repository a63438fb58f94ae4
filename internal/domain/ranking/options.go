package ranking

// Option applies a configuration option to the Ranker.
type Option func(*Ranker)

// WithMinSamples sets the sample count below which confidence is provisional.
func WithMinSamples(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.minSamples = n
		}
	}
}

// WithProvisionalCeiling caps confidence for provisional models.
func WithProvisionalCeiling(c float64) Option {
	return func(r *Ranker) {
		if c > 0 && c <= 1 {
			r.provisionalCeiling = c
		}
	}
}

// WithHalfSamples sets the sample count at which the volume term reaches 0.5.
func WithHalfSamples(n float64) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.halfSamples = n
		}
	}
}
