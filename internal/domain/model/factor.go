// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Factor names one input dimension of the compatibility score.
type Factor int

// Known factors. The order is the canonical iteration and serialization order.
const (
	FactorLocation Factor = iota
	FactorExpertise
	FactorCompliance
	FactorSize
	FactorRating

	// NumFactors is the size of every FeatureVector and Weights array.
	NumFactors = int(FactorRating) + 1
)

// NeutralValue is the value a factor degrades to when its inputs are missing.
const NeutralValue = 0.5

var factorNames = [NumFactors]string{
	FactorLocation:   "location",
	FactorExpertise:  "expertise",
	FactorCompliance: "compliance",
	FactorSize:       "size",
	FactorRating:     "rating",
}

// Factors returns all factors in canonical order.
func Factors() [NumFactors]Factor {
	var out [NumFactors]Factor
	for i := range out {
		out[i] = Factor(i)
	}
	return out
}

func (f Factor) String() string {
	if f < 0 || int(f) >= NumFactors {
		return fmt.Sprintf("factor(%d)", int(f))
	}
	return factorNames[f]
}

// ParseFactor resolves a factor by name (case-insensitive).
func ParseFactor(name string) (Factor, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, fn := range factorNames {
		if fn == n {
			return Factor(i), nil
		}
	}
	return 0, fmt.Errorf("unknown factor %q", name)
}

// FeatureVector holds one normalized value in [0,1] per factor.
// The fixed-size array makes every factor present exactly once.
type FeatureVector [NumFactors]float64

// Clamp01 bounds x to [0,1]. NaN becomes the neutral value.
func Clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return NeutralValue
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// Get returns the value for f.
func (v FeatureVector) Get(f Factor) float64 { return v[f] }

// Clamped returns a copy with every value bounded to [0,1].
func (v FeatureVector) Clamped() FeatureVector {
	var out FeatureVector
	for i, x := range v {
		out[i] = Clamp01(x)
	}
	return out
}

// Map returns the vector keyed by factor name.
func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, NumFactors)
	for i, x := range v {
		out[factorNames[i]] = x
	}
	return out
}

// MarshalJSON encodes the vector as an object keyed by factor name.
func (v FeatureVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}

// UnmarshalJSON requires every factor to be present and clamps values to [0,1].
func (v *FeatureVector) UnmarshalJSON(b []byte) error {
	vals, err := decodeFactorMap(b)
	if err != nil {
		return fmt.Errorf("feature vector: %w", err)
	}
	for i, x := range vals {
		v[i] = Clamp01(x)
	}
	return nil
}

// Weights holds one non-negative weight per factor. The sum need not be 1.
type Weights [NumFactors]float64

// UniformWeights returns equal weights, used by the unweighted baseline.
func UniformWeights() Weights {
	var w Weights
	for i := range w {
		w[i] = 1
	}
	return w
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	var s float64
	for _, x := range w {
		s += x
	}
	return s
}

// IsZero reports whether every weight is zero.
func (w Weights) IsZero() bool {
	for _, x := range w {
		if x != 0 {
			return false
		}
	}
	return true
}

// Validate rejects negative or non-finite weights.
func (w Weights) Validate() error {
	for i, x := range w {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidWeights, factorNames[i])
		}
		if x < 0 {
			return fmt.Errorf("%w: %s is negative (%g)", ErrInvalidWeights, factorNames[i], x)
		}
	}
	return nil
}

// Map returns the weights keyed by factor name.
func (w Weights) Map() map[string]float64 {
	out := make(map[string]float64, NumFactors)
	for i, x := range w {
		out[factorNames[i]] = x
	}
	return out
}

// MarshalJSON encodes the weights as an object keyed by factor name.
func (w Weights) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Map())
}

// UnmarshalJSON requires every factor to be present.
func (w *Weights) UnmarshalJSON(b []byte) error {
	vals, err := decodeFactorMap(b)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	*w = Weights(vals)
	return nil
}

// WeightsFromMap builds Weights from a name-keyed map. Every factor must be
// present exactly once.
func WeightsFromMap(m map[string]float64) (Weights, error) {
	var w Weights
	var present [NumFactors]bool
	for name, x := range m {
		f, err := ParseFactor(name)
		if err != nil {
			return Weights{}, fmt.Errorf("%w: %v", ErrInvalidWeights, err)
		}
		if present[f] {
			return Weights{}, fmt.Errorf("%w: duplicate factor %q", ErrInvalidWeights, factorNames[f])
		}
		w[f] = x
		present[f] = true
	}
	for i, ok := range present {
		if !ok {
			return Weights{}, fmt.Errorf("%w: missing factor %q", ErrInvalidWeights, factorNames[i])
		}
	}
	return w, w.Validate()
}

func decodeFactorMap(b []byte) ([NumFactors]float64, error) {
	var raw map[string]float64
	var out [NumFactors]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return out, err
	}
	var present [NumFactors]bool
	for name, x := range raw {
		f, err := ParseFactor(name)
		if err != nil {
			return out, err
		}
		if present[f] {
			return out, fmt.Errorf("duplicate factor %q", factorNames[f])
		}
		out[f] = x
		present[f] = true
	}
	for i, ok := range present {
		if !ok {
			return out, fmt.Errorf("missing factor %q", factorNames[i])
		}
	}
	return out, nil
}
