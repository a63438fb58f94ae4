// Package features converts a (requester, candidate) pair into a normalized
// FeatureVector. Extraction is pure: no I/O, no state, no randomness.
package features

import (
	"math"
	"strings"

	"github.com/okian/matchlearn/internal/domain/model"
)

// Location buckets.
const (
	LocationSameCity    = 1.0
	LocationSameRegion  = 0.7
	LocationSameCountry = 0.4
	LocationOther       = 0.1
)

const (
	maxComplianceScore = 100.0
	maxRating          = 5.0
	// maxLogSizeGap is the log10 headcount gap treated as a total mismatch
	// (e.g. 10 vs 1,000,000 employees).
	maxLogSizeGap = 5.0
)

// stageOrder ranks company stages for size compatibility when headcount is unknown.
var stageOrder = map[string]int{
	"idea":       0,
	"seed":       1,
	"early":      2,
	"growth":     3,
	"late":       4,
	"enterprise": 5,
}

// Extractor computes feature vectors. The zero value is ready to use.
type Extractor struct{}

// New returns an Extractor.
func New() Extractor { return Extractor{} }

// Extract computes every factor independently. A missing input degrades only
// its own factor to model.NeutralValue.
func (Extractor) Extract(requester, candidate model.Profile) model.FeatureVector {
	var v model.FeatureVector
	v[model.FactorLocation] = Location(requester, candidate)
	v[model.FactorExpertise] = Expertise(requester.Expertise, candidate.Expertise)
	v[model.FactorCompliance] = Compliance(candidate.ComplianceScore)
	v[model.FactorSize] = Size(requester, candidate)
	v[model.FactorRating] = Rating(candidate.Rating, candidate.RatingCount)
	return v.Clamped()
}

// Location buckets geographic proximity.
func Location(a, b model.Profile) float64 {
	aCity, bCity := norm(a.City), norm(b.City)
	aRegion, bRegion := norm(a.Region), norm(b.Region)
	aCountry, bCountry := norm(a.Country), norm(b.Country)

	sameCountry := aCountry != "" && aCountry == bCountry
	countryKnown := aCountry != "" && bCountry != ""

	// A city or region name only matches within the same country when both
	// countries are known.
	if countryKnown && !sameCountry {
		return LocationOther
	}
	switch {
	case aCity != "" && aCity == bCity:
		return LocationSameCity
	case aRegion != "" && aRegion == bRegion:
		return LocationSameRegion
	case sameCountry:
		return LocationSameCountry
	case countryKnown:
		return LocationOther
	default:
		return model.NeutralValue
	}
}

// Expertise is the Jaccard overlap of the two tag sets.
func Expertise(a, b []string) float64 {
	setA, setB := tagSet(a), tagSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return model.NeutralValue
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// Compliance normalizes a 0..100 regulatory standing score.
func Compliance(score *float64) float64 {
	if score == nil || math.IsNaN(*score) {
		return model.NeutralValue
	}
	return model.Clamp01(*score / maxComplianceScore)
}

// Size is the inverse of the normalized company-size mismatch. Headcount is
// compared on a log scale; stage is the fallback when headcount is missing.
func Size(a, b model.Profile) float64 {
	if a.Headcount != nil && b.Headcount != nil && *a.Headcount >= 0 && *b.Headcount >= 0 {
		gap := math.Abs(math.Log10(float64(*a.Headcount)+1) - math.Log10(float64(*b.Headcount)+1))
		return model.Clamp01(1 - gap/maxLogSizeGap)
	}
	sa, okA := stageOrder[norm(a.Stage)]
	sb, okB := stageOrder[norm(b.Stage)]
	if okA && okB {
		span := float64(len(stageOrder) - 1)
		return model.Clamp01(1 - math.Abs(float64(sa-sb))/span)
	}
	return model.NeutralValue
}

// Rating normalizes the historical average rating; no history is neutral.
func Rating(avg *float64, count int) float64 {
	if avg == nil || count <= 0 || math.IsNaN(*avg) {
		return model.NeutralValue
	}
	return model.Clamp01(*avg / maxRating)
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func tagSet(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if n := norm(t); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}
