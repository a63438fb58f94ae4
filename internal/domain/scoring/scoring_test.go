package scoring_test

import (
	"math"
	"testing"

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func exampleWeights() model.Weights {
	var w model.Weights
	w[model.FactorExpertise] = 0.5
	w[model.FactorLocation] = 0.2
	w[model.FactorCompliance] = 0.15
	w[model.FactorSize] = 0.1
	w[model.FactorRating] = 0.05
	return w
}

func TestScore(t *testing.T) {
	Convey("Given the example weights", t, func() {
		w := exampleWeights()

		Convey("When every factor is 1", func() {
			r := scoring.Score(w, model.FeatureVector{1, 1, 1, 1, 1})

			Convey("Then the score is 1 and contributions equal the normalized weights", func() {
				So(r.Value, ShouldAlmostEqual, 1.0, 1e-12)
				So(r.Contributions[model.FactorExpertise], ShouldAlmostEqual, 0.5, 1e-12)
				So(r.LowConfidence, ShouldBeFalse)
			})
		})

		Convey("When weights do not sum to one", func() {
			var doubled model.Weights
			for i := range w {
				doubled[i] = w[i] * 2
			}
			x := model.FeatureVector{0.3, 0.9, 0.1, 0.6, 0.5}

			Convey("Then the score is normalized by the weight sum", func() {
				So(scoring.Score(doubled, x).Value, ShouldAlmostEqual, scoring.Score(w, x).Value, 1e-12)
			})
		})

		Convey("When contributions are summed", func() {
			r := scoring.Score(w, model.FeatureVector{0.3, 0.9, 0.1, 0.6, 0.5})
			var sum float64
			for _, c := range r.Contributions {
				sum += c
			}

			Convey("Then they add up to the score", func() {
				So(sum, ShouldAlmostEqual, r.Value, 1e-12)
			})
		})

		Convey("When scoring the same input twice", func() {
			x := model.FeatureVector{0.12, 0.34, 0.56, 0.78, 0.9}

			Convey("Then results are identical", func() {
				So(scoring.Score(w, x), ShouldResemble, scoring.Score(w, x))
			})
		})
	})

	Convey("Given all-zero weights", t, func() {
		r := scoring.Score(model.Weights{}, model.FeatureVector{1, 0, 1, 0, 0.5})

		Convey("Then the unweighted average is used and flagged", func() {
			So(r.Value, ShouldAlmostEqual, 0.5, 1e-12)
			So(r.LowConfidence, ShouldBeTrue)
		})
	})

	Convey("Given invalid weights", t, func() {
		w := model.Weights{math.NaN(), -1, 2, 0, 0}
		r := scoring.Score(w, model.FeatureVector{0, 0, 0.8, 0, 0})

		Convey("Then only the valid weight counts", func() {
			So(r.Value, ShouldAlmostEqual, 0.8, 1e-12)
			So(r.LowConfidence, ShouldBeFalse)
		})
	})

	Convey("Given out-of-range features", t, func() {
		r := scoring.Score(model.UniformWeights(), model.FeatureVector{5, 5, 5, 5, 5})

		Convey("Then the score is bounded", func() {
			So(r.Value, ShouldBeLessThanOrEqualTo, 1)
		})
	})
}

func TestScorer(t *testing.T) {
	Convey("Given a degenerate model", t, func() {
		s := scoring.NewScorer(model.ScoringModel{Weights: exampleWeights(), Degenerate: true})

		Convey("Then its results are low-confidence", func() {
			So(s.Score(model.FeatureVector{1, 1, 1, 1, 1}).LowConfidence, ShouldBeTrue)
		})
	})
}

func TestContributionsRanked(t *testing.T) {
	Convey("Given contributions", t, func() {
		c := scoring.Contributions{0.1, 0.4, 0.1, 0.2, 0}
		r := c.Ranked()

		Convey("Then factors are ordered by share with stable ties", func() {
			So(r[0].Factor, ShouldEqual, model.FactorExpertise)
			So(r[1].Factor, ShouldEqual, model.FactorSize)
			So(r[2].Factor, ShouldEqual, model.FactorLocation)
			So(r[3].Factor, ShouldEqual, model.FactorCompliance)
		})
	})
}
