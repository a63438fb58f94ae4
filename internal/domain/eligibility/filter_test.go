package eligibility_test

import (
	"errors"
	"testing"

	"github.com/okian/matchlearn/internal/domain/eligibility"
	"github.com/okian/matchlearn/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFilter(t *testing.T) {
	score := 82.0
	headcount := 40
	req := model.Profile{ID: "req", Country: "US"}
	cand := model.Profile{ID: "c1", Country: "US", Expertise: []string{"oncology"}, ComplianceScore: &score, Headcount: &headcount}
	x := model.FeatureVector{1, 0.5, 0.82, 0.5, 0.5}

	Convey("Given an empty expression", t, func() {
		f, err := eligibility.Compile("  ")

		Convey("Then every candidate is allowed", func() {
			So(err, ShouldBeNil)
			ok, err := f.Allow(req, cand, x)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})
	})

	Convey("Given an expression over profile fields", t, func() {
		f, err := eligibility.Compile(`candidate.country == requester.country && "oncology" in candidate.expertise`)
		So(err, ShouldBeNil)

		Convey("Then matching candidates pass", func() {
			ok, err := f.Allow(req, cand, x)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})

		Convey("Then others are rejected", func() {
			ok, err := f.Allow(req, model.Profile{ID: "c2", Country: "FR"}, x)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given an expression over features and optional fields", t, func() {
		f, err := eligibility.Compile(`features.compliance >= 0.8 && candidate.headcount != null && candidate.headcount > 10`)
		So(err, ShouldBeNil)

		Convey("Then it evaluates against the extracted vector", func() {
			ok, err := f.Allow(req, cand, x)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			ok, err = f.Allow(req, model.Profile{ID: "c3"}, x)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given a malformed expression", t, func() {
		_, err := eligibility.Compile(`candidate.country ==`)

		Convey("Then compilation fails", func() {
			So(errors.Is(err, eligibility.ErrCompile), ShouldBeTrue)
		})
	})

	Convey("Given a non-boolean expression", t, func() {
		f, err := eligibility.Compile(`candidate.country`)
		So(err, ShouldBeNil)

		Convey("Then evaluation reports the type error", func() {
			_, err := f.Allow(req, cand, x)
			So(errors.Is(err, eligibility.ErrNotBoolean), ShouldBeTrue)
		})
	})
}
