package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/matchlearn/internal/adapters/insight"
	"github.com/okian/matchlearn/internal/adapters/repository"
	service "github.com/okian/matchlearn/internal/app"
	"github.com/okian/matchlearn/internal/domain/eligibility"
	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type failingEvents struct {
	repository.Store
}

func (failingEvents) AppendEvents(context.Context, []model.ScoringEvent) error {
	return errors.New("event log unavailable")
}

type failingInsight struct{}

func (failingInsight) Name() string { return "failing" }
func (failingInsight) Explain(context.Context, insight.Request) (string, error) {
	return "", errors.New("provider down")
}

func order(r types.Ranking) []string {
	ids := make([]string, len(r.Results))
	for i, c := range r.Results {
		ids[i] = c.CandidateID
	}
	return ids
}

func TestRank_ActiveModel(t *testing.T) {
	Convey("Given the example weights published and activated", t, func() {
		f := newFixture()
		ctx := context.Background()
		m, err := f.svc.PublishWeights(ctx, "", exampleWeights())
		So(err, ShouldBeNil)
		_, err = f.svc.Activate(ctx, "", m.Version, nil, false)
		So(err, ShouldBeNil)

		Convey("When ranking the oncology candidates", func() {
			r, err := f.svc.Rank(ctx, service.RankRequest{RequesterID: "req", CandidateIDs: []string{"B", "A", "C"}})
			So(err, ShouldBeNil)

			Convey("Then the close fit comes first", func() {
				So(order(r), ShouldResemble, []string{"A", "C", "B"})
				So(r.Results[0].Rank, ShouldEqual, 1)
				So(r.Results[0].Score, ShouldBeGreaterThan, r.Results[1].Score)
				So(r.Baseline, ShouldBeFalse)
				So(r.ModelVersion, ShouldEqual, m.Version)
				So(r.Domain, ShouldEqual, "default")
			})

			Convey("Then contributions add up to each score", func() {
				for _, c := range r.Results {
					var sum float64
					for _, v := range c.Contributions {
						sum += v
					}
					So(sum, ShouldAlmostEqual, c.Score, 1e-9)
					So(c.Contributions, ShouldContainKey, "expertise")
				}
			})

			Convey("Then every result carries a scoring event", func() {
				for _, c := range r.Results {
					So(c.ScoringEventID, ShouldNotBeEmpty)
					ev, err := f.store.Event(ctx, c.ScoringEventID)
					So(err, ShouldBeNil)
					So(ev.CandidateID, ShouldEqual, c.CandidateID)
					So(ev.RankPosition, ShouldEqual, c.Rank)
					So(ev.ModelVersion, ShouldEqual, m.Version)
				}
			})

			Convey("Then a model without training samples is provisional", func() {
				So(r.Provisional, ShouldBeTrue)
				for _, c := range r.Results {
					So(c.Confidence, ShouldBeBetweenOrEqual, 0, 0.6)
				}
			})
		})

		Convey("When ranking the same pool twice", func() {
			req := service.RankRequest{RequesterID: "req", CandidateIDs: []string{"C", "B", "A"}}
			first, err := f.svc.Rank(ctx, req)
			So(err, ShouldBeNil)
			second, err := f.svc.Rank(ctx, req)
			So(err, ShouldBeNil)

			Convey("Then scores and order are identical", func() {
				So(order(second), ShouldResemble, order(first))
				for i := range first.Results {
					So(second.Results[i].Score, ShouldEqual, first.Results[i].Score)
				}
			})
		})
	})
}

func TestRank_Baseline(t *testing.T) {
	Convey("Given a domain without an active model", t, func() {
		f := newFixture()
		r, err := f.svc.Rank(context.Background(), service.RankRequest{
			Domain: "fresh", RequesterID: "req", CandidateIDs: []string{"A", "B", "C"},
		})

		Convey("Then the baseline ranks and every result is provisional", func() {
			So(err, ShouldBeNil)
			So(r.Baseline, ShouldBeTrue)
			So(r.ModelVersion, ShouldEqual, model.BaselineVersion)
			So(r.Provisional, ShouldBeTrue)
			So(order(r), ShouldResemble, []string{"A", "C", "B"})
			for _, c := range r.Results {
				So(c.Provisional, ShouldBeTrue)
				So(c.Confidence, ShouldBeLessThanOrEqualTo, 0.6)
			}
		})
	})
}

func TestRank_Skipped(t *testing.T) {
	Convey("Given a service capped at two candidates", t, func() {
		f := newFixture(service.WithMaxCandidates(2))
		r, err := f.svc.Rank(context.Background(), service.RankRequest{
			RequesterID:  "req",
			CandidateIDs: []string{"A", "A", "req", "ghost", "B", "C"},
		})

		Convey("Then unusable candidates are reported with a reason", func() {
			So(err, ShouldBeNil)
			So(order(r), ShouldResemble, []string{"A"})
			So(r.Skipped, ShouldContain, types.Skipped{CandidateID: "A", Reason: types.SkipDuplicate})
			So(r.Skipped, ShouldContain, types.Skipped{CandidateID: "req", Reason: types.SkipSelf})
			So(r.Skipped, ShouldContain, types.Skipped{CandidateID: "ghost", Reason: types.SkipProfileNotFound})
			So(r.Skipped, ShouldContain, types.Skipped{CandidateID: "B", Reason: types.SkipOverLimit})
			So(r.Skipped, ShouldContain, types.Skipped{CandidateID: "C", Reason: types.SkipOverLimit})
			So(len(r.Skipped), ShouldEqual, 5)
		})
	})

	Convey("Given an empty candidate pool", t, func() {
		f := newFixture()
		r, err := f.svc.Rank(context.Background(), service.RankRequest{RequesterID: "req"})

		Convey("Then the ranking is empty but valid", func() {
			So(err, ShouldBeNil)
			So(r.Results, ShouldBeEmpty)
			So(r.Skipped, ShouldBeEmpty)
		})
	})
}

func TestRank_Ties(t *testing.T) {
	Convey("Given two candidates with identical profiles", t, func() {
		f := newFixture()
		ctx := context.Background()
		So(f.profiles.Put(ctx,
			model.Profile{ID: "Z2", Country: "US"},
			model.Profile{ID: "Z1", Country: "US"},
		), ShouldBeNil)

		r, err := f.svc.Rank(ctx, service.RankRequest{RequesterID: "req", CandidateIDs: []string{"Z2", "Z1"}})

		Convey("Then ties break by candidate id", func() {
			So(err, ShouldBeNil)
			So(order(r), ShouldResemble, []string{"Z1", "Z2"})
			So(r.Results[0].Score, ShouldEqual, r.Results[1].Score)
		})
	})
}

func TestRank_Errors(t *testing.T) {
	Convey("Given a service", t, func() {
		f := newFixture()
		ctx := context.Background()

		Convey("Then an empty requester is invalid", func() {
			_, err := f.svc.Rank(ctx, service.RankRequest{CandidateIDs: []string{"A"}})
			So(errors.Is(err, service.ErrInvalidRequest), ShouldBeTrue)
		})

		Convey("Then an unknown requester is not found", func() {
			_, err := f.svc.Rank(ctx, service.RankRequest{RequesterID: "nobody", CandidateIDs: []string{"A"}})
			So(errors.Is(err, model.ErrProfileNotFound), ShouldBeTrue)
		})

		Convey("Then a malformed filter fails to compile", func() {
			_, err := f.svc.Rank(ctx, service.RankRequest{RequesterID: "req", CandidateIDs: []string{"A"}, Filter: "candidate.country =="})
			So(errors.Is(err, eligibility.ErrCompile), ShouldBeTrue)
		})
	})
}

func TestRank_Filter(t *testing.T) {
	Convey("Given a service", t, func() {
		f := newFixture()
		ctx := context.Background()

		Convey("When filtering on candidate country", func() {
			r, err := f.svc.Rank(ctx, service.RankRequest{
				RequesterID: "req", CandidateIDs: []string{"A", "B", "C"},
				Filter: `candidate.country == requester.country`,
			})

			Convey("Then foreign candidates are filtered", func() {
				So(err, ShouldBeNil)
				So(order(r), ShouldResemble, []string{"A", "C"})
				So(r.Skipped, ShouldResemble, []types.Skipped{{CandidateID: "B", Reason: types.SkipFiltered}})
			})
		})

		Convey("When the filter cannot evaluate a candidate", func() {
			r, err := f.svc.Rank(ctx, service.RankRequest{
				RequesterID: "req", CandidateIDs: []string{"A", "C"},
				Filter: `candidate.headcount > 10`,
			})

			Convey("Then that candidate is skipped with a filter error", func() {
				So(err, ShouldBeNil)
				So(order(r), ShouldResemble, []string{"A"})
				So(r.Skipped, ShouldResemble, []types.Skipped{{CandidateID: "C", Reason: types.SkipFilterError}})
			})
		})
	})
}

func TestRank_Degraded(t *testing.T) {
	Convey("Given an event log that rejects writes", t, func() {
		f := newFixture(service.WithStore(failingEvents{Store: repository.NewMemoryStore()}))
		r, err := f.svc.Rank(context.Background(), service.RankRequest{RequesterID: "req", CandidateIDs: []string{"A", "B"}})

		Convey("Then the ranking is still served without event ids", func() {
			So(err, ShouldBeNil)
			So(order(r), ShouldResemble, []string{"A", "B"})
			for _, c := range r.Results {
				So(c.ScoringEventID, ShouldBeEmpty)
			}
		})
	})
}

func TestRank_Explain(t *testing.T) {
	Convey("Given the template rationale generator", t, func() {
		f := newFixture(service.WithInsight(insight.NewTemplate()))
		ctx := context.Background()

		Convey("When explanations are requested", func() {
			r, err := f.svc.Rank(ctx, service.RankRequest{RequesterID: "req", CandidateIDs: []string{"A", "B"}, Explain: true})

			Convey("Then every result carries a rationale", func() {
				So(err, ShouldBeNil)
				So(r.Results[0].Rationale, ShouldStartWith, "A ranked #1")
				So(r.Results[1].Rationale, ShouldStartWith, "B ranked #2")
			})
		})

		Convey("When explanations are not requested", func() {
			r, err := f.svc.Rank(ctx, service.RankRequest{RequesterID: "req", CandidateIDs: []string{"A"}})

			Convey("Then no rationale is attached", func() {
				So(err, ShouldBeNil)
				So(r.Results[0].Rationale, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a failing rationale generator", t, func() {
		f := newFixture(service.WithInsight(failingInsight{}))
		r, err := f.svc.Rank(context.Background(), service.RankRequest{RequesterID: "req", CandidateIDs: []string{"A"}, Explain: true})

		Convey("Then the ranking is served without rationales", func() {
			So(err, ShouldBeNil)
			So(r.Results, ShouldHaveLength, 1)
			So(r.Results[0].Rationale, ShouldBeEmpty)
		})
	})
}
