package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchlearn/internal/adapters/repository"
	"github.com/okian/matchlearn/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type factory struct {
	name string
	open func(t *testing.T) repository.Store
}

func factories() []factory {
	return []factory{
		{name: "memory", open: func(t *testing.T) repository.Store {
			return repository.NewMemoryStore()
		}},
		{name: "sqlite", open: func(t *testing.T) repository.Store {
			dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
			s, err := repository.Open(context.Background(), repository.DriverSQLite, dsn, repository.WithMaxOpenConns(1))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		}},
	}
}

func weights() model.Weights {
	var w model.Weights
	w[model.FactorExpertise] = 0.5
	w[model.FactorLocation] = 0.2
	w[model.FactorCompliance] = 0.15
	w[model.FactorSize] = 0.1
	w[model.FactorRating] = 0.05
	return w
}

func publishN(ctx context.Context, s repository.Store, domain string, n int) {
	for i := 0; i < n; i++ {
		_, err := s.Publish(ctx, model.ScoringModel{Domain: domain, Weights: weights(), TrainingSampleCount: 40 + i, AccuracyEstimate: 0.7})
		So(err, ShouldBeNil)
	}
}

func activeCount(ctx context.Context, s repository.Store, domain string) int {
	list, err := s.List(ctx, domain)
	So(err, ShouldBeNil)
	n := 0
	for _, m := range list {
		if m.IsActive {
			n++
		}
	}
	return n
}

func TestFeedbackStore(t *testing.T) {
	for _, f := range factories() {
		f := f
		Convey("Given a "+f.name+" feedback store", t, func() {
			ctx := context.Background()
			s := f.open(t)
			defer s.Close()

			reason := "too far away"
			in := model.FeedbackInput{
				Domain:                 "default",
				CandidatePairID:        model.PairID("req", "A"),
				RequesterID:            "req",
				CandidateID:            "A",
				ScoringEventID:         "evt-1",
				FeatureVector:          model.FeatureVector{0.1, 0.123456789012345, 0.8, 0.3333333333333333, 0.5},
				ScoreAtDecision:        0.4321987654321,
				ModelVersionAtDecision: 3,
				Decision:               model.DecisionRejected,
				Reason:                 &reason,
			}

			Convey("When a record is written and queried back", func() {
				rec, err := s.Record(ctx, in)
				So(err, ShouldBeNil)
				got, err := s.Query(ctx, model.FeedbackQuery{Domain: "default"})
				So(err, ShouldBeNil)

				Convey("Then every field round-trips unchanged", func() {
					So(len(got), ShouldEqual, 1)
					So(got[0], ShouldResemble, rec)
					So(rec.ID, ShouldNotBeEmpty)
					So(*got[0].Reason, ShouldEqual, reason)
					So(got[0].CreatedAt.Location(), ShouldEqual, time.UTC)
				})
			})

			Convey("When the decision is unknown", func() {
				bad := in
				bad.Decision = "maybe"
				_, err := s.Record(ctx, bad)

				Convey("Then it is rejected", func() {
					So(errors.Is(err, repository.ErrInvalidFeedback), ShouldBeTrue)
					So(errors.Is(err, model.ErrInvalidDecision), ShouldBeTrue)
				})
			})

			Convey("When the pair id is missing", func() {
				bad := in
				bad.CandidatePairID = ""
				_, err := s.Record(ctx, bad)

				Convey("Then it is rejected", func() {
					So(errors.Is(err, repository.ErrInvalidFeedback), ShouldBeTrue)
				})
			})

			Convey("When filtering", func() {
				first, err := s.Record(ctx, in)
				So(err, ShouldBeNil)
				time.Sleep(2 * time.Millisecond)
				other := in
				other.ModelVersionAtDecision = 4
				other.Decision = model.DecisionAccepted
				second, err := s.Record(ctx, other)
				So(err, ShouldBeNil)
				_, err = s.Record(ctx, model.FeedbackInput{Domain: "elsewhere", CandidatePairID: "x:y", Decision: model.DecisionIgnored})
				So(err, ShouldBeNil)

				Convey("Then model version filters apply", func() {
					v := int64(4)
					got, err := s.Query(ctx, model.FeedbackQuery{Domain: "default", ModelVersion: &v})
					So(err, ShouldBeNil)
					So(len(got), ShouldEqual, 1)
					So(got[0].ID, ShouldEqual, second.ID)
				})

				Convey("Then since filters apply", func() {
					got, err := s.Query(ctx, model.FeedbackQuery{Domain: "default", Since: second.CreatedAt})
					So(err, ShouldBeNil)
					So(len(got), ShouldEqual, 1)
				})

				Convey("Then consumption is tracked and first consumer wins", func() {
					So(s.MarkConsumed(ctx, []string{first.ID}, 5), ShouldBeNil)
					So(s.MarkConsumed(ctx, []string{first.ID, second.ID}, 6), ShouldBeNil)

					got, err := s.Query(ctx, model.FeedbackQuery{Domain: "default"})
					So(err, ShouldBeNil)
					So(got[0].ConsumedByVersion, ShouldEqual, 5)
					So(got[1].ConsumedByVersion, ShouldEqual, 6)

					n, err := s.CountUnconsumed(ctx, "default")
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 0)

					unconsumed, err := s.Query(ctx, model.FeedbackQuery{UnconsumedOnly: true})
					So(err, ShouldBeNil)
					So(len(unconsumed), ShouldEqual, 1)
					So(unconsumed[0].Domain, ShouldEqual, "elsewhere")
				})
			})
		})
	}
}

func TestRegistry(t *testing.T) {
	for _, f := range factories() {
		f := f
		Convey("Given a "+f.name+" registry", t, func() {
			ctx := context.Background()
			s := f.open(t)
			defer s.Close()

			Convey("When nothing is active", func() {
				_, err := s.Active(ctx, "default")

				Convey("Then NoActiveModel is reported", func() {
					So(errors.Is(err, model.ErrNoActiveModel), ShouldBeTrue)
				})
			})

			Convey("When models are published", func() {
				publishN(ctx, s, "default", 2)
				list, err := s.List(ctx, "default")
				So(err, ShouldBeNil)

				Convey("Then versions increase from 1 and start inactive", func() {
					So(len(list), ShouldEqual, 2)
					So(list[0].Version, ShouldEqual, 1)
					So(list[1].Version, ShouldEqual, 2)
					So(list[0].IsActive, ShouldBeFalse)
					So(list[1].Weights, ShouldResemble, weights())
				})

				Convey("Then other domains number independently", func() {
					m, err := s.Publish(ctx, model.ScoringModel{Domain: "other", Weights: weights()})
					So(err, ShouldBeNil)
					So(m.Version, ShouldEqual, 1)
					domains, err := s.Domains(ctx)
					So(err, ShouldBeNil)
					So(domains, ShouldResemble, []string{"default", "other"})
				})
			})

			Convey("When invalid weights are published", func() {
				_, err := s.Publish(ctx, model.ScoringModel{Domain: "default", Weights: model.Weights{-1, 1, 1, 1, 1}})

				Convey("Then publish fails", func() {
					So(errors.Is(err, repository.ErrInvalidModel), ShouldBeTrue)
				})
			})

			Convey("When versions are activated in turn", func() {
				publishN(ctx, s, "default", 3)
				_, err := s.Activate(ctx, "default", 1)
				So(err, ShouldBeNil)
				_, err = s.Activate(ctx, "default", 2)
				So(err, ShouldBeNil)

				Convey("Then exactly one is active", func() {
					active, err := s.Active(ctx, "default")
					So(err, ShouldBeNil)
					So(active.Version, ShouldEqual, 2)
					So(active.IsActive, ShouldBeTrue)
					So(activeCount(ctx, s, "default"), ShouldEqual, 1)
				})

				Convey("Then rollback returns to the prior version", func() {
					m, err := s.Rollback(ctx, "default")
					So(err, ShouldBeNil)
					So(m.Version, ShouldEqual, 1)
					active, _ := s.Active(ctx, "default")
					So(active.Version, ShouldEqual, 1)

					_, err = s.Rollback(ctx, "default")
					So(errors.Is(err, model.ErrNoRollbackTarget), ShouldBeTrue)

					history, err := s.History(ctx, "default")
					So(err, ShouldBeNil)
					So(len(history), ShouldEqual, 3)
					So(history[2].Action, ShouldEqual, model.ActionRollback)
					So(history[2].FromVersion, ShouldEqual, 2)
					So(history[2].ToVersion, ShouldEqual, 1)
				})

				Convey("Then a stale expectation conflicts", func() {
					_, err := s.Activate(ctx, "default", 3, repository.IfActive(1))
					So(errors.Is(err, model.ErrActivationConflict), ShouldBeTrue)
					var ce *model.ConflictError
					So(errors.As(err, &ce), ShouldBeTrue)
					So(ce.Actual, ShouldEqual, 2)

					m, err := s.Activate(ctx, "default", 3, repository.IfActive(2))
					So(err, ShouldBeNil)
					So(m.Version, ShouldEqual, 3)
				})

				Convey("Then activating the active version is a no-op", func() {
					_, err := s.Activate(ctx, "default", 2)
					So(err, ShouldBeNil)
					history, _ := s.History(ctx, "default")
					So(len(history), ShouldEqual, 2)
				})

				Convey("Then unknown versions are not found", func() {
					_, err := s.Activate(ctx, "default", 99)
					So(errors.Is(err, model.ErrModelNotFound), ShouldBeTrue)
				})
			})

			Convey("When a degenerate model is activated", func() {
				m, err := s.Publish(ctx, model.ScoringModel{Domain: "default", Degenerate: true})
				So(err, ShouldBeNil)

				Convey("Then it needs an explicit override", func() {
					_, err := s.Activate(ctx, "default", m.Version)
					So(errors.Is(err, model.ErrDegenerateModel), ShouldBeTrue)

					_, err = s.Activate(ctx, "default", m.Version, repository.AllowDegenerate())
					So(err, ShouldBeNil)
				})
			})

			Convey("When there is no history", func() {
				publishN(ctx, s, "default", 1)
				_, err := s.Activate(ctx, "default", 1)
				So(err, ShouldBeNil)

				Convey("Then rollback has no target", func() {
					_, err := s.Rollback(ctx, "default")
					So(errors.Is(err, model.ErrNoRollbackTarget), ShouldBeTrue)
				})
			})
		})
	}
}

func TestRegistryConcurrentActivation(t *testing.T) {
	for _, f := range factories() {
		f := f
		Convey("Given a "+f.name+" registry under concurrent activation", t, func() {
			ctx := context.Background()
			s := f.open(t)
			defer s.Close()
			publishN(ctx, s, "default", 4)
			_, err := s.Activate(ctx, "default", 1)
			So(err, ShouldBeNil)

			Convey("When many writers activate while readers poll", func() {
				var wg sync.WaitGroup
				var readErrs sync.Map
				stop := make(chan struct{})
				for r := 0; r < 4; r++ {
					wg.Add(1)
					go func(r int) {
						defer wg.Done()
						for {
							select {
							case <-stop:
								return
							default:
							}
							if _, err := s.Active(ctx, "default"); err != nil {
								readErrs.Store(r, err)
							}
						}
					}(r)
				}
				var writers sync.WaitGroup
				for i := 0; i < 24; i++ {
					writers.Add(1)
					go func(i int) {
						defer writers.Done()
						_, _ = s.Activate(ctx, "default", int64(i%4)+1)
					}(i)
				}
				writers.Wait()
				close(stop)
				wg.Wait()

				Convey("Then readers never miss and exactly one version is active", func() {
					failed := 0
					readErrs.Range(func(_, _ any) bool { failed++; return true })
					So(failed, ShouldEqual, 0)
					So(activeCount(ctx, s, "default"), ShouldEqual, 1)
				})
			})

			Convey("When writers race with the same expectation", func() {
				var wg sync.WaitGroup
				var mu sync.Mutex
				wins, conflicts := 0, 0
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := s.Activate(ctx, "default", int64(i%3)+2, repository.IfActive(1))
						mu.Lock()
						defer mu.Unlock()
						switch {
						case err == nil:
							wins++
						case errors.Is(err, model.ErrActivationConflict):
							conflicts++
						}
					}(i)
				}
				wg.Wait()

				Convey("Then exactly one wins", func() {
					So(wins, ShouldEqual, 1)
					So(conflicts, ShouldEqual, 7)
					So(activeCount(ctx, s, "default"), ShouldEqual, 1)
				})
			})
		})
	}
}

func TestEventLog(t *testing.T) {
	for _, f := range factories() {
		f := f
		Convey("Given a "+f.name+" event log", t, func() {
			ctx := context.Background()
			s := f.open(t)
			defer s.Close()

			e := model.ScoringEvent{
				ID: uuid.NewString(), Domain: "default", RequesterID: "req", CandidateID: "A",
				FeatureVector: model.FeatureVector{1, 0.5, 0.8, 0.5, 0.5}, Score: 0.645, ModelVersion: 2,
				RankPosition: 1, CreatedAt: time.Now().UTC(),
			}
			So(s.AppendEvents(ctx, []model.ScoringEvent{e}), ShouldBeNil)

			Convey("Then events can be read back by id", func() {
				got, err := s.Event(ctx, e.ID)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, e)
			})

			Convey("Then unknown ids are not found", func() {
				_, err := s.Event(ctx, "missing")
				So(errors.Is(err, repository.ErrEventNotFound), ShouldBeTrue)
			})
		})
	}
}

func TestOpen(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := repository.Open(context.Background(), "oracle", "")

		Convey("Then Open fails", func() {
			So(errors.Is(err, repository.ErrUnsupportedDriver), ShouldBeTrue)
		})
	})
}
