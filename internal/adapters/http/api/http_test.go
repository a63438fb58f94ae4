package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/matchlearn/internal/adapters/http/api"
	service "github.com/okian/matchlearn/internal/app"
	"github.com/okian/matchlearn/internal/domain/eligibility"
	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// mockDependencies records calls and returns canned results.
type mockDependencies struct {
	rankReq  service.RankRequest
	ranking  types.Ranking
	rankErr  error
	seen     map[string]bool
	submitFn func(model.FeedbackSubmission) error
	query    model.FeedbackQuery
	records  []model.FeedbackRecord
	models   []model.ScoringModel
	modelErr error
	trained  model.ScoringModel
	trainErr error
	activate struct {
		version  int64
		expected *int64
		force    bool
	}
	threshold int
}

func newMock() *mockDependencies { return &mockDependencies{seen: map[string]bool{}} }

func (m *mockDependencies) Rank(_ context.Context, req service.RankRequest) (types.Ranking, error) {
	m.rankReq = req
	return m.ranking, m.rankErr
}

func (m *mockDependencies) SubmitFeedback(_ context.Context, sub model.FeedbackSubmission) (bool, error) {
	if m.submitFn != nil {
		if err := m.submitFn(sub); err != nil {
			return false, err
		}
	}
	if m.seen[sub.SubmissionID] {
		return true, nil
	}
	m.seen[sub.SubmissionID] = true
	return false, nil
}

func (m *mockDependencies) QueryFeedback(_ context.Context, q model.FeedbackQuery) ([]model.FeedbackRecord, error) {
	m.query = q
	return m.records, nil
}

func (m *mockDependencies) Domains(context.Context) ([]string, error) {
	return []string{"partner-match"}, nil
}

func (m *mockDependencies) Models(context.Context, string) ([]model.ScoringModel, error) {
	return m.models, m.modelErr
}

func (m *mockDependencies) ActiveModel(_ context.Context, domain string) (model.ScoringModel, error) {
	if m.modelErr != nil {
		return model.ScoringModel{}, m.modelErr
	}
	return model.ScoringModel{Domain: domain, Version: 3, IsActive: true}, nil
}

func (m *mockDependencies) History(context.Context, string) ([]model.ActivationRecord, error) {
	return nil, m.modelErr
}

func (m *mockDependencies) RetrainStatus(_ context.Context, domain string, threshold int) (types.RetrainStatus, error) {
	m.threshold = threshold
	return types.RetrainStatus{Domain: domain, Unconsumed: 12, Threshold: threshold, Due: threshold > 0 && threshold <= 12}, nil
}

func (m *mockDependencies) PublishWeights(_ context.Context, domain string, w model.Weights) (model.ScoringModel, error) {
	if err := w.Validate(); err != nil {
		return model.ScoringModel{}, fmt.Errorf("%w: %w", service.ErrInvalidRequest, err)
	}
	return model.ScoringModel{Domain: domain, Version: 4, Weights: w}, nil
}

func (m *mockDependencies) Train(context.Context, string) (model.ScoringModel, error) {
	return m.trained, m.trainErr
}

func (m *mockDependencies) Activate(_ context.Context, domain string, version int64, expected *int64, force bool) (model.ScoringModel, error) {
	m.activate.version, m.activate.expected, m.activate.force = version, expected, force
	if m.modelErr != nil {
		return model.ScoringModel{}, m.modelErr
	}
	return model.ScoringModel{Domain: domain, Version: version, IsActive: true}, nil
}

func (m *mockDependencies) Rollback(_ context.Context, domain string) (model.ScoringModel, error) {
	if m.modelErr != nil {
		return model.ScoringModel{}, m.modelErr
	}
	return model.ScoringModel{Domain: domain, Version: 1, IsActive: true}, nil
}

type mockStatsProvider struct {
	stats    types.ServiceStats
	readyErr error
	domain   string
}

func (m *mockStatsProvider) Stats(_ context.Context, domain string) (types.ServiceStats, error) {
	m.domain = domain
	st := m.stats
	if domain != "" {
		if domain == "missing" {
			return st, model.ErrModelNotFound
		}
		st.Retrain = &types.RetrainStatus{Domain: domain, Unconsumed: 3, Threshold: 50}
	}
	return st, nil
}

func (m *mockStatsProvider) Ready(context.Context) error { return m.readyErr }

func serve(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) errorResponse {
	var e errorResponse
	So(json.NewDecoder(w.Body).Decode(&e), ShouldBeNil)
	return e
}

func newMuxWithStats(deps *mockDependencies, stats *mockStatsProvider) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, stats).Register(context.Background(), mux)
	return mux
}

func newMux(deps *mockDependencies) *http.ServeMux {
	return newMuxWithStats(deps, &mockStatsProvider{stats: types.ServiceStats{Started: true}})
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(newMock())

		Convey("Then the health endpoint reports ok", func() {
			w := serve(mux, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then every API response carries a request id", func() {
			w := serve(mux, "GET", "/stats", "")
			So(w.Header().Get("X-Request-ID"), ShouldNotBeEmpty)

			req := httptest.NewRequest("GET", "/stats", http.NoBody)
			req.Header.Set("X-Request-ID", "abc-123")
			w = httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Header().Get("X-Request-ID"), ShouldEqual, "abc-123")
		})

		Convey("Then the metrics endpoint serves the registry", func() {
			So(serve(mux, "GET", "/metrics", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the stats endpoint returns JSON", func() {
			w := serve(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
			So(w.Body.String(), ShouldNotContainSubstring, `"retrain"`)
		})

		Convey("Then unknown model routes are not found", func() {
			So(serve(mux, "GET", "/models/d/unknown", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, "DELETE", "/models/d", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, "GET", "/models/d/a/b", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestStatsAndHealth(t *testing.T) {
	Convey("Given a server whose service is not ready", t, func() {
		stats := &mockStatsProvider{readyErr: errors.New("not started")}
		mux := newMuxWithStats(newMock(), stats)

		Convey("When probing health", func() {
			w := serve(mux, "GET", "/healthz", "")

			Convey("Then it is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(w.Body.String(), ShouldContainSubstring, "not started")
				So(w.Header().Get("X-Error-Code"), ShouldEqual, "unavailable")
			})
		})

		Convey("When asking for one domain's stats", func() {
			w := serve(mux, "GET", "/stats?domain=pharma", "")

			Convey("Then retraining status is included", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(stats.domain, ShouldEqual, "pharma")
				var st types.ServiceStats
				So(json.NewDecoder(w.Body).Decode(&st), ShouldBeNil)
				So(st.Retrain, ShouldNotBeNil)
				So(st.Retrain.Unconsumed, ShouldEqual, 3)
			})
		})

		Convey("When the stats lookup fails", func() {
			w := serve(mux, "GET", "/stats?domain=missing", "")

			Convey("Then the classified error code is returned and exposed as a header", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Header().Get("X-Error-Code"), ShouldEqual, "model_not_found")
				So(decodeError(w).Code, ShouldEqual, "model_not_found")
			})
		})

		Convey("When posting to stats", func() {
			So(serve(mux, "POST", "/stats", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRankHandler(t *testing.T) {
	Convey("Given a rank endpoint", t, func() {
		deps := newMock()
		deps.ranking = types.Ranking{
			Domain: "partner-match", RequesterID: "req", ModelVersion: 2,
			Results: []types.RankedCandidate{{CandidateID: "A", Score: 0.8, Rank: 1, Contributions: map[string]float64{"expertise": 0.5}}},
			Skipped: []types.Skipped{},
		}
		mux := newMux(deps)

		Convey("When posting a valid request", func() {
			w := serve(mux, "POST", "/rank", `{"domain":"partner-match","requester_id":"req","candidate_ids":["A","B"],"explain":true,"filter":"true"}`)

			Convey("Then the ranking is returned and the request forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var r types.Ranking
				So(json.NewDecoder(w.Body).Decode(&r), ShouldBeNil)
				So(r.Results[0].CandidateID, ShouldEqual, "A")
				So(deps.rankReq.CandidateIDs, ShouldResemble, []string{"A", "B"})
				So(deps.rankReq.Explain, ShouldBeTrue)
				So(deps.rankReq.Filter, ShouldEqual, "true")
			})
		})

		Convey("When the requester is missing", func() {
			w := serve(mux, "POST", "/rank", `{"candidate_ids":["A"]}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w).Code, ShouldEqual, "bad_request")
			})
		})

		Convey("When the body has unknown fields", func() {
			So(serve(mux, "POST", "/rank", `{"requester_id":"req","bogus":1}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the requester profile is unknown", func() {
			deps.rankErr = fmt.Errorf("requester: %w", model.ErrProfileNotFound)
			w := serve(mux, "POST", "/rank", `{"requester_id":"ghost"}`)

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w).Code, ShouldEqual, "profile_not_found")
			})
		})

		Convey("When the filter does not compile", func() {
			deps.rankErr = fmt.Errorf("%w: syntax error", eligibility.ErrCompile)
			So(serve(mux, "POST", "/rank", `{"requester_id":"req","filter":"=="}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When using GET", func() {
			So(serve(mux, "GET", "/rank", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestFeedbackHandler(t *testing.T) {
	Convey("Given a feedback endpoint", t, func() {
		deps := newMock()
		mux := newMux(deps)
		body := `{"submission_id":"s-1","domain":"partner-match","requester_id":"req","candidate_id":"A","decision":"accepted"}`

		Convey("When posting a new decision", func() {
			var got model.FeedbackSubmission
			deps.submitFn = func(s model.FeedbackSubmission) error { got = s; return nil }
			w := serve(mux, "POST", "/feedback", body)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var ack ackResponse
				So(json.NewDecoder(w.Body).Decode(&ack), ShouldBeNil)
				So(ack.Status, ShouldEqual, "accepted")
				So(got.Input.Decision, ShouldEqual, model.DecisionAccepted)
				So(got.Input.FeatureVector[model.FactorExpertise], ShouldEqual, model.NeutralValue)
			})
		})

		Convey("When the same submission is posted twice", func() {
			serve(mux, "POST", "/feedback", body)
			w := serve(mux, "POST", "/feedback", body)

			Convey("Then the second is acknowledged as a duplicate", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var ack ackResponse
				So(json.NewDecoder(w.Body).Decode(&ack), ShouldBeNil)
				So(ack.Duplicate, ShouldBeTrue)
			})
		})

		Convey("When a pair id and features are supplied", func() {
			var got model.FeedbackSubmission
			deps.submitFn = func(s model.FeedbackSubmission) error { got = s; return nil }
			w := serve(mux, "POST", "/feedback", `{"submission_id":"s-9","pair_id":"req:B","decision":"rejected","features":{"location":0.1,"expertise":0,"compliance":0.4,"size":0.2,"rating":0.6}}`)

			Convey("Then they are forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(got.Input.CandidatePairID, ShouldEqual, "req:B")
				So(got.Input.FeatureVector[model.FactorCompliance], ShouldEqual, 0.4)
			})
		})

		Convey("When the submission id is missing", func() {
			w := serve(mux, "POST", "/feedback", `{"decision":"accepted"}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the queue is full", func() {
			deps.submitFn = func(model.FeedbackSubmission) error { return service.ErrBackpressure }
			w := serve(mux, "POST", "/feedback", body)

			Convey("Then it reports backpressure", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decodeError(w).Code, ShouldEqual, "backpressure")
			})
		})

		Convey("When the decision is unknown", func() {
			deps.submitFn = func(s model.FeedbackSubmission) error {
				_, err := model.ParseDecision(string(s.Input.Decision))
				return fmt.Errorf("%w: %w", service.ErrInvalidRequest, err)
			}
			So(serve(mux, "POST", "/feedback", `{"submission_id":"s-2","pair_id":"a:b","decision":"maybe"}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When querying with filters", func() {
			deps.records = []model.FeedbackRecord{{ID: "f-1", Domain: "partner-match", Decision: model.DecisionAccepted}}
			w := serve(mux, "GET", "/feedback?domain=partner-match&model_version=2&unconsumed=true&since=2024-01-01T00:00:00Z", "")

			Convey("Then the query is parsed and records returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.query.Domain, ShouldEqual, "partner-match")
				So(*deps.query.ModelVersion, ShouldEqual, 2)
				So(deps.query.UnconsumedOnly, ShouldBeTrue)
				So(deps.query.Since.Year(), ShouldEqual, 2024)
				So(w.Body.String(), ShouldContainSubstring, `"id":"f-1"`)
			})
		})

		Convey("When querying with a malformed timestamp", func() {
			So(serve(mux, "GET", "/feedback?since=yesterday", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestModelsHandler(t *testing.T) {
	Convey("Given the model endpoints", t, func() {
		deps := newMock()
		mux := newMux(deps)

		Convey("Then domains are listed", func() {
			w := serve(mux, "GET", "/models", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "partner-match")
		})

		Convey("Then an empty version list is an empty array", func() {
			w := serve(mux, "GET", "/models/partner-match", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("Then the active model is returned", func() {
			w := serve(mux, "GET", "/models/partner-match/active", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"version":3`)
		})

		Convey("Then a domain without an active model is not found", func() {
			deps.modelErr = model.ErrNoActiveModel
			w := serve(mux, "GET", "/models/partner-match/active", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w).Code, ShouldEqual, "no_active_model")
		})

		Convey("Then retrain status forwards the threshold", func() {
			w := serve(mux, "GET", "/models/partner-match/retrain-status?threshold=10", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.threshold, ShouldEqual, 10)
			So(w.Body.String(), ShouldContainSubstring, `"due":true`)
			So(serve(mux, "GET", "/models/partner-match/retrain-status?threshold=x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then weights can be published", func() {
			w := serve(mux, "POST", "/models/partner-match", `{"weights":{"location":0.2,"expertise":0.5,"compliance":0.15,"size":0.1,"rating":0.05}}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldContainSubstring, `"version":4`)
			So(serve(mux, "POST", "/models/partner-match", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, "POST", "/models/partner-match", `{"weights":{"location":-1}}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then training reports its outcome", func() {
			deps.trained = model.ScoringModel{Domain: "partner-match", Version: 5}
			So(serve(mux, "POST", "/models/partner-match/train", "").Code, ShouldEqual, http.StatusCreated)

			deps.trainErr = &model.InsufficientDataError{Domain: "partner-match", Labeled: 3, Required: 30}
			w := serve(mux, "POST", "/models/partner-match/train", "")
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decodeError(w).Code, ShouldEqual, "insufficient_data")
		})

		Convey("Then a degenerate fit returns the published model", func() {
			deps.trained = model.ScoringModel{Domain: "partner-match", Version: 6, Degenerate: true}
			deps.trainErr = &model.DegenerateFitError{Domain: "partner-match", Version: 6, Samples: 40}
			w := serve(mux, "POST", "/models/partner-match/train", "")
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(w.Body.String(), ShouldContainSubstring, `"code":"degenerate_fit"`)
			So(w.Header().Get("X-Error-Code"), ShouldEqual, "degenerate_fit")
			So(w.Body.String(), ShouldContainSubstring, `"version":6`)
		})

		Convey("Then activation forwards expectations", func() {
			w := serve(mux, "POST", "/models/partner-match/activate", `{"version":2,"expected_active":1,"force":true}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.activate.version, ShouldEqual, 2)
			So(*deps.activate.expected, ShouldEqual, 1)
			So(deps.activate.force, ShouldBeTrue)
			So(serve(mux, "POST", "/models/partner-match/activate", `{}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then activation conflicts map to 409", func() {
			deps.modelErr = &model.ConflictError{Domain: "partner-match", Expected: 1, Actual: 2}
			w := serve(mux, "POST", "/models/partner-match/activate", `{"version":3,"expected_active":1}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decodeError(w).Code, ShouldEqual, "activation_conflict")
		})

		Convey("Then a rollback without target maps to 409", func() {
			deps.modelErr = model.ErrNoRollbackTarget
			So(serve(mux, "POST", "/models/partner-match/rollback", "").Code, ShouldEqual, http.StatusConflict)
		})

		Convey("Then an unexpected failure is an internal error", func() {
			deps.modelErr = errors.New("disk on fire")
			w := serve(mux, "GET", "/models/partner-match", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestError(t *testing.T) {
	Convey("Given API errors", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.test", api.ErrBadRequest, cause)

		Convey("Then both kind and cause are matchable", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.test: bad request: boom")
			So(api.NewKind("api.test", api.ErrNotFound).Error(), ShouldEqual, "api.test: not found")
			So(api.Wrap("api.test", cause).Error(), ShouldEqual, "api.test: boom")
		})
	})
}
