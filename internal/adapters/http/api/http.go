// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RankDependencies
	FeedbackDependencies
	ModelDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	rankHandler     *RankHandler
	feedbackHandler *FeedbackHandler
	modelsHandler   *ModelsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(statsProvider),
		statsHandler:    NewStatsHandler(statsProvider),
		rankHandler:     NewRankHandler(deps),
		feedbackHandler: NewFeedbackHandler(deps),
		modelsHandler:   NewModelsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(path, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(path, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}
	route("/healthz", "healthz", s.healthHandler.HandleHealth)
	route("/stats", "stats", s.statsHandler.HandleStats)
	route("/rank", "rank", s.rankHandler.HandleRank)
	route("/feedback", "feedback", s.feedbackHandler.HandleFeedback)
	route("/models", "models", s.modelsHandler.HandleDomains)
	route("/models/", "models", s.modelsHandler.HandleModels)
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// degenerateResponse reports a fit that was published but must not be
// activated without force.
type degenerateResponse struct {
	errorResponse
	Model model.ScoringModel `json:"model"`
}

type domainsResponse struct {
	Domains []string `json:"domains"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	w.Header().Set(errorCodeHeader, code)
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeBody reads one JSON document into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// Ranking mirrors the read shape returned by POST /rank.
type Ranking = types.Ranking

func errMissing(field string) error { return fmt.Errorf("missing %s", field) }
