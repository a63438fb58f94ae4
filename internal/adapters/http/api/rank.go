package api

import (
	"context"
	"net/http"
	"strings"

	service "github.com/okian/matchlearn/internal/app"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, req service.RankRequest) (Ranking, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// rankRequest mirrors the OpenAPI schema for POST /rank.
type rankRequest struct {
	Domain       string   `json:"domain"`
	RequesterID  string   `json:"requester_id"`
	CandidateIDs []string `json:"candidate_ids"`
	Explain      bool     `json:"explain"`
	Filter       string   `json:"filter"`
}

// HandleRank handles POST /rank requests.
func (h *RankHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.rank"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req rankRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.RequesterID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errMissing("requester_id")))
		return
	}

	ranking, err := h.deps.Rank(r.Context(), service.RankRequest{
		Domain:       req.Domain,
		RequesterID:  req.RequesterID,
		CandidateIDs: req.CandidateIDs,
		Explain:      req.Explain,
		Filter:       req.Filter,
	})
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}
