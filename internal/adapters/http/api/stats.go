package api

import (
	"context"
	"net/http"

	"github.com/okian/matchlearn/internal/domain/types"
)

// StatsProvider reports the engine's runtime state and readiness.
type StatsProvider interface {
	Stats(ctx context.Context, domain string) (types.ServiceStats, error)
	Ready(ctx context.Context) error
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats returns the service snapshot. ?domain= adds that domain's
// retraining status.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	st, err := h.provider.Stats(r.Context(), r.URL.Query().Get("domain"))
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
