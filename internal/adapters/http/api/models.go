package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/types"
)

// ModelDependencies defines the interface for model lifecycle operations.
type ModelDependencies interface {
	Domains(ctx context.Context) ([]string, error)
	Models(ctx context.Context, domain string) ([]model.ScoringModel, error)
	ActiveModel(ctx context.Context, domain string) (model.ScoringModel, error)
	History(ctx context.Context, domain string) ([]model.ActivationRecord, error)
	RetrainStatus(ctx context.Context, domain string, threshold int) (types.RetrainStatus, error)
	PublishWeights(ctx context.Context, domain string, w model.Weights) (model.ScoringModel, error)
	Train(ctx context.Context, domain string) (model.ScoringModel, error)
	Activate(ctx context.Context, domain string, version int64, expected *int64, force bool) (model.ScoringModel, error)
	Rollback(ctx context.Context, domain string) (model.ScoringModel, error)
}

// ModelsHandler handles model registry requests.
type ModelsHandler struct {
	deps ModelDependencies
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps ModelDependencies) *ModelsHandler {
	return &ModelsHandler{deps: deps}
}

type publishRequest struct {
	Weights *model.Weights `json:"weights"`
}

type activateRequest struct {
	Version        int64  `json:"version"`
	ExpectedActive *int64 `json:"expected_active"`
	Force          bool   `json:"force"`
}

// HandleDomains handles GET /models.
func (h *ModelsHandler) HandleDomains(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_domains"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	domains, err := h.deps.Domains(r.Context())
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if domains == nil {
		domains = []string{}
	}
	writeJSON(w, http.StatusOK, domainsResponse{Domains: domains})
}

// HandleModels routes /models/{domain}[/action] requests.
func (h *ModelsHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/models/"), "/"), "/")
	domain := parts[0]
	if domain == "" || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.list(w, r, domain)
	case action == "" && r.Method == http.MethodPost:
		h.publish(w, r, domain)
	case action == "active" && r.Method == http.MethodGet:
		h.active(w, r, domain)
	case action == "history" && r.Method == http.MethodGet:
		h.history(w, r, domain)
	case action == "retrain-status" && r.Method == http.MethodGet:
		h.retrainStatus(w, r, domain)
	case action == "train" && r.Method == http.MethodPost:
		h.train(w, r, domain)
	case action == "activate" && r.Method == http.MethodPost:
		h.activate(w, r, domain)
	case action == "rollback" && r.Method == http.MethodPost:
		h.rollback(w, r, domain)
	default:
		http.NotFound(w, r)
	}
}

func (h *ModelsHandler) list(w http.ResponseWriter, r *http.Request, domain string) {
	const op = "api.list_models"
	models, err := h.deps.Models(r.Context(), domain)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if models == nil {
		models = []model.ScoringModel{}
	}
	writeJSON(w, http.StatusOK, models)
}

func (h *ModelsHandler) publish(w http.ResponseWriter, r *http.Request, domain string) {
	const op = "api.publish_model"
	var req publishRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Weights == nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errMissing("weights")))
		return
	}
	m, err := h.deps.PublishWeights(r.Context(), domain, *req.Weights)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *ModelsHandler) active(w http.ResponseWriter, r *http.Request, domain string) {
	const op = "api.active_model"
	m, err := h.deps.ActiveModel(r.Context(), domain)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *ModelsHandler) history(w http.ResponseWriter, r *http.Request, domain string) {
	const op = "api.model_history"
	log, err := h.deps.History(r.Context(), domain)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if log == nil {
		log = []model.ActivationRecord{}
	}
	writeJSON(w, http.StatusOK, log)
}

func (h *ModelsHandler) retrainStatus(w http.ResponseWriter, r *http.Request, domain string) {
	const op = "api.retrain_status"
	threshold := 0
	if s := r.URL.Query().Get("threshold"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		threshold = n
	}
	st, err := h.deps.RetrainStatus(r.Context(), domain, threshold)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *ModelsHandler) train(w http.ResponseWriter, r *http.Request, domain string) {
	const op = "api.train"
	m, err := h.deps.Train(r.Context(), domain)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, m)
	case errors.Is(err, model.ErrDegenerateFit):
		w.Header().Set(errorCodeHeader, "degenerate_fit")
		writeJSON(w, http.StatusUnprocessableEntity, degenerateResponse{
			errorResponse: errorResponse{Code: "degenerate_fit", Message: Wrap(op, err).Error()},
			Model:         m,
		})
	default:
		fail(w, Wrap(op, err))
	}
}

func (h *ModelsHandler) activate(w http.ResponseWriter, r *http.Request, domain string) {
	const op = "api.activate"
	var req activateRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Version < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errMissing("version")))
		return
	}
	m, err := h.deps.Activate(r.Context(), domain, req.Version, req.ExpectedActive, req.Force)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *ModelsHandler) rollback(w http.ResponseWriter, r *http.Request, domain string) {
	const op = "api.rollback"
	m, err := h.deps.Rollback(r.Context(), domain)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}
