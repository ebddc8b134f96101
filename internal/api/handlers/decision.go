package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/service"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type DecisionHandler struct {
	reviewService *service.ReviewService
}

func NewDecisionHandler(rs *service.ReviewService) *DecisionHandler {
	return &DecisionHandler{reviewService: rs}
}

// ListPending returns decisions awaiting human review, oldest first.
func (h *DecisionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)

	decisions, err := h.reviewService.ListPending(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

func (h *DecisionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid decision id")
		return
	}

	decision, err := h.reviewService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "decision not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// ListByEntity returns the decision history for one entity, newest first.
func (h *DecisionHandler) ListByEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")
	if entityID == "" {
		writeError(w, http.StatusBadRequest, "entity id is required")
		return
	}
	limit := parseLimit(r, 50)

	decisions, err := h.reviewService.ListByEntity(r.Context(), entityID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

type reviewRequest struct {
	Action   string `json:"action"`
	Reviewer string `json:"reviewer"`
}

// Review applies a human verdict to a pending decision.
func (h *DecisionHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid decision id")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !domain.ValidReviewAction(req.Action) {
		writeError(w, http.StatusBadRequest, "action must be approve, reject or defer")
		return
	}

	decision, err := h.reviewService.Apply(r.Context(), id, domain.ReviewAction(req.Action), req.Reviewer)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "decision not found")
		case errors.Is(err, service.ErrDecisionNotPending):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrReviewerRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

func parseLimit(r *http.Request, fallback int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
