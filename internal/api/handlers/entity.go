package handlers

import (
	"errors"
	"net/http"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/store"
	"github.com/go-chi/chi/v5"
)

type EntityHandler struct {
	graph domain.GraphStore
}

func NewEntityHandler(graph domain.GraphStore) *EntityHandler {
	return &EntityHandler{graph: graph}
}

func (h *EntityHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "entity id is required")
		return
	}

	entity, err := h.graph.GetEntity(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, entity)
}

// GetRelationships returns the edges of one type leaving the entity.
func (h *EntityHandler) GetRelationships(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "entity id is required")
		return
	}

	relType := r.URL.Query().Get("type")
	if relType == "" {
		writeError(w, http.StatusBadRequest, "type query parameter is required")
		return
	}

	rels, err := h.graph.RelationshipsFrom(r.Context(), id, relType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"relationships": rels})
}
