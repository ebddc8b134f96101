package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/service"
)

type ObservationHandler struct {
	ingestService *service.IngestService
}

func NewObservationHandler(is *service.IngestService) *ObservationHandler {
	return &ObservationHandler{ingestService: is}
}

type ingestRequest struct {
	Observations []domain.Observation `json:"observations"`
}

type ingestResponse struct {
	Accepted  int      `json:"accepted"`
	Skipped   int      `json:"skipped"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

// Ingest accepts a batch of extraction observations into the Perception tier.
func (h *ObservationHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Observations) == 0 {
		writeError(w, http.StatusBadRequest, "observations is required")
		return
	}

	result, err := h.ingestService.Ingest(r.Context(), req.Observations)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{
		Accepted:  result.Accepted,
		Skipped:   result.Skipped,
		EntityIDs: result.EntityIDs,
	})
}
