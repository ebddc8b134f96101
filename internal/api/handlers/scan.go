package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/service"
)

type ScanHandler struct {
	scanner      *service.PromotionScannerJob
	crystallizer *service.CrystallizationService
}

func NewScanHandler(scanner *service.PromotionScannerJob, crystallizer *service.CrystallizationService) *ScanHandler {
	return &ScanHandler{scanner: scanner, crystallizer: crystallizer}
}

type triggerScanRequest struct {
	Tier string `json:"tier"`
}

type triggerScanResponse struct {
	Summaries []service.SweepSummary `json:"summaries"`
}

// TriggerScan runs a sweep on demand. With a tier in the body it sweeps just
// that tier; otherwise it runs a full cycle. Returns 409 when the tier lease
// is already held by a running sweep.
func (h *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	var req triggerScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Tier != "" {
		if !domain.ValidTier(req.Tier) {
			writeError(w, http.StatusBadRequest, "unknown tier")
			return
		}
		if _, ok := domain.Tier(req.Tier).Next(); !ok {
			writeError(w, http.StatusBadRequest, "tier is not promotable")
			return
		}
		summary, err := h.crystallizer.SweepTier(r.Context(), domain.Tier(req.Tier))
		if err != nil {
			if errors.Is(err, domain.ErrSweepInProgress) {
				writeError(w, http.StatusConflict, "sweep already in progress for tier")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, triggerScanResponse{Summaries: []service.SweepSummary{*summary}})
		return
	}

	summaries := h.scanner.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, triggerScanResponse{Summaries: summaries})
}

// GetStats returns the scanner's running counters.
func (h *ScanHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scanner.Stats())
}
