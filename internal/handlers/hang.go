package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/medviewer/hanging-protocols/internal/middleware"
	"github.com/medviewer/hanging-protocols/internal/models"
	"github.com/medviewer/hanging-protocols/internal/services"
	"github.com/rs/zerolog/log"
)

type HangHandler struct {
	hangingService *services.HangingService
}

func NewHangHandler(hangingService *services.HangingService) *HangHandler {
	return &HangHandler{
		hangingService: hangingService,
	}
}

// Hang runs one matching pass over the posted metadata snapshot and returns
// the selected stage plus per-viewport assignments.
func (h *HangHandler) Hang(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := middleware.GetTenantID(ctx)
	if !ok {
		http.Error(w, "Tenant ID not found", http.StatusBadRequest)
		return
	}

	var req models.HangRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.hangingService.Hang(ctx, tenantID, &req)
	if err != nil {
		log.Error().Err(err).Msg("Matching pass failed")
		http.Error(w, "Matching pass failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
