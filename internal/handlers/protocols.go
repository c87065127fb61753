package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medviewer/hanging-protocols/internal/middleware"
	"github.com/medviewer/hanging-protocols/internal/models"
	"github.com/medviewer/hanging-protocols/internal/repository"
	"github.com/medviewer/hanging-protocols/internal/services"
	"github.com/rs/zerolog/log"
)

type ProtocolHandler struct {
	protocolService *services.ProtocolService
}

func NewProtocolHandler(protocolService *services.ProtocolService) *ProtocolHandler {
	return &ProtocolHandler{
		protocolService: protocolService,
	}
}

// CreateProtocol stores a new protocol definition
func (h *ProtocolHandler) CreateProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := middleware.GetTenantID(ctx)
	if !ok {
		http.Error(w, "Tenant ID not found", http.StatusBadRequest)
		return
	}

	var req models.ProtocolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Definition == nil {
		http.Error(w, "Protocol definition is required", http.StatusBadRequest)
		return
	}

	protocol, err := h.protocolService.CreateProtocol(ctx, tenantID, req.Definition, middleware.GetUserID(ctx))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create protocol")
		http.Error(w, "Failed to create protocol", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(protocol)
}

// GetProtocols lists the tenant's protocol records
func (h *ProtocolHandler) GetProtocols(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := middleware.GetTenantID(ctx)
	if !ok {
		http.Error(w, "Tenant ID not found", http.StatusBadRequest)
		return
	}

	records, err := h.protocolService.ListProtocols(ctx, tenantID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list protocols")
		http.Error(w, "Failed to list protocols", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// GetProtocol returns one decoded protocol definition
func (h *ProtocolHandler) GetProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := middleware.GetTenantID(ctx)
	if !ok {
		http.Error(w, "Tenant ID not found", http.StatusBadRequest)
		return
	}

	protocolID := chi.URLParam(r, "id")
	protocol, err := h.protocolService.GetProtocol(ctx, tenantID, protocolID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Protocol not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("protocol_id", protocolID).Msg("Failed to get protocol")
		http.Error(w, "Failed to get protocol", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol)
}

// UpdateProtocol replaces a protocol definition
func (h *ProtocolHandler) UpdateProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := middleware.GetTenantID(ctx)
	if !ok {
		http.Error(w, "Tenant ID not found", http.StatusBadRequest)
		return
	}

	protocolID := chi.URLParam(r, "id")

	var req models.ProtocolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	protocol, err := h.protocolService.UpdateProtocol(ctx, tenantID, protocolID, req.Definition, middleware.GetUserID(ctx))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "Protocol not found", http.StatusNotFound)
		return
	case errors.Is(err, services.ErrLocked):
		http.Error(w, "Protocol is locked", http.StatusConflict)
		return
	case errors.Is(err, services.ErrIDMismatch):
		http.Error(w, "Definition id does not match protocol id", http.StatusBadRequest)
		return
	case err != nil:
		log.Error().Err(err).Str("protocol_id", protocolID).Msg("Failed to update protocol")
		http.Error(w, "Failed to update protocol", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol)
}

// DeleteProtocol removes a protocol definition
func (h *ProtocolHandler) DeleteProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := middleware.GetTenantID(ctx)
	if !ok {
		http.Error(w, "Tenant ID not found", http.StatusBadRequest)
		return
	}

	protocolID := chi.URLParam(r, "id")
	err := h.protocolService.DeleteProtocol(ctx, tenantID, protocolID, middleware.GetUserID(ctx))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "Protocol not found", http.StatusNotFound)
		return
	case errors.Is(err, services.ErrLocked):
		http.Error(w, "Protocol is locked", http.StatusConflict)
		return
	case err != nil:
		log.Error().Err(err).Str("protocol_id", protocolID).Msg("Failed to delete protocol")
		http.Error(w, "Failed to delete protocol", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CloneProtocol stores an unlocked deep copy of a protocol
func (h *ProtocolHandler) CloneProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := middleware.GetTenantID(ctx)
	if !ok {
		http.Error(w, "Tenant ID not found", http.StatusBadRequest)
		return
	}

	protocolID := chi.URLParam(r, "id")

	var req models.CloneRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	clone, err := h.protocolService.CloneProtocol(ctx, tenantID, protocolID, req.Name, middleware.GetUserID(ctx))
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Protocol not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("protocol_id", protocolID).Msg("Failed to clone protocol")
		http.Error(w, "Failed to clone protocol", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(clone)
}
