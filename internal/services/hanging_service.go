package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medviewer/hanging-protocols/internal/metrics"
	"github.com/medviewer/hanging-protocols/internal/models"
	"github.com/medviewer/hanging-protocols/pkg/hp"
	"github.com/rs/zerolog/log"
)

// HangingService runs matching passes: it loads the tenant's protocol
// library and hands the read-only snapshot to the engine. The engine itself
// never fails; errors here are storage errors only.
type HangingService struct {
	protocols *ProtocolService
	engine    *hp.Engine
}

// NewHangingService creates a new hanging service
func NewHangingService(protocols *ProtocolService, engine *hp.Engine) *HangingService {
	return &HangingService{
		protocols: protocols,
		engine:    engine,
	}
}

// Hang runs one matching pass for a tenant.
func (s *HangingService) Hang(ctx context.Context, tenantID uuid.UUID, req *models.HangRequest) (*hp.HangResult, error) {
	if req == nil {
		return nil, fmt.Errorf("hang request is required")
	}

	start := time.Now()

	library, err := s.protocols.Library(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load protocol library: %w", err)
	}

	result := s.engine.Hang(library, req.Studies, req.Options)

	metrics.HangPasses.WithLabelValues(tenantID.String()).Inc()
	metrics.HangDuration.Observe(time.Since(start).Seconds())
	if result.ProtocolFallback {
		metrics.ProtocolFallbacks.Inc()
	}
	if result.StageFallback {
		metrics.StageFallbacks.Inc()
	}

	log.Debug().
		Str("tenant_id", tenantID.String()).
		Str("protocol_id", result.ProtocolID).
		Str("stage_id", result.StageID).
		Int("viewports", len(result.Viewports)).
		Bool("protocol_fallback", result.ProtocolFallback).
		Msg("Matching pass completed")

	return result, nil
}
