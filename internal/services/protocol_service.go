package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medviewer/hanging-protocols/internal/cache"
	"github.com/medviewer/hanging-protocols/internal/metrics"
	"github.com/medviewer/hanging-protocols/internal/models"
	"github.com/medviewer/hanging-protocols/pkg/hp"
	"github.com/rs/zerolog/log"
)

var (
	// ErrLocked is returned when mutating a locked protocol.
	ErrLocked = errors.New("protocol is locked")
	// ErrIDMismatch is returned when a definition's id disagrees with the route.
	ErrIDMismatch = errors.New("definition id does not match protocol id")
)

// ProtocolStore is the persistence surface the service needs. Satisfied by
// repository.ProtocolRepository.
type ProtocolStore interface {
	Create(ctx context.Context, record *models.ProtocolRecord) error
	GetByProtocolID(ctx context.Context, tenantID uuid.UUID, protocolID string) (*models.ProtocolRecord, error)
	GetByTenantID(ctx context.Context, tenantID uuid.UUID) ([]models.ProtocolRecord, error)
	Update(ctx context.Context, record *models.ProtocolRecord) error
	Delete(ctx context.Context, tenantID uuid.UUID, protocolID string) error
}

// AuditStore records protocol mutations. Satisfied by
// repository.AuditRepository.
type AuditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// ProtocolService handles business logic for protocol library management:
// CRUD with locked-protocol protection, cloning, audit, and the cached
// per-tenant library used by matching passes.
type ProtocolService struct {
	protocols ProtocolStore
	audit     AuditStore
	cache     cache.Cache
	cacheTTL  time.Duration
}

// NewProtocolService creates a new protocol service
func NewProtocolService(protocols ProtocolStore, audit AuditStore, cacheImpl cache.Cache, cacheTTL time.Duration) *ProtocolService {
	return &ProtocolService{
		protocols: protocols,
		audit:     audit,
		cache:     cacheImpl,
		cacheTTL:  cacheTTL,
	}
}

// CreateProtocol hydrates and stores a new protocol definition.
func (s *ProtocolService) CreateProtocol(ctx context.Context, tenantID uuid.UUID, definition *hp.Protocol, userID string) (*hp.Protocol, error) {
	if definition == nil {
		return nil, fmt.Errorf("protocol definition is required")
	}

	protocol := hp.ProtocolFromObject(definition)
	protocol.CreatedBy = userID
	protocol.ModifiedBy = userID

	record, err := s.toRecord(tenantID, protocol)
	if err != nil {
		return nil, err
	}

	if err := s.protocols.Create(ctx, record); err != nil {
		s.writeAudit(ctx, tenantID, userID, "protocol.create", protocol.ID, err)
		return nil, err
	}

	s.invalidateLibrary(ctx, tenantID)
	s.writeAudit(ctx, tenantID, userID, "protocol.create", protocol.ID, nil)
	return protocol, nil
}

// GetProtocol returns one decoded protocol definition.
func (s *ProtocolService) GetProtocol(ctx context.Context, tenantID uuid.UUID, protocolID string) (*hp.Protocol, error) {
	record, err := s.protocols.GetByProtocolID(ctx, tenantID, protocolID)
	if err != nil {
		return nil, err
	}
	return hp.ParseProtocol(record.Definition)
}

// ListProtocols returns the tenant's protocol records without decoding the
// definitions.
func (s *ProtocolService) ListProtocols(ctx context.Context, tenantID uuid.UUID) ([]models.ProtocolRecord, error) {
	return s.protocols.GetByTenantID(ctx, tenantID)
}

// UpdateProtocol replaces a protocol definition. Locked protocols reject
// updates.
func (s *ProtocolService) UpdateProtocol(ctx context.Context, tenantID uuid.UUID, protocolID string, definition *hp.Protocol, userID string) (*hp.Protocol, error) {
	if definition == nil {
		return nil, fmt.Errorf("protocol definition is required")
	}
	if definition.ID != "" && definition.ID != protocolID {
		return nil, ErrIDMismatch
	}

	record, err := s.protocols.GetByProtocolID(ctx, tenantID, protocolID)
	if err != nil {
		return nil, err
	}
	if record.Locked {
		return nil, ErrLocked
	}

	definition.ID = protocolID
	protocol := hp.ProtocolFromObject(definition)
	protocol.ModifiedBy = userID
	protocol.ModifiedDate = time.Now().UTC()

	data, err := protocol.Serialize()
	if err != nil {
		return nil, err
	}

	record.Name = protocol.Name
	record.Locked = protocol.Locked
	record.NumberOfPriorsReferenced = protocol.NumberOfPriorsReferenced
	record.Definition = data
	record.ModifiedBy = userID

	if err := s.protocols.Update(ctx, record); err != nil {
		s.writeAudit(ctx, tenantID, userID, "protocol.update", protocolID, err)
		return nil, err
	}

	s.invalidateLibrary(ctx, tenantID)
	s.writeAudit(ctx, tenantID, userID, "protocol.update", protocolID, nil)
	return protocol, nil
}

// DeleteProtocol removes a protocol definition. Locked protocols reject
// deletion.
func (s *ProtocolService) DeleteProtocol(ctx context.Context, tenantID uuid.UUID, protocolID string, userID string) error {
	record, err := s.protocols.GetByProtocolID(ctx, tenantID, protocolID)
	if err != nil {
		return err
	}
	if record.Locked {
		return ErrLocked
	}

	if err := s.protocols.Delete(ctx, tenantID, protocolID); err != nil {
		s.writeAudit(ctx, tenantID, userID, "protocol.delete", protocolID, err)
		return err
	}

	s.invalidateLibrary(ctx, tenantID)
	s.writeAudit(ctx, tenantID, userID, "protocol.delete", protocolID, nil)
	return nil
}

// CloneProtocol stores a deep copy of a protocol under a fresh id, unlocked,
// so locked defaults can serve as templates.
func (s *ProtocolService) CloneProtocol(ctx context.Context, tenantID uuid.UUID, protocolID, name, userID string) (*hp.Protocol, error) {
	source, err := s.GetProtocol(ctx, tenantID, protocolID)
	if err != nil {
		return nil, err
	}

	clone, err := source.CreateClone(name)
	if err != nil {
		return nil, err
	}
	clone.CreatedBy = userID
	clone.ModifiedBy = userID

	record, err := s.toRecord(tenantID, clone)
	if err != nil {
		return nil, err
	}
	if err := s.protocols.Create(ctx, record); err != nil {
		s.writeAudit(ctx, tenantID, userID, "protocol.clone", protocolID, err)
		return nil, err
	}

	s.invalidateLibrary(ctx, tenantID)
	s.writeAudit(ctx, tenantID, userID, "protocol.clone", clone.ID, nil)
	return clone, nil
}

// Library returns the tenant's decoded protocol library in stable order,
// served from cache when possible. Malformed stored definitions are skipped
// with a warning rather than failing the pass.
func (s *ProtocolService) Library(ctx context.Context, tenantID uuid.UUID) ([]*hp.Protocol, error) {
	key := cache.LibraryKey(tenantID.String())

	if data, err := s.cache.Get(ctx, key); err == nil {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err == nil {
			metrics.LibraryCacheHits.WithLabelValues("hit").Inc()
			return s.decodeLibrary(raw), nil
		}
	}
	metrics.LibraryCacheHits.WithLabelValues("miss").Inc()

	records, err := s.protocols.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	raw := make([]json.RawMessage, 0, len(records))
	for _, record := range records {
		raw = append(raw, json.RawMessage(record.Definition))
	}

	if data, err := json.Marshal(raw); err == nil {
		if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache protocol library")
		}
	}

	return s.decodeLibrary(raw), nil
}

func (s *ProtocolService) decodeLibrary(raw []json.RawMessage) []*hp.Protocol {
	library := make([]*hp.Protocol, 0, len(raw))
	for _, data := range raw {
		protocol, err := hp.ParseProtocol(data)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping malformed stored protocol")
			continue
		}
		library = append(library, protocol)
	}
	return library
}

func (s *ProtocolService) toRecord(tenantID uuid.UUID, protocol *hp.Protocol) (*models.ProtocolRecord, error) {
	data, err := protocol.Serialize()
	if err != nil {
		return nil, err
	}
	return &models.ProtocolRecord{
		TenantID:                 tenantID,
		ProtocolID:               protocol.ID,
		Name:                     protocol.Name,
		Locked:                   protocol.Locked,
		NumberOfPriorsReferenced: protocol.NumberOfPriorsReferenced,
		Definition:               data,
		CreatedBy:                protocol.CreatedBy,
		ModifiedBy:               protocol.ModifiedBy,
	}, nil
}

func (s *ProtocolService) invalidateLibrary(ctx context.Context, tenantID uuid.UUID) {
	if err := s.cache.Clear(ctx, cache.TenantPattern(tenantID.String())); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to invalidate protocol library cache")
	}
}

func (s *ProtocolService) writeAudit(ctx context.Context, tenantID uuid.UUID, userID, action, resourceID string, opErr error) {
	entry := &models.AuditLog{
		TenantID:     tenantID,
		UserID:       userID,
		Action:       action,
		ResourceType: "protocol",
		ResourceID:   resourceID,
		Status:       "success",
	}
	if opErr != nil {
		entry.Status = "failure"
		entry.ErrorMessage = opErr.Error()
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("Failed to write audit log")
	}
}
