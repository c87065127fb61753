package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/medviewer/hanging-protocols/internal/database"
	"github.com/medviewer/hanging-protocols/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a protocol record does not exist.
var ErrNotFound = errors.New("protocol not found")

// ProtocolRepository handles protocol definition database operations
type ProtocolRepository struct{}

// NewProtocolRepository creates a new protocol repository
func NewProtocolRepository() *ProtocolRepository {
	return &ProtocolRepository{}
}

// Create creates a new protocol record
func (r *ProtocolRepository) Create(ctx context.Context, record *models.ProtocolRecord) error {
	if err := database.DB.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create protocol: %w", err)
	}
	return nil
}

// GetByProtocolID retrieves a protocol record by its protocol id within a tenant
func (r *ProtocolRepository) GetByProtocolID(ctx context.Context, tenantID uuid.UUID, protocolID string) (*models.ProtocolRecord, error) {
	var record models.ProtocolRecord
	err := database.DB.WithContext(ctx).
		Where("tenant_id = ? AND protocol_id = ?", tenantID, protocolID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get protocol: %w", err)
	}
	return &record, nil
}

// GetByTenantID retrieves the protocol library of a tenant in creation
// order, so library order is stable across passes.
func (r *ProtocolRepository) GetByTenantID(ctx context.Context, tenantID uuid.UUID) ([]models.ProtocolRecord, error) {
	var records []models.ProtocolRecord
	if err := database.DB.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get protocols: %w", err)
	}
	return records, nil
}

// Update updates a protocol record
func (r *ProtocolRepository) Update(ctx context.Context, record *models.ProtocolRecord) error {
	if err := database.DB.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to update protocol: %w", err)
	}
	return nil
}

// Delete soft deletes a protocol record
func (r *ProtocolRepository) Delete(ctx context.Context, tenantID uuid.UUID, protocolID string) error {
	result := database.DB.WithContext(ctx).
		Where("tenant_id = ? AND protocol_id = ?", tenantID, protocolID).
		Delete(&models.ProtocolRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete protocol: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
