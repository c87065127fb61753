package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProtocolRecord persists one hanging protocol definition for a tenant. The
// definition column holds the serialized hp.Protocol document; the other
// columns are denormalized for listing and access control.
type ProtocolRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index:idx_tenant_protocol,unique" json:"tenant_id"`
	ProtocolID string    `gorm:"type:varchar(255);not null;index:idx_tenant_protocol,unique" json:"protocol_id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Locked     bool      `gorm:"default:false" json:"locked"`

	// NumberOfPriorsReferenced mirrors the derived field of the definition
	// so the UI can list it without decoding the document.
	NumberOfPriorsReferenced int `gorm:"default:0" json:"number_of_priors_referenced"`

	Definition []byte `gorm:"type:jsonb;not null" json:"-"`

	CreatedBy  string `gorm:"type:varchar(255)" json:"created_by,omitempty"`
	ModifiedBy string `gorm:"type:varchar(255)" json:"modified_by,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (ProtocolRecord) TableName() string {
	return "protocol_records"
}

// BeforeCreate hook
func (p *ProtocolRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
