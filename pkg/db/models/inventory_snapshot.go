package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
)

// InventorySnapshot is a regulatory physical count compared against the
// ledger-derived aggregate at the moment it was taken. At most one initial
// snapshot may exist; a partial unique index backs the service check.
type InventorySnapshot struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type            enums.SnapshotType `gorm:"column:type;type:snapshot_type_enum;not null"`
	TakenAt         time.Time          `gorm:"column:taken_at;not null"`
	CountedBy       uuid.UUID          `gorm:"column:counted_by;type:uuid;not null"`
	VerifiedBy      *uuid.UUID         `gorm:"column:verified_by;type:uuid"`
	OpeningCount    decimal.Decimal    `gorm:"column:opening_count;type:numeric(12,2);not null"`
	PhysicalCount   decimal.Decimal    `gorm:"column:physical_count;type:numeric(12,2);not null"`
	Variance        decimal.Decimal    `gorm:"column:variance;type:numeric(12,2);not null"`
	VariancePercent decimal.Decimal    `gorm:"column:variance_percent;type:numeric(8,4);not null"`
	Notes           string             `gorm:"column:notes"`
	SpacingWarning  *string            `gorm:"column:spacing_warning"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (s *InventorySnapshot) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
