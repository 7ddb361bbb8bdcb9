package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
)

// LedgerEntry records one immutable signed quantity change against a batch.
// Rows are append-only: the repository exposes no update or delete surface,
// and corrections land as new adjustment entries referencing the original.
type LedgerEntry struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BatchID        uuid.UUID             `gorm:"column:batch_id;type:uuid;not null;index"`
	Type           enums.LedgerEntryType `gorm:"column:type;type:ledger_entry_type_enum;not null"`
	QuantityDelta  decimal.Decimal       `gorm:"column:quantity_delta;type:numeric(12,2);not null"`
	Unit           enums.Unit            `gorm:"column:unit;type:unit_enum;not null"`
	ActorID        uuid.UUID             `gorm:"column:actor_id;type:uuid;not null"`
	WitnessID      *uuid.UUID            `gorm:"column:witness_id;type:uuid"`
	Reason         string                `gorm:"column:reason"`
	AcquisitionID  *uuid.UUID            `gorm:"column:acquisition_id;type:uuid"`
	DisposalID     *uuid.UUID            `gorm:"column:disposal_id;type:uuid"`
	AdjustsEntryID *uuid.UUID            `gorm:"column:adjusts_entry_id;type:uuid"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime;index"`
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
