package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
)

// DisposalRecord documents witnessed destruction or waste of controlled
// substance. The ledger entry it produces is written at finalization.
type DisposalRecord struct {
	ID                       uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BatchID                  uuid.UUID            `gorm:"column:batch_id;type:uuid;not null;index"`
	Quantity                 decimal.Decimal      `gorm:"column:quantity;type:numeric(12,2);not null"`
	Reason                   string               `gorm:"column:reason;not null"`
	FullDisposal             bool                 `gorm:"column:full_disposal;not null;default:false"`
	RequiresIncinerationForm bool                 `gorm:"column:requires_incineration_form;not null;default:false"`
	FormReference            *string              `gorm:"column:form_reference"`
	Status                   enums.DisposalStatus `gorm:"column:status;type:disposal_status_enum;not null;default:'draft'"`
	LedgerEntryID            *uuid.UUID           `gorm:"column:ledger_entry_id;type:uuid"`
	FinalizedAt              *time.Time           `gorm:"column:finalized_at"`
	CreatedAt                time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Witnesses []DisposalWitness `gorm:"foreignKey:DisposalID"`
}

// DisposalWitness is one distinct identity attesting to a disposal. The
// unique index keeps a witness from counting twice.
type DisposalWitness struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DisposalID uuid.UUID `gorm:"column:disposal_id;type:uuid;not null;uniqueIndex:ux_disposal_witnesses_disposal_witness"`
	WitnessID  uuid.UUID `gorm:"column:witness_id;type:uuid;not null;uniqueIndex:ux_disposal_witnesses_disposal_witness"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (d *DisposalRecord) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (w *DisposalWitness) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
