package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
)

// AcquisitionRecord is the receipt document (Form-222 equivalent) for an
// inbound shipment of controlled substance. A batch and its seed
// acquisition ledger entry exist only once the record is completed.
type AcquisitionRecord struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FormNumber          string                  `gorm:"column:form_number;not null;uniqueIndex"`
	SupplierName        string                  `gorm:"column:supplier_name;not null"`
	SupplierDEANumber   string                  `gorm:"column:supplier_dea_number;not null"`
	RegistrantName      string                  `gorm:"column:registrant_name;not null"`
	RegistrantDEANumber string                  `gorm:"column:registrant_dea_number;not null"`
	ExecutionDate       time.Time               `gorm:"column:execution_date;not null"`
	OrderedQty          decimal.Decimal         `gorm:"column:ordered_qty;type:numeric(12,2);not null"`
	ReceivedQty         decimal.Decimal         `gorm:"column:received_qty;type:numeric(12,2);not null"`
	AcceptedQty         *decimal.Decimal        `gorm:"column:accepted_qty;type:numeric(12,2)"`
	Status              enums.AcquisitionStatus `gorm:"column:status;type:acquisition_status_enum;not null;default:'pending'"`
	ResolutionNote      *string                 `gorm:"column:resolution_note"`
	BatchID             *uuid.UUID              `gorm:"column:batch_id;type:uuid"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *AcquisitionRecord) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
