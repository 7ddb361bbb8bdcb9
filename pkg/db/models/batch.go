package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
)

// Batch is one physical container of controlled substance tracked as a
// single inventory unit. CurrentQuantity is a materialized view over the
// ledger and is only ever written in the same transaction as a ledger
// entry; Version guards that write.
type Batch struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Substance       string          `gorm:"column:substance;not null"`
	Schedule        string          `gorm:"column:schedule;not null;default:'II'"`
	LotNumber       string          `gorm:"column:lot_number;not null"`
	SerialNumber    string          `gorm:"column:serial_number;not null"`
	Manufacturer    string          `gorm:"column:manufacturer;not null"`
	ConcentrationMg decimal.Decimal `gorm:"column:concentration_mg_per_ml;type:numeric(10,2);not null"`
	Unit            enums.Unit      `gorm:"column:unit;type:unit_enum;not null"`
	StartingVolume  decimal.Decimal `gorm:"column:starting_volume;type:numeric(12,2);not null"`
	CurrentQuantity decimal.Decimal `gorm:"column:current_quantity;type:numeric(12,2);not null"`
	ExpirationDate  *time.Time      `gorm:"column:expiration_date"`
	StorageLocation string          `gorm:"column:storage_location"`
	Status          enums.BatchStatus `gorm:"column:status;type:batch_status_enum;not null;default:'sealed'"`
	OpenedAt        *time.Time      `gorm:"column:opened_at"`
	AcquisitionID   *uuid.UUID      `gorm:"column:acquisition_id;type:uuid"`
	Version         int64           `gorm:"column:version;not null;default:1"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (Batch) TableName() string { return "batches" }

// BeforeCreate assigns the ID application-side so inserts behave the same
// across Postgres and the sqlite test databases.
func (b *Batch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
