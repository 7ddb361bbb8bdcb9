package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
)

// Repository runs the read-only projections behind the register feeds.
// Every query orders by (created_at, id) ascending so report pages are
// stable while new rows land.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Range bounds a report query by record time. Zero values mean open-ended.
type Range struct {
	From time.Time
	To   time.Time
}

type dispensingRow struct {
	EntryID       uuid.UUID
	BatchID       uuid.UUID
	Substance     string
	LotNumber     string
	QuantityDelta decimal.Decimal
	Unit          enums.Unit
	ActorID       uuid.UUID
	Reason        string
	CreatedAt     time.Time
}

type wasteRow struct {
	EntryID       uuid.UUID
	BatchID       uuid.UUID
	Substance     string
	LotNumber     string
	Type          enums.LedgerEntryType
	QuantityDelta decimal.Decimal
	Unit          enums.Unit
	ActorID       uuid.UUID
	WitnessID     *uuid.UUID
	Reason        string
	DisposalID    *uuid.UUID
	FormReference *string
	CreatedAt     time.Time
}

type acquisitionRow struct {
	RecordID            uuid.UUID
	FormNumber          string
	SupplierName        string
	SupplierDEANumber   string
	RegistrantName      string
	RegistrantDEANumber string
	ExecutionDate       time.Time
	OrderedQty          decimal.Decimal
	ReceivedQty         decimal.Decimal
	AcceptedQty         *decimal.Decimal
	Status              enums.AcquisitionStatus
	BatchID             *uuid.UUID
	Substance           *string
	LotNumber           *string
	CreatedAt           time.Time
}

func applyCursor(q *gorm.DB, alias string, cursor *pagination.Cursor) *gorm.DB {
	if cursor == nil {
		return q
	}
	return q.Where(
		alias+".created_at > ? OR ("+alias+".created_at = ? AND "+alias+".id > ?)",
		cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
	)
}

func applyRange(q *gorm.DB, column string, timeRange Range) *gorm.DB {
	if !timeRange.From.IsZero() {
		q = q.Where(column+" >= ?", timeRange.From)
	}
	if !timeRange.To.IsZero() {
		q = q.Where(column+" <= ?", timeRange.To)
	}
	return q
}

func (r *Repository) dispensingEntries(ctx context.Context, timeRange Range, cursor *pagination.Cursor, limit int) ([]dispensingRow, error) {
	q := r.db.WithContext(ctx).
		Table("ledger_entries AS le").
		Joins("JOIN batches AS b ON b.id = le.batch_id").
		Select(`le.id AS entry_id, le.batch_id, b.substance, b.lot_number,
			le.quantity_delta, le.unit, le.actor_id, le.reason, le.created_at`).
		Where("le.type = ?", enums.LedgerEntryTypeDispense)
	q = applyRange(q, "le.created_at", timeRange)
	q = applyCursor(q, "le", cursor)

	var rows []dispensingRow
	err := q.Order("le.created_at ASC, le.id ASC").Limit(limit).Scan(&rows).Error
	return rows, err
}

func (r *Repository) wasteEntries(ctx context.Context, timeRange Range, cursor *pagination.Cursor, limit int) ([]wasteRow, error) {
	q := r.db.WithContext(ctx).
		Table("ledger_entries AS le").
		Joins("JOIN batches AS b ON b.id = le.batch_id").
		Joins("LEFT JOIN disposal_records AS d ON d.id = le.disposal_id").
		Select(`le.id AS entry_id, le.batch_id, b.substance, b.lot_number, le.type,
			le.quantity_delta, le.unit, le.actor_id, le.witness_id, le.reason,
			le.disposal_id, d.form_reference, le.created_at`).
		Where("le.type IN ?", []enums.LedgerEntryType{enums.LedgerEntryTypeWaste, enums.LedgerEntryTypeDisposal})
	q = applyRange(q, "le.created_at", timeRange)
	q = applyCursor(q, "le", cursor)

	var rows []wasteRow
	err := q.Order("le.created_at ASC, le.id ASC").Limit(limit).Scan(&rows).Error
	return rows, err
}

func (r *Repository) acquisitionRecords(ctx context.Context, timeRange Range, cursor *pagination.Cursor, limit int) ([]acquisitionRow, error) {
	q := r.db.WithContext(ctx).
		Table("acquisition_records AS a").
		Joins("LEFT JOIN batches AS b ON b.id = a.batch_id").
		Select(`a.id AS record_id, a.form_number, a.supplier_name, a.supplier_dea_number,
			a.registrant_name, a.registrant_dea_number, a.execution_date,
			a.ordered_qty, a.received_qty, a.accepted_qty, a.status, a.batch_id,
			b.substance, b.lot_number, a.created_at`)
	q = applyRange(q, "a.execution_date", timeRange)
	q = applyCursor(q, "a", cursor)

	var rows []acquisitionRow
	err := q.Order("a.created_at ASC, a.id ASC").Limit(limit).Scan(&rows).Error
	return rows, err
}
