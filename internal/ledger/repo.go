package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
)

// HistoryFilter narrows a ledger history query. Zero values mean "no filter".
type HistoryFilter struct {
	BatchID uuid.UUID
	Types   []enums.LedgerEntryType
	From    *time.Time
	To      *time.Time
}

// Repository manages persistence for ledger entries. The interface exposes
// no update or delete: rows are immutable once written and corrections are
// new adjustment entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	FindEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	// UpdateBatchGuarded applies updates only when the stored version still
	// matches expectedVersion. It reports whether a row was written.
	UpdateBatchGuarded(ctx context.Context, batchID uuid.UUID, expectedVersion int64, updates map[string]any) (bool, error)
	ListEntries(ctx context.Context, filter HistoryFilter, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error)
	// SumDeltas totals quantity deltas, optionally scoped to one batch and
	// capped at a point in time.
	SumDeltas(ctx context.Context, batchID *uuid.UUID, until *time.Time) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) UpdateBatchGuarded(ctx context.Context, batchID uuid.UUID, expectedVersion int64, updates map[string]any) (bool, error) {
	updates["version"] = expectedVersion + 1
	res := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ? AND version = ?", batchID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListEntries(ctx context.Context, filter HistoryFilter, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error) {
	q := r.db.WithContext(ctx).Model(&models.LedgerEntry{})

	if filter.BatchID != uuid.Nil {
		q = q.Where("batch_id = ?", filter.BatchID)
	}
	if len(filter.Types) > 0 {
		q = q.Where("type IN ?", filter.Types)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}
	if cursor != nil {
		q = q.Where(
			"created_at > ? OR (created_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var entries []models.LedgerEntry
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumDeltas(ctx context.Context, batchID *uuid.UUID, until *time.Time) (decimal.Decimal, error) {
	q := r.db.WithContext(ctx).Model(&models.LedgerEntry{})
	if batchID != nil {
		q = q.Where("batch_id = ?", *batchID)
	}
	if until != nil {
		q = q.Where("created_at <= ?", *until)
	}

	row := q.Select("COALESCE(SUM(quantity_delta), 0)").Row()
	var total decimal.Decimal
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
