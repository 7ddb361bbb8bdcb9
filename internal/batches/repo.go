package batches

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

// ListFilter narrows a batch listing. LowOnly builds on the caller's
// threshold since "low" is derived, never stored.
type ListFilter struct {
	Status       enums.BatchStatus
	Substance    string
	LowOnly      bool
	LowThreshold decimal.Decimal
}

// Repository manages persistence for batches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, batch *models.Batch) error
	Find(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Batch, error)
	// UpdateGuarded applies updates only when the stored version matches.
	UpdateGuarded(ctx context.Context, batchID uuid.UUID, expectedVersion int64, updates map[string]any) (bool, error)
	// ListExpirationCandidates returns non-terminal batches whose
	// expiration date has passed.
	ListExpirationCandidates(ctx context.Context, now time.Time) ([]models.Batch, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a batch repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, batch *models.Batch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Batch, error) {
	q := r.db.WithContext(ctx).Model(&models.Batch{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Substance != "" {
		q = q.Where("substance = ?", filter.Substance)
	}
	if filter.LowOnly {
		q = q.Where("status = ? AND current_quantity < ?", enums.BatchStatusActive, filter.LowThreshold)
	}
	if cursor != nil {
		q = q.Where(
			"created_at > ? OR (created_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var batches []models.Batch
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) UpdateGuarded(ctx context.Context, batchID uuid.UUID, expectedVersion int64, updates map[string]any) (bool, error) {
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

func (r *repository) ListExpirationCandidates(ctx context.Context, now time.Time) ([]models.Batch, error) {
	var batches []models.Batch
	err := r.db.WithContext(ctx).
		Where("expiration_date IS NOT NULL AND expiration_date <= ?", now).
		Where("status NOT IN ?", []enums.BatchStatus{enums.BatchStatusExpired, enums.BatchStatusDisposed}).
		Order("expiration_date ASC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}
