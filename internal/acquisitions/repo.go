package acquisitions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
)

// ListFilter narrows the acquisitions register.
type ListFilter struct {
	Status enums.AcquisitionStatus
	From   *time.Time
	To     *time.Time
}

// Repository manages persistence for acquisition records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.AcquisitionRecord) error
	Find(ctx context.Context, id uuid.UUID) (*models.AcquisitionRecord, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.AcquisitionRecord, error)
	CreateBatch(ctx context.Context, batch *models.Batch) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an acquisitions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.AcquisitionRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.AcquisitionRecord, error) {
	var record models.AcquisitionRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.AcquisitionRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.AcquisitionRecord, error) {
	q := r.db.WithContext(ctx).Model(&models.AcquisitionRecord{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("execution_date >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("execution_date <= ?", *filter.To)
	}
	if cursor != nil {
		q = q.Where(
			"created_at > ? OR (created_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var records []models.AcquisitionRecord
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) CreateBatch(ctx context.Context, batch *models.Batch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}
