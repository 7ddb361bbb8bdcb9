package disposals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
)

// ListFilter narrows the disposal register.
type ListFilter struct {
	BatchID uuid.UUID
	Status  enums.DisposalStatus
}

// Repository manages persistence for disposal records and their witnesses.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.DisposalRecord) error
	// Find loads a record with its witnesses.
	Find(ctx context.Context, id uuid.UUID) (*models.DisposalRecord, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	AddWitness(ctx context.Context, witness *models.DisposalWitness) error
	List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.DisposalRecord, error)
	FindBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a disposals repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.DisposalRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.DisposalRecord, error) {
	var record models.DisposalRecord
	err := r.db.WithContext(ctx).
		Preload("Witnesses").
		First(&record, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.DisposalRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) AddWitness(ctx context.Context, witness *models.DisposalWitness) error {
	return r.db.WithContext(ctx).Create(witness).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.DisposalRecord, error) {
	q := r.db.WithContext(ctx).Model(&models.DisposalRecord{}).Preload("Witnesses")

	if filter.BatchID != uuid.Nil {
		q = q.Where("batch_id = ?", filter.BatchID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if cursor != nil {
		q = q.Where(
			"created_at > ? OR (created_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var records []models.DisposalRecord
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) FindBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}
