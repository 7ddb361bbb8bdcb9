package reconciliation

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
)

// Repository manages persistence for inventory snapshots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, snapshot *models.InventorySnapshot) error
	HasInitial(ctx context.Context) (bool, error)
	// LatestOfTypes returns the most recently taken snapshot among the
	// given types, or nil when none exists.
	LatestOfTypes(ctx context.Context, types []enums.SnapshotType) (*models.InventorySnapshot, error)
	List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.InventorySnapshot, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a snapshot repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, snapshot *models.InventorySnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *repository) HasInitial(ctx context.Context) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventorySnapshot{}).
		Where("type = ?", enums.SnapshotTypeInitial).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) LatestOfTypes(ctx context.Context, types []enums.SnapshotType) (*models.InventorySnapshot, error) {
	var snapshot models.InventorySnapshot
	err := r.db.WithContext(ctx).
		Where("type IN ?", types).
		Order("taken_at DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

func (r *repository) List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.InventorySnapshot, error) {
	q := r.db.WithContext(ctx).Model(&models.InventorySnapshot{})
	if cursor != nil {
		q = q.Where(
			"created_at > ? OR (created_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var snapshots []models.InventorySnapshot
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}
