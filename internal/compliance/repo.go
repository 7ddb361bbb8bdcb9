package compliance

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
)

// Repository runs the read-only aggregate queries behind compliance metrics.
// It never writes; every method is safe to call on every request.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type statusCount struct {
	Status enums.BatchStatus
	Count  int64
}

// BatchStatusCounts groups the batch population by persisted status.
func (r *Repository) BatchStatusCounts(ctx context.Context) (map[enums.BatchStatus]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[enums.BatchStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// TotalOnHand sums the cached quantity of every batch still physically
// present. Expired and quarantined stock counts until it is destroyed.
func (r *Repository) TotalOnHand(ctx context.Context) (decimal.Decimal, error) {
	row := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("status <> ?", enums.BatchStatusDisposed).
		Select("COALESCE(SUM(current_quantity), 0)").
		Row()

	var total decimal.Decimal
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// CountExpiringBefore counts usable batches whose expiration date falls
// on or before the cutoff.
func (r *Repository) CountExpiringBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("expiration_date IS NOT NULL AND expiration_date <= ?", cutoff).
		Where("status IN ?", []enums.BatchStatus{enums.BatchStatusSealed, enums.BatchStatusActive, enums.BatchStatusQuarantine}).
		Count(&count).Error
	return count, err
}

// CountOpenAcquisitions counts acquisition records still awaiting product
// or discrepancy resolution.
func (r *Repository) CountOpenAcquisitions(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AcquisitionRecord{}).
		Where("status IN ?", []enums.AcquisitionStatus{enums.AcquisitionStatusPending, enums.AcquisitionStatusDiscrepancy}).
		Count(&count).Error
	return count, err
}

// CountOpenDisposals counts disposal records not yet finalized.
func (r *Repository) CountOpenDisposals(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DisposalRecord{}).
		Where("status <> ?", enums.DisposalStatusFinalized).
		Count(&count).Error
	return count, err
}

// LatestSnapshot returns the most recent physical count of the given
// types, or nil when none exists.
func (r *Repository) LatestSnapshot(ctx context.Context, types []enums.SnapshotType) (*models.InventorySnapshot, error) {
	var snapshot models.InventorySnapshot
	q := r.db.WithContext(ctx).Model(&models.InventorySnapshot{})
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	err := q.Order("taken_at DESC").First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
