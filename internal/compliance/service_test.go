package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	"github.com/clearpath-clinical/inventory-backend/pkg/policy"
)

func newComplianceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:compliance_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS batches (
  id TEXT PRIMARY KEY,
  substance TEXT NOT NULL,
  schedule TEXT NOT NULL DEFAULT 'II',
  lot_number TEXT NOT NULL,
  serial_number TEXT NOT NULL,
  manufacturer TEXT NOT NULL,
  concentration_mg_per_ml NUMERIC NOT NULL,
  unit TEXT NOT NULL,
  starting_volume NUMERIC NOT NULL,
  current_quantity NUMERIC NOT NULL,
  expiration_date DATETIME,
  storage_location TEXT,
  status TEXT NOT NULL DEFAULT 'sealed',
  opened_at DATETIME,
  acquisition_id TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS acquisition_records (
  id TEXT PRIMARY KEY,
  form_number TEXT NOT NULL UNIQUE,
  supplier_name TEXT NOT NULL,
  supplier_dea_number TEXT NOT NULL,
  registrant_name TEXT NOT NULL,
  registrant_dea_number TEXT NOT NULL,
  execution_date DATETIME NOT NULL,
  ordered_qty NUMERIC NOT NULL,
  received_qty NUMERIC NOT NULL,
  accepted_qty NUMERIC,
  status TEXT NOT NULL DEFAULT 'pending',
  resolution_note TEXT,
  batch_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS disposal_records (
  id TEXT PRIMARY KEY,
  batch_id TEXT NOT NULL,
  quantity NUMERIC NOT NULL,
  reason TEXT NOT NULL,
  full_disposal INTEGER NOT NULL DEFAULT 0,
  requires_incineration_form INTEGER NOT NULL DEFAULT 0,
  form_reference TEXT,
  status TEXT NOT NULL DEFAULT 'draft',
  ledger_entry_id TEXT,
  finalized_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS inventory_snapshots (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  taken_at DATETIME NOT NULL,
  counted_by TEXT NOT NULL,
  verified_by TEXT,
  opening_count NUMERIC NOT NULL,
  physical_count NUMERIC NOT NULL,
  variance NUMERIC NOT NULL,
  variance_percent NUMERIC NOT NULL,
  notes TEXT,
  spacing_warning TEXT,
  created_at DATETIME
);`}

	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedComplianceBatch(t *testing.T, db *gorm.DB, quantity string, status enums.BatchStatus, expires *time.Time) {
	t.Helper()

	qty, err := decimal.NewFromString(quantity)
	require.NoError(t, err)
	batch := &models.Batch{
		Substance:       "Methadone HCl",
		Schedule:        "II",
		LotNumber:       "MTD-2025-001",
		SerialNumber:    uuid.NewString(),
		Manufacturer:    "Mallinckrodt",
		ConcentrationMg: decimal.NewFromInt(10),
		Unit:            enums.UnitMilliliter,
		StartingVolume:  qty,
		CurrentQuantity: qty,
		ExpirationDate:  expires,
		Status:          status,
	}
	require.NoError(t, db.Create(batch).Error)
}

func seedSnapshot(t *testing.T, db *gorm.DB, snapType enums.SnapshotType, takenAt time.Time, variancePercent string) {
	t.Helper()

	percent, err := decimal.NewFromString(variancePercent)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.InventorySnapshot{
		Type:            snapType,
		TakenAt:         takenAt,
		CountedBy:       uuid.New(),
		OpeningCount:    decimal.NewFromInt(500),
		PhysicalCount:   decimal.NewFromInt(500),
		Variance:        decimal.Zero,
		VariancePercent: percent,
	}).Error)
}

func TestMetricsAggregates(t *testing.T) {
	db := newComplianceTestDB(t)
	svc, err := NewService(NewRepository(db), policy.Default(), nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	soon := now.Add(10 * 24 * time.Hour)
	far := now.Add(200 * 24 * time.Hour)

	seedComplianceBatch(t, db, "300.00", enums.BatchStatusActive, &soon)
	seedComplianceBatch(t, db, "150.50", enums.BatchStatusSealed, &far)
	seedComplianceBatch(t, db, "80.00", enums.BatchStatusExpired, nil)
	seedComplianceBatch(t, db, "0.00", enums.BatchStatusDisposed, nil)

	require.NoError(t, db.Create(&models.AcquisitionRecord{
		FormNumber:          "F-1001",
		SupplierName:        "McKesson",
		SupplierDEANumber:   "AB1234563",
		RegistrantName:      "ClearPath Clinical",
		RegistrantDEANumber: "BN5234567",
		ExecutionDate:       now,
		OrderedQty:          decimal.NewFromInt(500),
		ReceivedQty:         decimal.NewFromInt(480),
		Status:              enums.AcquisitionStatusDiscrepancy,
	}).Error)

	require.NoError(t, db.Create(&models.DisposalRecord{
		BatchID:  uuid.New(),
		Quantity: decimal.NewFromInt(80),
		Reason:   "expired stock",
		Status:   enums.DisposalStatusWitnessed,
	}).Error)

	metrics, err := svc.Metrics(context.Background())
	require.NoError(t, err)

	assert.True(t, metrics.TotalStock.Equal(decimal.RequireFromString("530.50")),
		"disposed stock excluded, got %s", metrics.TotalStock)
	assert.Equal(t, int64(1), metrics.BatchCounts[enums.BatchStatusActive])
	assert.Equal(t, int64(1), metrics.ExpiredBatchCount)
	assert.Equal(t, int64(1), metrics.ExpiringSoonCount)
	assert.Equal(t, int64(1), metrics.PendingAcquisitionCount)
	assert.Equal(t, int64(1), metrics.OpenDisposalCount)
	assert.Nil(t, metrics.DaysSinceLastBiennial)
	assert.Nil(t, metrics.VariancePercent)
	assert.False(t, metrics.VarianceAlert)
}

func TestMetricsBiennialClockAndVariance(t *testing.T) {
	db := newComplianceTestDB(t)
	svc, err := NewService(NewRepository(db), policy.Default(), nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	seedSnapshot(t, db, enums.SnapshotTypeInitial, now.Add(-400*24*time.Hour), "0")
	seedSnapshot(t, db, enums.SnapshotTypeShift, now.Add(-time.Hour), "-2.5000")

	metrics, err := svc.Metrics(context.Background())
	require.NoError(t, err)

	require.NotNil(t, metrics.DaysSinceLastBiennial, "initial count starts the clock")
	assert.Equal(t, 400, *metrics.DaysSinceLastBiennial)

	require.NotNil(t, metrics.VariancePercent)
	assert.True(t, metrics.VariancePercent.Equal(decimal.RequireFromString("-2.5")))
	assert.True(t, metrics.VarianceAlert, "2.5 percent exceeds the 1 percent threshold")
}

func TestMetricsVarianceWithinThreshold(t *testing.T) {
	db := newComplianceTestDB(t)
	svc, err := NewService(NewRepository(db), policy.Default(), nil)
	require.NoError(t, err)

	seedSnapshot(t, db, enums.SnapshotTypeShift, time.Now().UTC().Add(-time.Hour), "0.8000")

	metrics, err := svc.Metrics(context.Background())
	require.NoError(t, err)
	assert.False(t, metrics.VarianceAlert)
	assert.Nil(t, metrics.DaysSinceLastBiennial, "a shift count does not reset the biennial clock")
}
