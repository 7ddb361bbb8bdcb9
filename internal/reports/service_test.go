package reports

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
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
)

func newReportsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:reports_" + uuid.NewString() + "?mode=memory&cache=shared"
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
CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  batch_id TEXT NOT NULL,
  type TEXT NOT NULL,
  quantity_delta NUMERIC NOT NULL,
  unit TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  witness_id TEXT,
  reason TEXT,
  acquisition_id TEXT,
  disposal_id TEXT,
  adjusts_entry_id TEXT,
  created_at DATETIME
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
);`}

	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedReportBatch(t *testing.T, db *gorm.DB, substance, lot string) uuid.UUID {
	t.Helper()

	batch := &models.Batch{
		Substance:       substance,
		Schedule:        "II",
		LotNumber:       lot,
		SerialNumber:    uuid.NewString(),
		Manufacturer:    "Hikma",
		ConcentrationMg: decimal.NewFromInt(50),
		Unit:            enums.UnitMilliliter,
		StartingVolume:  decimal.NewFromInt(500),
		CurrentQuantity: decimal.NewFromInt(500),
		Status:          enums.BatchStatusActive,
	}
	require.NoError(t, db.Create(batch).Error)
	return batch.ID
}

func seedReportEntry(t *testing.T, db *gorm.DB, batchID uuid.UUID, entryType enums.LedgerEntryType, delta int64, at time.Time, disposalID *uuid.UUID) uuid.UUID {
	t.Helper()

	var witness *uuid.UUID
	if entryType.RequiresWitness() {
		id := uuid.New()
		witness = &id
	}
	entry := &models.LedgerEntry{
		ID:            uuid.New(),
		BatchID:       batchID,
		Type:          entryType,
		QuantityDelta: decimal.NewFromInt(delta),
		Unit:          enums.UnitMilliliter,
		ActorID:       uuid.New(),
		WitnessID:     witness,
		Reason:        "procedure",
		DisposalID:    disposalID,
		CreatedAt:     at,
	}
	require.NoError(t, db.Create(entry).Error)
	return entry.ID
}

func TestDispensingLog(t *testing.T) {
	db := newReportsTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	batchID := seedReportBatch(t, db, "Fentanyl Citrate", "FC-88")
	now := time.Now().UTC()
	seedReportEntry(t, db, batchID, enums.LedgerEntryTypeAcquisition, 500, now.Add(-3*time.Hour), nil)
	seedReportEntry(t, db, batchID, enums.LedgerEntryTypeDispense, -20, now.Add(-2*time.Hour), nil)
	seedReportEntry(t, db, batchID, enums.LedgerEntryTypeDispense, -15, now.Add(-time.Hour), nil)
	seedReportEntry(t, db, batchID, enums.LedgerEntryTypeWaste, -5, now.Add(-30*time.Minute), nil)

	entries, next, err := svc.DispensingLog(context.Background(), Range{}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, entries, 2, "only dispense rows belong on the log")
	assert.Empty(t, next)
	assert.Equal(t, "Fentanyl Citrate", entries[0].Substance)
	assert.Equal(t, "FC-88", entries[0].LotNumber)
	assert.True(t, entries[0].Quantity.Equal(decimal.NewFromInt(20)), "quantities read positive on the log")
	assert.True(t, entries[1].Quantity.Equal(decimal.NewFromInt(15)))
	assert.True(t, entries[0].DispensedAt.Before(entries[1].DispensedAt))
}

func TestDispensingLogRangeAndPagination(t *testing.T) {
	db := newReportsTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	batchID := seedReportBatch(t, db, "Midazolam", "MZ-12")
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		seedReportEntry(t, db, batchID, enums.LedgerEntryTypeDispense, -1, now.Add(time.Duration(-5+i)*time.Hour), nil)
	}

	entries, next, err := svc.DispensingLog(context.Background(), Range{From: now.Add(-4*time.Hour - time.Minute)}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotEmpty(t, next)

	rest, next, err := svc.DispensingLog(context.Background(), Range{From: now.Add(-4*time.Hour - time.Minute)}, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Empty(t, next)
	assert.NotEqual(t, entries[1].EntryID, rest[0].EntryID)

	_, _, err = svc.DispensingLog(context.Background(), Range{From: now, To: now.Add(-time.Hour)}, pagination.Params{})
	require.Error(t, err, "inverted range is rejected")
}

func TestWasteRegister(t *testing.T) {
	db := newReportsTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	batchID := seedReportBatch(t, db, "Methadone HCl", "MD-41")
	now := time.Now().UTC()

	form := "EPA-INC-7741"
	disposal := &models.DisposalRecord{
		BatchID:       batchID,
		Quantity:      decimal.NewFromInt(120),
		Reason:        "expired stock",
		FullDisposal:  true,
		FormReference: &form,
		Status:        enums.DisposalStatusFinalized,
	}
	require.NoError(t, db.Create(disposal).Error)

	seedReportEntry(t, db, batchID, enums.LedgerEntryTypeWaste, -3, now.Add(-2*time.Hour), nil)
	seedReportEntry(t, db, batchID, enums.LedgerEntryTypeDisposal, -120, now.Add(-time.Hour), &disposal.ID)
	seedReportEntry(t, db, batchID, enums.LedgerEntryTypeDispense, -10, now.Add(-30*time.Minute), nil)

	entries, _, err := svc.WasteRegister(context.Background(), Range{}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, enums.LedgerEntryTypeWaste, entries[0].Type)
	require.NotNil(t, entries[0].WitnessID)
	assert.Nil(t, entries[0].FormReference)

	assert.Equal(t, enums.LedgerEntryTypeDisposal, entries[1].Type)
	assert.True(t, entries[1].Quantity.Equal(decimal.NewFromInt(120)))
	require.NotNil(t, entries[1].FormReference)
	assert.Equal(t, form, *entries[1].FormReference)
}

func TestAcquisitionsRegister(t *testing.T) {
	db := newReportsTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	batchID := seedReportBatch(t, db, "Methadone HCl", "MD-42")
	now := time.Now().UTC()
	accepted := decimal.NewFromInt(480)

	require.NoError(t, db.Create(&models.AcquisitionRecord{
		FormNumber:          "F-2001",
		SupplierName:        "McKesson",
		SupplierDEANumber:   "AB1234563",
		RegistrantName:      "ClearPath Clinical",
		RegistrantDEANumber: "BN5234567",
		ExecutionDate:       now.Add(-48 * time.Hour),
		OrderedQty:          decimal.NewFromInt(500),
		ReceivedQty:         decimal.NewFromInt(480),
		AcceptedQty:         &accepted,
		Status:              enums.AcquisitionStatusCompleted,
		BatchID:             &batchID,
	}).Error)
	require.NoError(t, db.Create(&models.AcquisitionRecord{
		FormNumber:          "F-2002",
		SupplierName:        "Cardinal Health",
		SupplierDEANumber:   "AB1234563",
		RegistrantName:      "ClearPath Clinical",
		RegistrantDEANumber: "BN5234567",
		ExecutionDate:       now.Add(-24 * time.Hour),
		OrderedQty:          decimal.NewFromInt(200),
		ReceivedQty:         decimal.NewFromInt(150),
		Status:              enums.AcquisitionStatusDiscrepancy,
	}).Error)

	entries, _, err := svc.AcquisitionsRegister(context.Background(), Range{}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	completed := entries[0]
	assert.Equal(t, "F-2001", completed.FormNumber)
	require.NotNil(t, completed.Substance)
	assert.Equal(t, "Methadone HCl", *completed.Substance)
	require.NotNil(t, completed.AcceptedQty)
	assert.True(t, completed.AcceptedQty.Equal(accepted))

	parked := entries[1]
	assert.Equal(t, enums.AcquisitionStatusDiscrepancy, parked.Status)
	assert.Nil(t, parked.Substance, "no batch until the discrepancy resolves")

	scoped, _, err := svc.AcquisitionsRegister(context.Background(), Range{From: now.Add(-30 * time.Hour)}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "F-2002", scoped[0].FormNumber)
}
