package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
)

func newLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	batches := `
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
);`
	ledgerEntries := `
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
);`
	outboxEvents := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  terminal INTEGER NOT NULL DEFAULT 0
);`

	for _, stmt := range []string{batches, ledgerEntries, outboxEvents} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedBatch(t *testing.T, db *gorm.DB, quantity string, status enums.BatchStatus) *models.Batch {
	t.Helper()

	qty, err := decimal.NewFromString(quantity)
	require.NoError(t, err)

	batch := &models.Batch{
		ID:              uuid.New(),
		Substance:       "Methadone HCl",
		Schedule:        "II",
		LotNumber:       "MTD-2026-041",
		SerialNumber:    uuid.NewString(),
		Manufacturer:    "Par Pharmaceutical",
		ConcentrationMg: decimal.NewFromInt(10),
		Unit:            enums.UnitMilliliter,
		StartingVolume:  qty,
		CurrentQuantity: qty,
		Status:          status,
		Version:         1,
	}
	require.NoError(t, db.Create(batch).Error)
	return batch
}
