package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgdb "github.com/clearpath-clinical/inventory-backend/pkg/db"
	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/outbox"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
	"github.com/clearpath-clinical/inventory-backend/pkg/policy"
)

func newLedgerService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()

	client := pkgdb.NewWithConn(conn)
	ob := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(NewRepository(conn), client, ob, policy.Default(), nil)
	require.NoError(t, err)
	return svc
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func TestAppendDispenseUpdatesBalance(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)
	batch := seedBatch(t, db, "500", enums.BatchStatusActive)

	entry, err := svc.Append(context.Background(), AppendEntryInput{
		BatchID: batch.ID,
		Type:    enums.LedgerEntryTypeDispense,
		Delta:   mustDecimal(t, "-50.25"),
		ActorID: uuid.New(),
		Reason:  "procedure sedation",
	})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.UnitMilliliter, entry.Unit)

	var stored models.Batch
	require.NoError(t, db.First(&stored, "id = ?", batch.ID).Error)
	assert.True(t, stored.CurrentQuantity.Equal(mustDecimal(t, "449.75")),
		"expected 449.75, got %s", stored.CurrentQuantity)
	assert.Equal(t, int64(2), stored.Version)

	// Cached quantity must equal the ledger-derived balance.
	balance, err := svc.BalanceAt(context.Background(), &batch.ID, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	total := batch.StartingVolume.Add(balance)
	assert.True(t, total.Equal(stored.CurrentQuantity),
		"starting + deltas = %s, cached = %s", total, stored.CurrentQuantity)

	var event models.OutboxEvent
	require.NoError(t, db.First(&event, "aggregate_id = ?", batch.ID).Error)
	assert.Equal(t, enums.OutboxEventLedgerEntryRecorded, event.EventType)
}

func TestAppendOpensSealedBatch(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)
	batch := seedBatch(t, db, "100", enums.BatchStatusSealed)

	_, err := svc.Append(context.Background(), AppendEntryInput{
		BatchID: batch.ID,
		Type:    enums.LedgerEntryTypeDispense,
		Delta:   mustDecimal(t, "-10"),
		ActorID: uuid.New(),
	})
	require.NoError(t, err)

	var stored models.Batch
	require.NoError(t, db.First(&stored, "id = ?", batch.ID).Error)
	assert.Equal(t, enums.BatchStatusActive, stored.Status)
	require.NotNil(t, stored.OpenedAt)
}

func TestAppendRejectsOverdraw(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)
	batch := seedBatch(t, db, "30", enums.BatchStatusActive)

	_, err := svc.Append(context.Background(), AppendEntryInput{
		BatchID: batch.ID,
		Type:    enums.LedgerEntryTypeDispense,
		Delta:   mustDecimal(t, "-30.01"),
		ActorID: uuid.New(),
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, appErr.Code())

	// Nothing committed.
	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Where("batch_id = ?", batch.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAppendRejectsOverfill(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)
	batch := seedBatch(t, db, "100", enums.BatchStatusActive)

	// A sealed bottle cannot hold more than it shipped with, so a
	// correction that pushes past the starting volume is a data error.
	_, err := svc.Append(context.Background(), AppendEntryInput{
		BatchID: batch.ID,
		Type:    enums.LedgerEntryTypeAdjustment,
		Delta:   mustDecimal(t, "50"),
		ActorID: uuid.New(),
		Reason:  "count correction",
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	var stored models.Batch
	require.NoError(t, db.First(&stored, "id = ?", batch.ID).Error)
	assert.True(t, stored.CurrentQuantity.Equal(mustDecimal(t, "100")),
		"quantity must stay at 100, got %s", stored.CurrentQuantity)

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Where("batch_id = ?", batch.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestBalanceAtInTxSeesUncommittedEntries(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)
	batch := seedBatch(t, db, "200", enums.BatchStatusActive)
	client := pkgdb.NewWithConn(db)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := svc.RecordInTx(context.Background(), tx, AppendEntryInput{
			BatchID: batch.ID,
			Type:    enums.LedgerEntryTypeDispense,
			Delta:   mustDecimal(t, "-40"),
			ActorID: uuid.New(),
		})
		require.NoError(t, err)

		// The sum must observe the entry recorded on this transaction,
		// not the committed state.
		balance, err := svc.BalanceAtInTx(context.Background(), tx, &batch.ID, time.Now().UTC().Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, balance.Equal(mustDecimal(t, "-40")),
			"expected -40, got %s", balance)
		return nil
	})
	require.NoError(t, err)

	_, err = svc.BalanceAtInTx(context.Background(), nil, &batch.ID, time.Now().UTC())
	require.Error(t, err)
}

func TestAppendWitnessRules(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)
	batch := seedBatch(t, db, "100", enums.BatchStatusActive)
	actor := uuid.New()

	_, err := svc.Append(context.Background(), AppendEntryInput{
		BatchID: batch.ID,
		Type:    enums.LedgerEntryTypeWaste,
		Delta:   mustDecimal(t, "-5"),
		ActorID: actor,
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeMissingWitness, appErr.Code())

	// Witnessing your own waste does not count.
	self := actor
	_, err = svc.Append(context.Background(), AppendEntryInput{
		BatchID:   batch.ID,
		Type:      enums.LedgerEntryTypeWaste,
		Delta:     mustDecimal(t, "-5"),
		ActorID:   actor,
		WitnessID: &self,
	})
	require.Error(t, err)

	witness := uuid.New()
	entry, err := svc.Append(context.Background(), AppendEntryInput{
		BatchID:   batch.ID,
		Type:      enums.LedgerEntryTypeWaste,
		Delta:     mustDecimal(t, "-5"),
		ActorID:   actor,
		WitnessID: &witness,
		Reason:    "partial vial remainder",
	})
	require.NoError(t, err)
	require.NotNil(t, entry.WitnessID)
	assert.Equal(t, witness, *entry.WitnessID)
}

func TestAppendRejectsTerminalAndRestrictedStates(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)

	disposed := seedBatch(t, db, "0", enums.BatchStatusDisposed)
	_, err := svc.Append(context.Background(), AppendEntryInput{
		BatchID: disposed.ID,
		Type:    enums.LedgerEntryTypeAdjustment,
		Delta:   mustDecimal(t, "1"),
		ActorID: uuid.New(),
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())

	expired := seedBatch(t, db, "50", enums.BatchStatusExpired)
	_, err = svc.Append(context.Background(), AppendEntryInput{
		BatchID: expired.ID,
		Type:    enums.LedgerEntryTypeDispense,
		Delta:   mustDecimal(t, "-5"),
		ActorID: uuid.New(),
	})
	require.Error(t, err)

	// Expired stock can still be wasted with a witness.
	witness := uuid.New()
	_, err = svc.Append(context.Background(), AppendEntryInput{
		BatchID:   expired.ID,
		Type:      enums.LedgerEntryTypeWaste,
		Delta:     mustDecimal(t, "-5"),
		ActorID:   uuid.New(),
		WitnessID: &witness,
	})
	require.NoError(t, err)
}

func TestAppendRejectsReservedTypes(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)
	batch := seedBatch(t, db, "100", enums.BatchStatusActive)

	for _, entryType := range []enums.LedgerEntryType{
		enums.LedgerEntryTypeAcquisition,
		enums.LedgerEntryTypeDisposal,
	} {
		delta := mustDecimal(t, "10")
		if entryType == enums.LedgerEntryTypeDisposal {
			delta = mustDecimal(t, "-10")
		}
		_, err := svc.Append(context.Background(), AppendEntryInput{
			BatchID: batch.ID,
			Type:    entryType,
			Delta:   delta,
			ActorID: uuid.New(),
		})
		require.Error(t, err, "type %s must be rejected on the direct surface", entryType)
	}
}

func TestAppendAdjustmentReferencesOriginal(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)
	batch := seedBatch(t, db, "100", enums.BatchStatusActive)
	actor := uuid.New()

	original, err := svc.Append(context.Background(), AppendEntryInput{
		BatchID: batch.ID,
		Type:    enums.LedgerEntryTypeDispense,
		Delta:   mustDecimal(t, "-20"),
		ActorID: actor,
	})
	require.NoError(t, err)

	// Correct an over-recorded dispense by adding back 5.
	adj, err := svc.Append(context.Background(), AppendEntryInput{
		BatchID:        batch.ID,
		Type:           enums.LedgerEntryTypeAdjustment,
		Delta:          mustDecimal(t, "5"),
		ActorID:        actor,
		Reason:         "recorded 20, administered 15",
		AdjustsEntryID: &original.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, adj.AdjustsEntryID)

	otherBatch := seedBatch(t, db, "100", enums.BatchStatusActive)
	_, err = svc.Append(context.Background(), AppendEntryInput{
		BatchID:        otherBatch.ID,
		Type:           enums.LedgerEntryTypeAdjustment,
		Delta:          mustDecimal(t, "1"),
		ActorID:        actor,
		AdjustsEntryID: &original.ID,
	})
	require.Error(t, err, "adjustment must not reference an entry on another batch")
}

func TestHistoryPagination(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)
	batch := seedBatch(t, db, "1000", enums.BatchStatusActive)
	actor := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := svc.Append(context.Background(), AppendEntryInput{
			BatchID: batch.ID,
			Type:    enums.LedgerEntryTypeDispense,
			Delta:   mustDecimal(t, "-10"),
			ActorID: actor,
		})
		require.NoError(t, err)
	}

	first, next, err := svc.History(context.Background(), HistoryInput{
		Filter:     HistoryFilter{BatchID: batch.ID},
		Pagination: pagination.Params{Limit: 3},
	})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotEmpty(t, next)

	rest, last, err := svc.History(context.Background(), HistoryInput{
		Filter:     HistoryFilter{BatchID: batch.ID},
		Pagination: pagination.Params{Limit: 3, Cursor: next},
	})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Empty(t, last)

	seen := map[uuid.UUID]bool{}
	for _, e := range append(first, rest...) {
		require.False(t, seen[e.ID], "entry %s returned twice", e.ID)
		seen[e.ID] = true
	}
}

func TestHistoryRejectsInvertedRange(t *testing.T) {
	db := newLedgerTestDB(t)
	svc := newLedgerService(t, db)

	from := time.Now().UTC()
	to := from.Add(-time.Hour)
	_, _, err := svc.History(context.Background(), HistoryInput{
		Filter: HistoryFilter{From: &from, To: &to},
	})
	require.Error(t, err)
}

type stubRepository struct {
	Repository
	batch      *models.Batch
	guardCalls int
}

func (s *stubRepository) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepository) FindBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	copyBatch := *s.batch
	return &copyBatch, nil
}

func (s *stubRepository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	entry.ID = uuid.New()
	return nil
}

func (s *stubRepository) UpdateBatchGuarded(ctx context.Context, batchID uuid.UUID, expectedVersion int64, updates map[string]any) (bool, error) {
	s.guardCalls++
	return false, nil
}

type stubTxRunner struct{ db *gorm.DB }

func (s stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(s.db)
}

type stubEmitter struct{}

func (stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	return nil
}

func TestAppendSurfacesConflictAfterRetries(t *testing.T) {
	db := newLedgerTestDB(t)
	repo := &stubRepository{batch: &models.Batch{
		ID:              uuid.New(),
		Unit:            enums.UnitMilliliter,
		StartingVolume:  decimal.NewFromInt(100),
		CurrentQuantity: decimal.NewFromInt(100),
		Status:          enums.BatchStatusActive,
		Version:         1,
	}}

	rules := policy.Default()
	svc, err := NewService(repo, stubTxRunner{db: db}, stubEmitter{}, rules, nil)
	require.NoError(t, err)

	_, err = svc.Append(context.Background(), AppendEntryInput{
		BatchID: repo.batch.ID,
		Type:    enums.LedgerEntryTypeDispense,
		Delta:   decimal.NewFromInt(-10),
		ActorID: uuid.New(),
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeConflict, appErr.Code())
	assert.Equal(t, rules.MutationRetryAttempts, repo.guardCalls)
	assert.False(t, errors.Is(err, ErrStaleBatch), "sentinel must not leak to callers")
}
