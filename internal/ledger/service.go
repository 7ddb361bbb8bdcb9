package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/metrics"
	"github.com/clearpath-clinical/inventory-backend/pkg/outbox"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
	"github.com/clearpath-clinical/inventory-backend/pkg/policy"
)

// ErrStaleBatch signals that another writer bumped the batch version between
// read and guarded update. Callers composing their own transaction retry on
// it; Append handles the retry internally.
var ErrStaleBatch = errors.New("batch version changed during transaction")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service records and reads the append-only quantity ledger.
type Service interface {
	Append(ctx context.Context, input AppendEntryInput) (*models.LedgerEntry, error)
	// RecordInTx applies one entry inside the caller's transaction. On
	// ErrStaleBatch the caller owns the retry.
	RecordInTx(ctx context.Context, tx *gorm.DB, input AppendEntryInput) (*models.LedgerEntry, error)
	History(ctx context.Context, input HistoryInput) ([]models.LedgerEntry, string, error)
	BalanceAt(ctx context.Context, batchID *uuid.UUID, at time.Time) (decimal.Decimal, error)
	// BalanceAtInTx sums deltas inside the caller's transaction so a read
	// and the write it feeds see the same ledger state.
	BalanceAtInTx(ctx context.Context, tx *gorm.DB, batchID *uuid.UUID, at time.Time) (decimal.Decimal, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxEmitter
	rules   policy.Rules
	metrics *metrics.LedgerMetrics
}

// AppendEntryInput captures the immutable data a ledger entry requires.
// Delta is signed: receipts positive, deductions negative.
type AppendEntryInput struct {
	BatchID        uuid.UUID
	Type           enums.LedgerEntryType
	Delta          decimal.Decimal
	ActorID        uuid.UUID
	WitnessID      *uuid.UUID
	Reason         string
	AcquisitionID  *uuid.UUID
	DisposalID     *uuid.UUID
	AdjustsEntryID *uuid.UUID
	// BatchUpdates lets the owning flow fold extra batch column changes
	// into the same guarded update (status transitions at finalization).
	BatchUpdates map[string]any
}

// HistoryInput narrows and pages a ledger read.
type HistoryInput struct {
	Filter     HistoryFilter
	Pagination pagination.Params
}

// EntryRecordedEvent is the audit payload queued when an entry commits.
type EntryRecordedEvent struct {
	EntryID       uuid.UUID             `json:"entry_id"`
	BatchID       uuid.UUID             `json:"batch_id"`
	Type          enums.LedgerEntryType `json:"type"`
	QuantityDelta decimal.Decimal       `json:"quantity_delta"`
	Unit          enums.Unit            `json:"unit"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
	Reason        string                `json:"reason,omitempty"`
}

// NewService wires the ledger service with its collaborators.
func NewService(repo Repository, tx txRunner, ob outboxEmitter, rules policy.Rules, m *metrics.LedgerMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if rules.MutationRetryAttempts <= 0 {
		rules.MutationRetryAttempts = policy.Default().MutationRetryAttempts
	}
	return &service{repo: repo, tx: tx, outbox: ob, rules: rules, metrics: m}, nil
}

func (s *service) Append(ctx context.Context, input AppendEntryInput) (*models.LedgerEntry, error) {
	// Acquisition and disposal entries are written by their owning flows,
	// which carry the paperwork the entry must reference.
	switch input.Type {
	case enums.LedgerEntryTypeAcquisition:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "acquisition entries are recorded through the acquisition flow")
	case enums.LedgerEntryTypeDisposal:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "disposal entries are recorded at disposal finalization")
	}

	start := time.Now()
	var entry *models.LedgerEntry

	for attempt := 0; attempt < s.rules.MutationRetryAttempts; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			recorded, err := s.RecordInTx(ctx, tx, input)
			if err != nil {
				return err
			}
			entry = recorded
			return nil
		})
		if err == nil {
			s.metrics.ObserveAppend(string(input.Type), "success", time.Since(start))
			return entry, nil
		}
		if errors.Is(err, ErrStaleBatch) {
			continue
		}
		s.metrics.ObserveAppend(string(input.Type), "error", time.Since(start))
		return nil, err
	}

	s.metrics.IncConflict()
	s.metrics.ObserveAppend(string(input.Type), "conflict", time.Since(start))
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "batch was modified concurrently, retry the request")
}

func (s *service) RecordInTx(ctx context.Context, tx *gorm.DB, input AppendEntryInput) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for ledger writes")
	}
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)

	batch, err := repo.FindBatch(ctx, input.BatchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
	}

	if err := s.checkBatchState(batch, input.Type); err != nil {
		return nil, err
	}

	if input.AdjustsEntryID != nil {
		original, err := repo.FindEntry(ctx, *input.AdjustsEntryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "adjusted entry not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load adjusted entry")
		}
		if original.BatchID != batch.ID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjusted entry belongs to a different batch")
		}
	}

	newQuantity := batch.CurrentQuantity.Add(input.Delta)
	if newQuantity.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "entry would take batch quantity below zero").
			WithDetails(map[string]string{
				"current_quantity": batch.CurrentQuantity.String(),
				"delta":            input.Delta.String(),
			})
	}
	if newQuantity.GreaterThan(batch.StartingVolume) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry would take batch quantity above its starting volume").
			WithDetails(map[string]string{
				"current_quantity": batch.CurrentQuantity.String(),
				"starting_volume":  batch.StartingVolume.String(),
				"delta":            input.Delta.String(),
			})
	}

	entry := &models.LedgerEntry{
		BatchID:        batch.ID,
		Type:           input.Type,
		QuantityDelta:  input.Delta,
		Unit:           batch.Unit,
		ActorID:        input.ActorID,
		WitnessID:      input.WitnessID,
		Reason:         input.Reason,
		AcquisitionID:  input.AcquisitionID,
		DisposalID:     input.DisposalID,
		AdjustsEntryID: input.AdjustsEntryID,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ledger entry")
	}

	updates := map[string]any{"current_quantity": newQuantity}
	for k, v := range input.BatchUpdates {
		updates[k] = v
	}
	// First deduction against a sealed container opens it.
	if batch.Status == enums.BatchStatusSealed && input.Delta.IsNegative() {
		if _, ok := updates["status"]; !ok {
			updates["status"] = enums.BatchStatusActive
			updates["opened_at"] = time.Now().UTC()
		}
	}

	written, err := repo.UpdateBatchGuarded(ctx, batch.ID, batch.Version, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update batch quantity")
	}
	if !written {
		return nil, ErrStaleBatch
	}

	event := outbox.DomainEvent{
		EventType:     enums.OutboxEventLedgerEntryRecorded,
		AggregateType: enums.OutboxAggregateBatch,
		AggregateID:   batch.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{ActorID: input.ActorID, WitnessID: input.WitnessID},
		Data: EntryRecordedEvent{
			EntryID:       entry.ID,
			BatchID:       batch.ID,
			Type:          entry.Type,
			QuantityDelta: entry.QuantityDelta,
			Unit:          entry.Unit,
			BalanceAfter:  newQuantity,
			Reason:        entry.Reason,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue audit event")
	}

	return entry, nil
}

func (s *service) validateInput(input AppendEntryInput) error {
	if input.BatchID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", input.Type))
	}
	if input.Delta.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity delta must be non-zero")
	}

	switch input.Type {
	case enums.LedgerEntryTypeAcquisition:
		if !input.Delta.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "acquisition delta must be positive")
		}
	case enums.LedgerEntryTypeDispense, enums.LedgerEntryTypeWaste, enums.LedgerEntryTypeDisposal:
		if !input.Delta.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s delta must be negative", input.Type))
		}
	}

	if input.Type.RequiresWitness() {
		if input.WitnessID == nil || *input.WitnessID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeMissingWitness, fmt.Sprintf("%s entries require a witness", input.Type))
		}
		if *input.WitnessID == input.ActorID {
			return pkgerrors.New(pkgerrors.CodeValidation, "witness must differ from the acting clinician")
		}
	}
	return nil
}

func (s *service) checkBatchState(batch *models.Batch, entryType enums.LedgerEntryType) error {
	if batch.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "batch is disposed and accepts no further entries")
	}
	// Expired or quarantined product can still be wasted or destroyed, it
	// just cannot reach a patient.
	if entryType == enums.LedgerEntryTypeDispense {
		switch batch.Status {
		case enums.BatchStatusExpired, enums.BatchStatusQuarantine:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot dispense from a %s batch", batch.Status))
		}
	}
	return nil
}

func (s *service) History(ctx context.Context, input HistoryInput) ([]models.LedgerEntry, string, error) {
	for _, t := range input.Filter.Types {
		if !t.IsValid() {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", t))
		}
	}
	if input.Filter.From != nil && input.Filter.To != nil && input.Filter.To.Before(*input.Filter.From) {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "time range end precedes start")
	}

	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Pagination.Limit)
	entries, err := s.repo.ListEntries(ctx, input.Filter, limit+1, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}

	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return entries, next, nil
}

func (s *service) BalanceAt(ctx context.Context, batchID *uuid.UUID, at time.Time) (decimal.Decimal, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	total, err := s.repo.SumDeltas(ctx, batchID, &at)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger deltas")
	}
	return total, nil
}

func (s *service) BalanceAtInTx(ctx context.Context, tx *gorm.DB, batchID *uuid.UUID, at time.Time) (decimal.Decimal, error) {
	if tx == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for in-transaction balance reads")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	total, err := s.repo.WithTx(tx).SumDeltas(ctx, batchID, &at)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger deltas")
	}
	return total, nil
}
