package acquisitions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/internal/ledger"
	pkgdb "github.com/clearpath-clinical/inventory-backend/pkg/db"
	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/outbox"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledgerRecorder interface {
	RecordInTx(ctx context.Context, tx *gorm.DB, input ledger.AppendEntryInput) (*models.LedgerEntry, error)
}

// Service records inbound shipments and resolves quantity discrepancies.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*Result, error)
	Reconcile(ctx context.Context, input ReconcileInput) (*Result, error)
	Get(ctx context.Context, id uuid.UUID) (*models.AcquisitionRecord, error)
	List(ctx context.Context, input ListInput) ([]models.AcquisitionRecord, string, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxEmitter
	ledger ledgerRecorder
}

// BatchSpec describes the container an accepted shipment becomes.
type BatchSpec struct {
	Substance       string
	Schedule        string
	LotNumber       string
	SerialNumber    string
	Manufacturer    string
	ConcentrationMg decimal.Decimal
	Unit            enums.Unit
	ExpirationDate  *time.Time
	StorageLocation string
}

// RecordInput captures a Form-222 receipt.
type RecordInput struct {
	FormNumber          string
	SupplierName        string
	SupplierDEANumber   string
	RegistrantName      string
	RegistrantDEANumber string
	ExecutionDate       time.Time
	OrderedQty          decimal.Decimal
	ReceivedQty         decimal.Decimal
	Batch               BatchSpec
	ActorID             uuid.UUID
}

// ReconcileInput resolves a discrepancy record. Batch is required when any
// quantity is accepted; a full rejection closes the record without one.
type ReconcileInput struct {
	AcquisitionID  uuid.UUID
	AcceptedQty    decimal.Decimal
	ResolutionNote string
	Batch          BatchSpec
	ActorID        uuid.UUID
}

// ListInput pages the acquisitions register.
type ListInput struct {
	Status     string
	From       *time.Time
	To         *time.Time
	Pagination pagination.Params
}

// Result pairs the record with the batch it produced, when one exists.
type Result struct {
	Record *models.AcquisitionRecord
	Batch  *models.Batch
}

// CompletedEvent is the audit payload queued when a record completes.
type CompletedEvent struct {
	AcquisitionID uuid.UUID       `json:"acquisition_id"`
	FormNumber    string          `json:"form_number"`
	AcceptedQty   decimal.Decimal `json:"accepted_qty"`
	BatchID       *uuid.UUID      `json:"batch_id,omitempty"`
}

// NewService wires the acquisitions service.
func NewService(repo Repository, tx txRunner, ob outboxEmitter, lr ledgerRecorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("acquisitions repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if lr == nil {
		return nil, fmt.Errorf("ledger recorder required")
	}
	return &service{repo: repo, tx: tx, outbox: ob, ledger: lr}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*Result, error) {
	if err := s.validateRecord(input); err != nil {
		return nil, err
	}

	record := &models.AcquisitionRecord{
		FormNumber:          strings.TrimSpace(input.FormNumber),
		SupplierName:        input.SupplierName,
		SupplierDEANumber:   input.SupplierDEANumber,
		RegistrantName:      input.RegistrantName,
		RegistrantDEANumber: input.RegistrantDEANumber,
		ExecutionDate:       input.ExecutionDate,
		OrderedQty:          input.OrderedQty,
		ReceivedQty:         input.ReceivedQty,
		Status:              enums.AcquisitionStatusPending,
	}

	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, record); err != nil {
			if pkgdb.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("form number %s already recorded", record.FormNumber))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create acquisition record")
		}

		// A clean receipt completes immediately and seeds the batch. Any
		// ordered/received mismatch parks the record for reconciliation.
		if !input.ReceivedQty.Equal(input.OrderedQty) {
			if err := repo.Update(ctx, record.ID, map[string]any{
				"status": enums.AcquisitionStatusDiscrepancy,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag discrepancy")
			}
			record.Status = enums.AcquisitionStatusDiscrepancy
			result.Record = record
			return nil
		}

		batch, err := s.completeInTx(ctx, tx, record, input.ReceivedQty, input.Batch, input.ActorID, "")
		if err != nil {
			return err
		}
		result.Record = record
		result.Batch = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) Reconcile(ctx context.Context, input ReconcileInput) (*Result, error) {
	if input.AcquisitionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "acquisition id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if strings.TrimSpace(input.ResolutionNote) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolution note required")
	}
	if input.AcceptedQty.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "accepted quantity cannot be negative")
	}
	if input.AcceptedQty.IsPositive() {
		if err := s.validateBatchSpec(input.Batch); err != nil {
			return nil, err
		}
	}

	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.Find(ctx, input.AcquisitionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "acquisition record not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load acquisition record")
		}
		if record.Status != enums.AcquisitionStatusDiscrepancy {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only discrepancy records can be reconciled")
		}
		if input.AcceptedQty.GreaterThan(record.ReceivedQty) {
			return pkgerrors.New(pkgerrors.CodeValidation, "accepted quantity cannot exceed received quantity")
		}

		// Full rejection closes the record without stock entering the vault.
		if input.AcceptedQty.IsZero() {
			if err := repo.Update(ctx, record.ID, map[string]any{
				"status":          enums.AcquisitionStatusCompleted,
				"accepted_qty":    input.AcceptedQty,
				"resolution_note": input.ResolutionNote,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close rejected record")
			}
			record.Status = enums.AcquisitionStatusCompleted
			record.AcceptedQty = &input.AcceptedQty
			record.ResolutionNote = &input.ResolutionNote

			event := outbox.DomainEvent{
				EventType:     enums.OutboxEventAcquisitionCompleted,
				AggregateType: enums.OutboxAggregateAcquisition,
				AggregateID:   record.ID,
				Version:       1,
				Actor:         &outbox.ActorRef{ActorID: input.ActorID},
				Data: CompletedEvent{
					AcquisitionID: record.ID,
					FormNumber:    record.FormNumber,
					AcceptedQty:   input.AcceptedQty,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue audit event")
			}
			result.Record = record
			return nil
		}

		batch, err := s.completeInTx(ctx, tx, record, input.AcceptedQty, input.Batch, input.ActorID, input.ResolutionNote)
		if err != nil {
			return err
		}
		result.Record = record
		result.Batch = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) validateRecord(input RecordInput) error {
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if strings.TrimSpace(input.FormNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "form number required")
	}
	if strings.TrimSpace(input.SupplierName) == "" || strings.TrimSpace(input.RegistrantName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier and registrant names required")
	}
	if err := ValidateDEANumber(input.SupplierDEANumber); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "supplier DEA number")
	}
	if err := ValidateDEANumber(input.RegistrantDEANumber); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "registrant DEA number")
	}
	if input.ExecutionDate.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "execution date required")
	}
	if !input.OrderedQty.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "ordered quantity must be positive")
	}
	if input.ReceivedQty.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "received quantity cannot be negative")
	}
	return s.validateBatchSpec(input.Batch)
}

func (s *service) validateBatchSpec(spec BatchSpec) error {
	if strings.TrimSpace(spec.Substance) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "substance required")
	}
	if strings.TrimSpace(spec.LotNumber) == "" || strings.TrimSpace(spec.SerialNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "lot and serial numbers required")
	}
	if strings.TrimSpace(spec.Manufacturer) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "manufacturer required")
	}
	if !spec.ConcentrationMg.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "concentration must be positive")
	}
	if !spec.Unit.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid unit %q", spec.Unit))
	}
	return nil
}

func (s *service) completeInTx(ctx context.Context, tx *gorm.DB, record *models.AcquisitionRecord, acceptedQty decimal.Decimal, spec BatchSpec, actorID uuid.UUID, note string) (*models.Batch, error) {
	repo := s.repo.WithTx(tx)

	schedule := spec.Schedule
	if schedule == "" {
		schedule = "II"
	}
	batch := &models.Batch{
		Substance:       spec.Substance,
		Schedule:        schedule,
		LotNumber:       spec.LotNumber,
		SerialNumber:    spec.SerialNumber,
		Manufacturer:    spec.Manufacturer,
		ConcentrationMg: spec.ConcentrationMg,
		Unit:            spec.Unit,
		StartingVolume:  acceptedQty,
		CurrentQuantity: decimal.Zero,
		ExpirationDate:  spec.ExpirationDate,
		StorageLocation: spec.StorageLocation,
		Status:          enums.BatchStatusSealed,
		AcquisitionID:   &record.ID,
		Version:         1,
	}
	if err := repo.CreateBatch(ctx, batch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create batch")
	}

	// The seed entry moves the cached quantity from zero to the accepted
	// amount so the ledger remains the sole source of stock movement.
	if _, err := s.ledger.RecordInTx(ctx, tx, ledger.AppendEntryInput{
		BatchID:       batch.ID,
		Type:          enums.LedgerEntryTypeAcquisition,
		Delta:         acceptedQty,
		ActorID:       actorID,
		Reason:        fmt.Sprintf("receipt of form %s", record.FormNumber),
		AcquisitionID: &record.ID,
	}); err != nil {
		return nil, err
	}
	batch.CurrentQuantity = acceptedQty
	batch.Version = 2

	updates := map[string]any{
		"status":       enums.AcquisitionStatusCompleted,
		"accepted_qty": acceptedQty,
		"batch_id":     batch.ID,
	}
	if note != "" {
		updates["resolution_note"] = note
	}
	if err := repo.Update(ctx, record.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete acquisition record")
	}
	record.Status = enums.AcquisitionStatusCompleted
	record.AcceptedQty = &acceptedQty
	record.BatchID = &batch.ID
	if note != "" {
		record.ResolutionNote = &note
	}

	event := outbox.DomainEvent{
		EventType:     enums.OutboxEventAcquisitionCompleted,
		AggregateType: enums.OutboxAggregateAcquisition,
		AggregateID:   record.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{ActorID: actorID},
		Data: CompletedEvent{
			AcquisitionID: record.ID,
			FormNumber:    record.FormNumber,
			AcceptedQty:   acceptedQty,
			BatchID:       &batch.ID,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue audit event")
	}
	return batch, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.AcquisitionRecord, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "acquisition id required")
	}
	record, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "acquisition record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load acquisition record")
	}
	return record, nil
}

func (s *service) List(ctx context.Context, input ListInput) ([]models.AcquisitionRecord, string, error) {
	filter := ListFilter{From: input.From, To: input.To}
	if input.Status != "" {
		status, err := enums.ParseAcquisitionStatus(input.Status)
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Status = status
	}

	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Pagination.Limit)
	records, err := s.repo.List(ctx, filter, limit+1, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list acquisition records")
	}

	next := ""
	if len(records) > limit {
		records = records[:limit]
		last := records[len(records)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return records, next, nil
}
