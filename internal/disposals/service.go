package disposals

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
	"github.com/clearpath-clinical/inventory-backend/pkg/policy"
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

// Service runs the witnessed destruction workflow: draft, witness, finalize.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.DisposalRecord, error)
	AddWitness(ctx context.Context, input WitnessInput) (*models.DisposalRecord, error)
	Finalize(ctx context.Context, input FinalizeInput) (*models.DisposalRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DisposalRecord, error)
	List(ctx context.Context, input ListInput) ([]models.DisposalRecord, string, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxEmitter
	ledger ledgerRecorder
	rules  policy.Rules
}

// CreateInput opens a draft disposal. FullDisposal destroys whatever remains
// in the container at finalization time; Quantity is ignored for it.
type CreateInput struct {
	BatchID      uuid.UUID
	Quantity     decimal.Decimal
	Reason       string
	FullDisposal bool
	ActorID      uuid.UUID
}

// WitnessInput attests one identity to a draft disposal.
type WitnessInput struct {
	DisposalID uuid.UUID
	WitnessID  uuid.UUID
	ActorID    uuid.UUID
}

// FinalizeInput completes the destruction and writes the ledger entry.
type FinalizeInput struct {
	DisposalID    uuid.UUID
	FormReference *string
	ActorID       uuid.UUID
}

// ListInput pages the disposal register.
type ListInput struct {
	BatchID    uuid.UUID
	Status     string
	Pagination pagination.Params
}

// FinalizedEvent is the audit payload queued when a disposal completes.
type FinalizedEvent struct {
	DisposalID    uuid.UUID       `json:"disposal_id"`
	BatchID       uuid.UUID       `json:"batch_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	FullDisposal  bool            `json:"full_disposal"`
	WitnessCount  int             `json:"witness_count"`
	FormReference *string         `json:"form_reference,omitempty"`
}

// NewService wires the disposals service.
func NewService(repo Repository, tx txRunner, ob outboxEmitter, lr ledgerRecorder, rules policy.Rules) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("disposals repository required")
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
	return &service{repo: repo, tx: tx, outbox: ob, ledger: lr, rules: rules}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.DisposalRecord, error) {
	if input.BatchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "disposal reason required")
	}
	if !input.FullDisposal && !input.Quantity.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	batch, err := s.repo.FindBatch(ctx, input.BatchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
	}
	if batch.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "batch is already disposed")
	}

	quantity := input.Quantity
	if input.FullDisposal {
		quantity = batch.CurrentQuantity
		if !quantity.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "batch has no remaining stock to destroy")
		}
	} else if quantity.GreaterThan(batch.CurrentQuantity) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "disposal quantity exceeds remaining stock").
			WithDetails(map[string]string{
				"current_quantity": batch.CurrentQuantity.String(),
				"requested":        quantity.String(),
			})
	}

	record := &models.DisposalRecord{
		BatchID:                  batch.ID,
		Quantity:                 quantity,
		Reason:                   input.Reason,
		FullDisposal:             input.FullDisposal,
		RequiresIncinerationForm: requiresIncinerationForm(input.FullDisposal, quantity, s.rules),
		Status:                   enums.DisposalStatusDraft,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create disposal record")
	}
	return record, nil
}

func (s *service) AddWitness(ctx context.Context, input WitnessInput) (*models.DisposalRecord, error) {
	if input.DisposalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "disposal id required")
	}
	if input.WitnessID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "witness id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var updated *models.DisposalRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.Find(ctx, input.DisposalID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "disposal record not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load disposal record")
		}
		if record.Status == enums.DisposalStatusFinalized {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "disposal is already finalized")
		}

		witness := &models.DisposalWitness{
			DisposalID: record.ID,
			WitnessID:  input.WitnessID,
		}
		if err := repo.AddWitness(ctx, witness); err != nil {
			if pkgdb.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "witness already attested to this disposal")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add witness")
		}
		record.Witnesses = append(record.Witnesses, *witness)

		// The record reads as witnessed once the policy minimum is met.
		if record.Status == enums.DisposalStatusDraft && len(record.Witnesses) >= s.witnessMin(record) {
			if err := repo.Update(ctx, record.ID, map[string]any{
				"status": enums.DisposalStatusWitnessed,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark disposal witnessed")
			}
			record.Status = enums.DisposalStatusWitnessed
		}

		updated = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Finalize(ctx context.Context, input FinalizeInput) (*models.DisposalRecord, error) {
	if input.DisposalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "disposal id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var finalized *models.DisposalRecord
	attempts := s.retryAttempts()
	for attempt := 0; attempt < attempts; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			record, err := repo.Find(ctx, input.DisposalID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "disposal record not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load disposal record")
			}
			if record.Status == enums.DisposalStatusFinalized {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "disposal is already finalized")
			}

			required := s.witnessMin(record)
			if len(record.Witnesses) < required {
				return pkgerrors.New(pkgerrors.CodeMissingWitness,
					fmt.Sprintf("disposal requires %d witnesses, has %d", required, len(record.Witnesses))).
					WithDetails(map[string]int{"required": required, "attested": len(record.Witnesses)})
			}
			for _, w := range record.Witnesses {
				if w.WitnessID == input.ActorID {
					return pkgerrors.New(pkgerrors.CodeValidation, "finalizing actor cannot be a witness")
				}
			}

			batch, err := repo.FindBatch(ctx, record.BatchID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
			}

			quantity := record.Quantity
			if record.FullDisposal {
				// Destroy whatever remains now, not what remained at draft.
				quantity = batch.CurrentQuantity
				if !quantity.IsPositive() {
					return pkgerrors.New(pkgerrors.CodeStateConflict, "batch has no remaining stock to destroy")
				}
			}

			requiresForm := requiresIncinerationForm(record.FullDisposal, quantity, s.rules)
			if requiresForm && (input.FormReference == nil || strings.TrimSpace(*input.FormReference) == "") {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("full disposals and destructions of %s or more require an incineration form reference", s.rules.IncinerationFormThreshold))
			}

			witnessID := record.Witnesses[0].WitnessID
			batchUpdates := map[string]any{}
			if record.FullDisposal {
				batchUpdates["status"] = enums.BatchStatusDisposed
			}

			entry, err := s.ledger.RecordInTx(ctx, tx, ledger.AppendEntryInput{
				BatchID:      record.BatchID,
				Type:         enums.LedgerEntryTypeDisposal,
				Delta:        quantity.Neg(),
				ActorID:      input.ActorID,
				WitnessID:    &witnessID,
				Reason:       record.Reason,
				DisposalID:   &record.ID,
				BatchUpdates: batchUpdates,
			})
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			updates := map[string]any{
				"status":                     enums.DisposalStatusFinalized,
				"quantity":                   quantity,
				"requires_incineration_form": requiresForm,
				"ledger_entry_id":            entry.ID,
				"finalized_at":               now,
			}
			if input.FormReference != nil {
				updates["form_reference"] = *input.FormReference
			}
			if err := repo.Update(ctx, record.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize disposal record")
			}
			record.Status = enums.DisposalStatusFinalized
			record.Quantity = quantity
			record.RequiresIncinerationForm = requiresForm
			record.LedgerEntryID = &entry.ID
			record.FinalizedAt = &now
			record.FormReference = input.FormReference

			event := outbox.DomainEvent{
				EventType:     enums.OutboxEventDisposalFinalized,
				AggregateType: enums.OutboxAggregateDisposal,
				AggregateID:   record.ID,
				Version:       1,
				Actor:         &outbox.ActorRef{ActorID: input.ActorID, WitnessID: &witnessID},
				Data: FinalizedEvent{
					DisposalID:    record.ID,
					BatchID:       record.BatchID,
					Quantity:      quantity,
					FullDisposal:  record.FullDisposal,
					WitnessCount:  len(record.Witnesses),
					FormReference: input.FormReference,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue audit event")
			}

			finalized = record
			return nil
		})
		if err == nil {
			return finalized, nil
		}
		if errors.Is(err, ledger.ErrStaleBatch) {
			continue
		}
		return nil, err
	}

	return nil, pkgerrors.New(pkgerrors.CodeConflict, "batch was modified concurrently, retry the request")
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.DisposalRecord, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "disposal id required")
	}
	record, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "disposal record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load disposal record")
	}
	return record, nil
}

func (s *service) List(ctx context.Context, input ListInput) ([]models.DisposalRecord, string, error) {
	filter := ListFilter{BatchID: input.BatchID}
	if input.Status != "" {
		status, err := enums.ParseDisposalStatus(input.Status)
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
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list disposal records")
	}

	next := ""
	if len(records) > limit {
		records = records[:limit]
		last := records[len(records)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return records, next, nil
}

func (s *service) witnessMin(record *models.DisposalRecord) int {
	if record.FullDisposal {
		if s.rules.FullDisposalWitnessMin > 0 {
			return s.rules.FullDisposalWitnessMin
		}
		return policy.Default().FullDisposalWitnessMin
	}
	if s.rules.WasteWitnessMin > 0 {
		return s.rules.WasteWitnessMin
	}
	return policy.Default().WasteWitnessMin
}

// Full disposals always need the incineration form, regardless of how
// little stock remains; partial destructions only past the threshold.
func requiresIncinerationForm(fullDisposal bool, quantity decimal.Decimal, rules policy.Rules) bool {
	return fullDisposal || quantity.GreaterThanOrEqual(rules.IncinerationFormThreshold)
}

func (s *service) retryAttempts() int {
	if s.rules.MutationRetryAttempts > 0 {
		return s.rules.MutationRetryAttempts
	}
	return policy.Default().MutationRetryAttempts
}
