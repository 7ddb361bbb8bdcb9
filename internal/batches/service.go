package batches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
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

// Service exposes batch reads, state transitions, and the expiry sweep.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*View, error)
	List(ctx context.Context, input ListInput) ([]View, string, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*View, error)
	// MarkExpired transitions every batch past its expiration date and
	// returns how many moved. Scheduled, but also callable on demand.
	MarkExpired(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxEmitter
	rules  policy.Rules
	logg   *logger.Logger
}

// View is a batch plus its display status. DisplayStatus folds the derived
// low-stock state over the persisted one.
type View struct {
	models.Batch
	DisplayStatus enums.BatchStatus `json:"display_status"`
}

// ListInput carries batch listing filters and pagination.
type ListInput struct {
	Status     string
	Substance  string
	Pagination pagination.Params
}

// UpdateStatusInput captures a manual batch state transition.
type UpdateStatusInput struct {
	BatchID uuid.UUID
	Status  enums.BatchStatus
	ActorID uuid.UUID
	Reason  string
}

// StatusChangedEvent is the audit payload for a batch state transition.
type StatusChangedEvent struct {
	BatchID uuid.UUID         `json:"batch_id"`
	From    enums.BatchStatus `json:"from"`
	To      enums.BatchStatus `json:"to"`
	Reason  string            `json:"reason,omitempty"`
}

// NewService wires the batch service.
func NewService(repo Repository, tx txRunner, ob outboxEmitter, rules policy.Rules, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("batch repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, outbox: ob, rules: rules, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}

	batch, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
	}
	view := s.toView(*batch)
	return &view, nil
}

func (s *service) List(ctx context.Context, input ListInput) ([]View, string, error) {
	filter := ListFilter{Substance: input.Substance}

	if input.Status != "" {
		status, err := enums.ParseBatchStatus(input.Status)
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		if status == enums.BatchStatusLow {
			filter.LowOnly = true
			filter.LowThreshold = s.rules.LowStockThreshold
		} else {
			filter.Status = status
		}
	}

	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Pagination.Limit)
	rows, err := s.repo.List(ctx, filter, limit+1, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list batches")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	views := make([]View, 0, len(rows))
	for _, row := range rows {
		views = append(views, s.toView(row))
	}
	return views, next, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*View, error) {
	if input.BatchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid batch status %q", input.Status))
	}
	if input.Status == enums.BatchStatusDisposed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batches reach disposed through disposal finalization")
	}

	var updated *models.Batch
	attempts := s.retryAttempts()
	for attempt := 0; attempt < attempts; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			batch, err := repo.Find(ctx, input.BatchID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
			}
			if batch.Status == input.Status {
				updated = batch
				return nil
			}
			if !canTransition(batch.Status, input.Status) {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("cannot move batch from %s to %s", batch.Status, input.Status))
			}

			updates := map[string]any{"status": input.Status}
			if batch.Status == enums.BatchStatusSealed && input.Status == enums.BatchStatusActive {
				updates["opened_at"] = time.Now().UTC()
			}
			written, err := repo.UpdateGuarded(ctx, batch.ID, batch.Version, updates)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update batch status")
			}
			if !written {
				return errStale
			}

			event := outbox.DomainEvent{
				EventType:     enums.OutboxEventBatchStatusChanged,
				AggregateType: enums.OutboxAggregateBatch,
				AggregateID:   batch.ID,
				Version:       1,
				Actor:         &outbox.ActorRef{ActorID: input.ActorID},
				Data: StatusChangedEvent{
					BatchID: batch.ID,
					From:    batch.Status,
					To:      input.Status,
					Reason:  input.Reason,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue audit event")
			}

			batch.Status = input.Status
			batch.Version++
			updated = batch
			return nil
		})
		if err == nil {
			view := s.toView(*updated)
			return &view, nil
		}
		if errors.Is(err, errStale) {
			continue
		}
		return nil, err
	}

	return nil, pkgerrors.New(pkgerrors.CodeConflict, "batch was modified concurrently, retry the request")
}

func (s *service) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	moved := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		candidates, err := repo.ListExpirationCandidates(ctx, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expiration candidates")
		}

		for _, batch := range candidates {
			written, err := repo.UpdateGuarded(ctx, batch.ID, batch.Version, map[string]any{
				"status": enums.BatchStatusExpired,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire batch")
			}
			if !written {
				// Another writer touched the row; the next sweep catches it.
				continue
			}

			event := outbox.DomainEvent{
				EventType:     enums.OutboxEventBatchStatusChanged,
				AggregateType: enums.OutboxAggregateBatch,
				AggregateID:   batch.ID,
				Version:       1,
				Data: StatusChangedEvent{
					BatchID: batch.ID,
					From:    batch.Status,
					To:      enums.BatchStatusExpired,
					Reason:  "expiration date passed",
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue audit event")
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if moved > 0 && s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"count": moved}), "expiry sweep moved batches")
	}
	return moved, nil
}

func (s *service) toView(batch models.Batch) View {
	display := batch.Status
	if batch.Status == enums.BatchStatusActive && batch.CurrentQuantity.LessThan(s.rules.LowStockThreshold) {
		display = enums.BatchStatusLow
	}
	return View{Batch: batch, DisplayStatus: display}
}

func (s *service) retryAttempts() int {
	if s.rules.MutationRetryAttempts > 0 {
		return s.rules.MutationRetryAttempts
	}
	return policy.Default().MutationRetryAttempts
}

var errStale = errors.New("batch version changed during transaction")

func canTransition(from, to enums.BatchStatus) bool {
	switch from {
	case enums.BatchStatusSealed:
		return to == enums.BatchStatusActive || to == enums.BatchStatusQuarantine || to == enums.BatchStatusExpired
	case enums.BatchStatusActive:
		return to == enums.BatchStatusQuarantine || to == enums.BatchStatusExpired
	case enums.BatchStatusQuarantine:
		return to == enums.BatchStatusActive || to == enums.BatchStatusExpired
	default:
		// expired and disposed are sticky on this surface
		return false
	}
}
