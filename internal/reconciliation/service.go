package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgdb "github.com/clearpath-clinical/inventory-backend/pkg/db"
	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/metrics"
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

type balanceReader interface {
	BalanceAtInTx(ctx context.Context, tx *gorm.DB, batchID *uuid.UUID, at time.Time) (decimal.Decimal, error)
}

// Service records regulatory physical counts against the ledger aggregate.
type Service interface {
	RecordSnapshot(ctx context.Context, input SnapshotInput) (*models.InventorySnapshot, error)
	List(ctx context.Context, params pagination.Params) ([]models.InventorySnapshot, string, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxEmitter
	ledger  balanceReader
	rules   policy.Rules
	metrics *metrics.LedgerMetrics
}

// SnapshotInput captures one physical count.
type SnapshotInput struct {
	Type          enums.SnapshotType
	PhysicalCount decimal.Decimal
	CountedBy     uuid.UUID
	VerifiedBy    *uuid.UUID
	TakenAt       time.Time
	Notes         string
}

// SnapshotRecordedEvent is the audit payload queued when a count commits.
type SnapshotRecordedEvent struct {
	SnapshotID      uuid.UUID          `json:"snapshot_id"`
	Type            enums.SnapshotType `json:"type"`
	OpeningCount    decimal.Decimal    `json:"opening_count"`
	PhysicalCount   decimal.Decimal    `json:"physical_count"`
	Variance        decimal.Decimal    `json:"variance"`
	VariancePercent decimal.Decimal    `json:"variance_percent"`
	SpacingWarning  *string            `json:"spacing_warning,omitempty"`
}

// NewService wires the reconciliation service.
func NewService(repo Repository, tx txRunner, ob outboxEmitter, ledger balanceReader, rules policy.Rules, m *metrics.LedgerMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("balance reader required")
	}
	return &service{repo: repo, tx: tx, outbox: ob, ledger: ledger, rules: rules, metrics: m}, nil
}

func (s *service) RecordSnapshot(ctx context.Context, input SnapshotInput) (*models.InventorySnapshot, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid snapshot type %q", input.Type))
	}
	if input.CountedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "counting clinician identity missing")
	}
	if input.PhysicalCount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "physical count cannot be negative")
	}
	if input.VerifiedBy != nil && *input.VerifiedBy == input.CountedBy {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verifier must differ from the counting clinician")
	}
	takenAt := input.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}
	if takenAt.After(time.Now().UTC().Add(time.Minute)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "snapshot cannot be taken in the future")
	}

	var snapshot *models.InventorySnapshot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if input.Type == enums.SnapshotTypeInitial {
			exists, err := repo.HasInitial(ctx)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check initial snapshot")
			}
			if exists {
				return pkgerrors.New(pkgerrors.CodeConflict, "an initial inventory snapshot already exists")
			}
		}

		// The opening count and the snapshot insert must observe the same
		// ledger state, so the sum runs on the snapshot's transaction.
		opening, err := s.ledger.BalanceAtInTx(ctx, tx, nil, takenAt)
		if err != nil {
			return err
		}

		variance := input.PhysicalCount.Sub(opening)
		variancePercent := decimal.Zero
		if !opening.IsZero() {
			variancePercent = variance.Div(opening).Mul(decimal.NewFromInt(100)).Round(4)
		}

		warning, err := s.spacingWarning(ctx, repo, input.Type, takenAt)
		if err != nil {
			return err
		}

		snapshot = &models.InventorySnapshot{
			Type:            input.Type,
			TakenAt:         takenAt,
			CountedBy:       input.CountedBy,
			VerifiedBy:      input.VerifiedBy,
			OpeningCount:    opening,
			PhysicalCount:   input.PhysicalCount,
			Variance:        variance,
			VariancePercent: variancePercent,
			Notes:           input.Notes,
			SpacingWarning:  warning,
		}
		if err := repo.Create(ctx, snapshot); err != nil {
			if pkgdb.IsUniqueViolation(err, "ux_inventory_snapshots_single_initial") {
				return pkgerrors.New(pkgerrors.CodeConflict, "an initial inventory snapshot already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create snapshot")
		}

		event := outbox.DomainEvent{
			EventType:     enums.OutboxEventSnapshotRecorded,
			AggregateType: enums.OutboxAggregateSnapshot,
			AggregateID:   snapshot.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{ActorID: input.CountedBy},
			Data: SnapshotRecordedEvent{
				SnapshotID:      snapshot.ID,
				Type:            snapshot.Type,
				OpeningCount:    opening,
				PhysicalCount:   input.PhysicalCount,
				Variance:        variance,
				VariancePercent: variancePercent,
				SpacingWarning:  warning,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue audit event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	percent, _ := snapshot.VariancePercent.Float64()
	s.metrics.SetSnapshotVariance(percent)
	return snapshot, nil
}

// spacingWarning reports when a biennial count lands short of the required
// interval since the previous regulatory count, or when there is no prior
// count to anchor the interval at all. It never blocks the record; an
// off-schedule count is still a count the inspector wants on file.
func (s *service) spacingWarning(ctx context.Context, repo Repository, snapType enums.SnapshotType, takenAt time.Time) (*string, error) {
	if snapType != enums.SnapshotTypeBiennial {
		return nil, nil
	}

	previous, err := repo.LatestOfTypes(ctx, []enums.SnapshotType{
		enums.SnapshotTypeInitial,
		enums.SnapshotTypeBiennial,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up previous regulatory count")
	}

	interval := s.rules.BiennialIntervalDays
	if interval <= 0 {
		interval = policy.Default().BiennialIntervalDays
	}

	if previous == nil {
		msg := "no prior initial or biennial count on record to anchor the spacing interval"
		return &msg, nil
	}

	gap := takenAt.Sub(previous.TakenAt)
	minGap := time.Duration(interval) * 24 * time.Hour
	if gap >= minGap {
		return nil, nil
	}

	msg := fmt.Sprintf("count taken %d days after the previous one, short of the %d-day interval",
		int(gap.Hours()/24), interval)
	return &msg, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) ([]models.InventorySnapshot, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	snapshots, err := s.repo.List(ctx, limit+1, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list snapshots")
	}

	next := ""
	if len(snapshots) > limit {
		snapshots = snapshots[:limit]
		last := snapshots[len(snapshots)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return snapshots, next, nil
}
