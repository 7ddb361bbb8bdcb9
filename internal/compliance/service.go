package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
	"github.com/clearpath-clinical/inventory-backend/pkg/policy"
)

// expiringSoonWindow is how far ahead the expiring-batch count looks.
const expiringSoonWindow = 30 * 24 * time.Hour

// Metrics is the point-in-time compliance picture an inspector asks for
// first. Every field is derived from committed state; computing it has no
// side effects.
type Metrics struct {
	TotalStock              decimal.Decimal             `json:"total_stock"`
	BatchCounts             map[enums.BatchStatus]int64 `json:"batch_counts"`
	ExpiredBatchCount       int64                       `json:"expired_batch_count"`
	ExpiringSoonCount       int64                       `json:"expiring_soon_count"`
	PendingAcquisitionCount int64                       `json:"pending_acquisition_count"`
	OpenDisposalCount       int64                       `json:"open_disposal_count"`
	DaysSinceLastBiennial   *int                        `json:"days_since_last_biennial"`
	VariancePercent         *decimal.Decimal            `json:"variance_percent"`
	VarianceAlert           bool                        `json:"variance_alert"`
	GeneratedAt             time.Time                   `json:"generated_at"`
}

type Service interface {
	Metrics(ctx context.Context) (*Metrics, error)
}

type service struct {
	repo  *Repository
	rules policy.Rules
	logg  *logger.Logger
}

func NewService(repo *Repository, rules policy.Rules, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("compliance repository required")
	}
	return &service{repo: repo, rules: rules, logg: logg}, nil
}

func (s *service) Metrics(ctx context.Context) (*Metrics, error) {
	now := time.Now().UTC()

	counts, err := s.repo.BatchStatusCounts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting batches")
	}
	total, err := s.repo.TotalOnHand(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summing on-hand stock")
	}
	expiringSoon, err := s.repo.CountExpiringBefore(ctx, now.Add(expiringSoonWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting expiring batches")
	}
	openAcquisitions, err := s.repo.CountOpenAcquisitions(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting open acquisitions")
	}
	openDisposals, err := s.repo.CountOpenDisposals(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting open disposals")
	}

	out := &Metrics{
		TotalStock:              total,
		BatchCounts:             counts,
		ExpiredBatchCount:       counts[enums.BatchStatusExpired],
		ExpiringSoonCount:       expiringSoon,
		PendingAcquisitionCount: openAcquisitions,
		OpenDisposalCount:       openDisposals,
		GeneratedAt:             now,
	}

	// The biennial clock starts at the initial count and resets on each
	// biennial count.
	regulatory, err := s.repo.LatestSnapshot(ctx, []enums.SnapshotType{
		enums.SnapshotTypeInitial,
		enums.SnapshotTypeBiennial,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading last regulatory count")
	}
	if regulatory != nil {
		days := int(now.Sub(regulatory.TakenAt).Hours() / 24)
		out.DaysSinceLastBiennial = &days
	}

	latest, err := s.repo.LatestSnapshot(ctx, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading latest snapshot")
	}
	if latest != nil {
		percent := latest.VariancePercent
		out.VariancePercent = &percent
		out.VarianceAlert = percent.Abs().GreaterThan(s.rules.VarianceAlertPercent)
		if out.VarianceAlert && s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"variance_percent": percent.String(),
				"snapshot_id":      latest.ID.String(),
			}), "snapshot variance above alert threshold")
		}
	}

	return out, nil
}
