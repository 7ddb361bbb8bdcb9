package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
	"github.com/clearpath-clinical/inventory-backend/pkg/policy"
)

type snapshotReader interface {
	LatestSnapshot(ctx context.Context, types []enums.SnapshotType) (*models.InventorySnapshot, error)
}

// BiennialReminderJobParams configure the overdue-count check.
type BiennialReminderJobParams struct {
	Logger    *logger.Logger
	Snapshots snapshotReader
	Rules     policy.Rules
}

// NewBiennialReminderJob builds the job that warns when the registrant is
// overdue for a full physical count. 21 CFR 1304.11 requires one at least
// every two years.
func NewBiennialReminderJob(params BiennialReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot reader required")
	}
	return &biennialReminderJob{
		logg:  params.Logger,
		repo:  params.Snapshots,
		rules: params.Rules,
		now:   time.Now,
	}, nil
}

type biennialReminderJob struct {
	logg  *logger.Logger
	repo  snapshotReader
	rules policy.Rules
	now   func() time.Time
}

func (j *biennialReminderJob) Name() string { return "biennial-reminder" }

func (j *biennialReminderJob) Run(ctx context.Context) error {
	latest, err := j.repo.LatestSnapshot(ctx, []enums.SnapshotType{
		enums.SnapshotTypeInitial,
		enums.SnapshotTypeBiennial,
	})
	if err != nil {
		return fmt.Errorf("biennial reminder: %w", err)
	}
	if latest == nil {
		j.logg.Warn(ctx, "no initial inventory on record; a full physical count is required")
		return nil
	}

	elapsed := int(j.now().UTC().Sub(latest.TakenAt).Hours() / 24)
	deadline := j.rules.BiennialIntervalDays
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"last_full_count": latest.TakenAt,
		"days_elapsed":    elapsed,
		"interval_days":   deadline,
	})
	if elapsed >= deadline {
		j.logg.Warn(logCtx, "biennial inventory overdue")
		return nil
	}
	j.logg.Info(logCtx, "biennial inventory within interval")
	return nil
}
