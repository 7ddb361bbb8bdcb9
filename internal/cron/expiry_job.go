package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

type expirySweeper interface {
	MarkExpired(ctx context.Context, now time.Time) (int, error)
}

// BatchExpiryJobParams configure the nightly expiry sweep.
type BatchExpiryJobParams struct {
	Logger  *logger.Logger
	Batches expirySweeper
}

// NewBatchExpiryJob builds the job that transitions batches past their
// expiration date. Expired stock stays on hand until disposal; the sweep
// only flips status so dispensing is blocked.
func NewBatchExpiryJob(params BatchExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Batches == nil {
		return nil, fmt.Errorf("batch service required")
	}
	return &batchExpiryJob{
		logg:    params.Logger,
		batches: params.Batches,
		now:     time.Now,
	}, nil
}

type batchExpiryJob struct {
	logg    *logger.Logger
	batches expirySweeper
	now     func() time.Time
}

func (j *batchExpiryJob) Name() string { return "batch-expiry" }

func (j *batchExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.batches.MarkExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("batch expiry sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":           now,
		"batches_expired": expired,
	})
	j.logg.Info(logCtx, "batch expiry sweep complete")
	return nil
}
