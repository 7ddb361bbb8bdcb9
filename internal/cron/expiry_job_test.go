package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

type fakeExpirySweeper struct {
	expired int
	err     error
	lastNow time.Time
	called  int
}

func (f *fakeExpirySweeper) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	f.called++
	f.lastNow = now
	if f.err != nil {
		return 0, f.err
	}
	return f.expired, nil
}

func TestBatchExpiryJobSweepsAtCurrentTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	sweeper := &fakeExpirySweeper{expired: 3}
	jobIface, err := NewBatchExpiryJob(BatchExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Batches: sweeper,
	})
	if err != nil {
		t.Fatalf("NewBatchExpiryJob: %v", err)
	}
	job := jobIface.(*batchExpiryJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.called != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.called)
	}
	if !sweeper.lastNow.Equal(now) {
		t.Fatalf("expected sweep at %s, got %s", now, sweeper.lastNow)
	}
}

func TestBatchExpiryJobPropagatesError(t *testing.T) {
	sweeper := &fakeExpirySweeper{err: errors.New("boom")}
	job, err := NewBatchExpiryJob(BatchExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Batches: sweeper,
	})
	if err != nil {
		t.Fatalf("NewBatchExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
