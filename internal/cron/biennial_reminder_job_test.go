package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
	"github.com/clearpath-clinical/inventory-backend/pkg/policy"
)

type fakeSnapshotReader struct {
	latest *models.InventorySnapshot
	err    error
	types  []enums.SnapshotType
}

func (f *fakeSnapshotReader) LatestSnapshot(ctx context.Context, types []enums.SnapshotType) (*models.InventorySnapshot, error) {
	f.types = types
	return f.latest, f.err
}

func TestBiennialReminderJobOnlyConsidersFullCounts(t *testing.T) {
	reader := &fakeSnapshotReader{latest: &models.InventorySnapshot{
		TakenAt: time.Now().UTC().Add(-24 * time.Hour),
	}}
	job := newBiennialReminderJob(t, reader)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reader.types) != 2 {
		t.Fatalf("expected 2 snapshot types, got %v", reader.types)
	}
	for _, st := range reader.types {
		if st == enums.SnapshotTypeShift {
			t.Fatal("shift counts must not satisfy the biennial requirement")
		}
	}
}

func TestBiennialReminderJobHandlesMissingInitial(t *testing.T) {
	job := newBiennialReminderJob(t, &fakeSnapshotReader{})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestBiennialReminderJobPropagatesError(t *testing.T) {
	job := newBiennialReminderJob(t, &fakeSnapshotReader{err: errors.New("boom")})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newBiennialReminderJob(t *testing.T, reader *fakeSnapshotReader) Job {
	t.Helper()
	job, err := NewBiennialReminderJob(BiennialReminderJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Snapshots: reader,
		Rules:     policy.Default(),
	})
	if err != nil {
		t.Fatalf("NewBiennialReminderJob: %v", err)
	}
	return job
}
