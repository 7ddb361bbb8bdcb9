package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	schema := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  terminal INTEGER NOT NULL DEFAULT 0
);`
	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create outbox table: %v", err)
	}
	return db
}

func TestEmitWritesEnvelope(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	batchID := uuid.New()
	actor := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.OutboxEventLedgerEntryRecorded,
			AggregateType: enums.OutboxAggregateBatch,
			AggregateID:   batchID,
			Actor:         &ActorRef{ActorID: actor},
			Data:          map[string]string{"delta": "-50"},
			Version:       1,
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var row models.OutboxEvent
	if err := db.First(&row, "aggregate_id = ?", batchID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if row.EventType != enums.OutboxEventLedgerEntryRecorded {
		t.Fatalf("unexpected event type %s", row.EventType)
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.EventID == "" || envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope not fully populated: %+v", envelope)
	}
	if envelope.Actor == nil || envelope.Actor.ActorID != actor {
		t.Fatalf("actor not carried: %+v", envelope.Actor)
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	t.Parallel()

	svc := NewService(NewRepository(newTestDB(t)), nil)
	if err := svc.Emit(context.Background(), nil, DomainEvent{
		EventType:     enums.OutboxEventSnapshotRecorded,
		AggregateType: enums.OutboxAggregateSnapshot,
		AggregateID:   uuid.New(),
	}); err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.OutboxEventType("bogus"),
			AggregateType: enums.OutboxAggregateBatch,
			AggregateID:   uuid.New(),
		})
	})
	if err == nil {
		t.Fatal("expected invalid event type to be rejected")
	}
}

func TestFetchUnpublishedSkipsTerminalAndExhausted(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)

	fresh := models.OutboxEvent{ID: uuid.New(), EventType: enums.OutboxEventLedgerEntryRecorded, AggregateType: enums.OutboxAggregateBatch, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	terminal := models.OutboxEvent{ID: uuid.New(), EventType: enums.OutboxEventLedgerEntryRecorded, AggregateType: enums.OutboxAggregateBatch, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), Terminal: true}
	exhausted := models.OutboxEvent{ID: uuid.New(), EventType: enums.OutboxEventLedgerEntryRecorded, AggregateType: enums.OutboxAggregateBatch, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 10}
	for _, row := range []models.OutboxEvent{fresh, terminal, exhausted} {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != fresh.ID {
		t.Fatalf("expected only the fresh event, got %d rows", len(rows))
	}
}
