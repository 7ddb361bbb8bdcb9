package enums

import "fmt"

// OutboxEventType identifies the audit event emitted through the outbox.
type OutboxEventType string

const (
	OutboxEventLedgerEntryRecorded  OutboxEventType = "ledger.entry.recorded"
	OutboxEventAcquisitionCompleted OutboxEventType = "acquisition.completed"
	OutboxEventDisposalFinalized    OutboxEventType = "disposal.finalized"
	OutboxEventSnapshotRecorded     OutboxEventType = "snapshot.recorded"
	OutboxEventBatchStatusChanged   OutboxEventType = "batch.status.changed"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventLedgerEntryRecorded,
	OutboxEventAcquisitionCompleted,
	OutboxEventDisposalFinalized,
	OutboxEventSnapshotRecorded,
	OutboxEventBatchStatusChanged,
}

// IsValid reports whether the value matches a known audit event type.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// OutboxAggregateType names the aggregate an audit event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateBatch       OutboxAggregateType = "batch"
	OutboxAggregateAcquisition OutboxAggregateType = "acquisition"
	OutboxAggregateDisposal    OutboxAggregateType = "disposal"
	OutboxAggregateSnapshot    OutboxAggregateType = "snapshot"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	OutboxAggregateBatch,
	OutboxAggregateAcquisition,
	OutboxAggregateDisposal,
	OutboxAggregateSnapshot,
}

// IsValid reports whether the value matches a known aggregate type.
func (t OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
