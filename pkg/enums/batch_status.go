package enums

import "fmt"

// BatchStatus maps to the batch_status_enum enum in Postgres.
type BatchStatus string

const (
	BatchStatusSealed     BatchStatus = "sealed"
	BatchStatusActive     BatchStatus = "active"
	BatchStatusExpired    BatchStatus = "expired"
	BatchStatusQuarantine BatchStatus = "quarantine"
	BatchStatusDisposed   BatchStatus = "disposed"

	// BatchStatusLow is a display state derived from quantity and the
	// low-stock threshold. It is never written to the batches table.
	BatchStatusLow BatchStatus = "low"
)

var validBatchStatuses = []BatchStatus{
	BatchStatusSealed,
	BatchStatusActive,
	BatchStatusExpired,
	BatchStatusQuarantine,
	BatchStatusDisposed,
}

// IsValid reports whether the value is a persistable batch status.
func (s BatchStatus) IsValid() bool {
	for _, candidate := range validBatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further quantity mutations are allowed.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusDisposed
}

// ParseBatchStatus converts raw input into BatchStatus. The derived "low"
// value is accepted for list filters only.
func ParseBatchStatus(value string) (BatchStatus, error) {
	if value == string(BatchStatusLow) {
		return BatchStatusLow, nil
	}
	for _, candidate := range validBatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid batch status %q", value)
}
