package enums

import "fmt"

// AcquisitionStatus maps to the acquisition_status_enum enum in Postgres.
type AcquisitionStatus string

const (
	AcquisitionStatusPending     AcquisitionStatus = "pending"
	AcquisitionStatusCompleted   AcquisitionStatus = "completed"
	AcquisitionStatusDiscrepancy AcquisitionStatus = "discrepancy"
)

var validAcquisitionStatuses = []AcquisitionStatus{
	AcquisitionStatusPending,
	AcquisitionStatusCompleted,
	AcquisitionStatusDiscrepancy,
}

// IsValid reports whether the value matches the canonical enum.
func (s AcquisitionStatus) IsValid() bool {
	for _, candidate := range validAcquisitionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAcquisitionStatus converts raw input into AcquisitionStatus.
func ParseAcquisitionStatus(value string) (AcquisitionStatus, error) {
	for _, candidate := range validAcquisitionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid acquisition status %q", value)
}
