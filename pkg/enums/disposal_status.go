package enums

import "fmt"

// DisposalStatus maps to the disposal_status_enum enum in Postgres.
// Disposals move draft -> witnessed -> finalized with no skips and no
// reopening once finalized.
type DisposalStatus string

const (
	DisposalStatusDraft     DisposalStatus = "draft"
	DisposalStatusWitnessed DisposalStatus = "witnessed"
	DisposalStatusFinalized DisposalStatus = "finalized"
)

var validDisposalStatuses = []DisposalStatus{
	DisposalStatusDraft,
	DisposalStatusWitnessed,
	DisposalStatusFinalized,
}

// IsValid reports whether the value matches the canonical enum.
func (s DisposalStatus) IsValid() bool {
	for _, candidate := range validDisposalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the linear state machine allows the move.
func (s DisposalStatus) CanTransitionTo(next DisposalStatus) bool {
	switch s {
	case DisposalStatusDraft:
		return next == DisposalStatusWitnessed
	case DisposalStatusWitnessed:
		return next == DisposalStatusFinalized
	default:
		return false
	}
}

// ParseDisposalStatus converts raw input into DisposalStatus.
func ParseDisposalStatus(value string) (DisposalStatus, error) {
	for _, candidate := range validDisposalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid disposal status %q", value)
}
