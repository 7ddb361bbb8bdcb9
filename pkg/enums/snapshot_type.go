package enums

import "fmt"

// SnapshotType maps to the snapshot_type_enum enum in Postgres.
type SnapshotType string

const (
	SnapshotTypeInitial  SnapshotType = "initial"
	SnapshotTypeBiennial SnapshotType = "biennial"
	SnapshotTypeShift    SnapshotType = "shift"
)

var validSnapshotTypes = []SnapshotType{
	SnapshotTypeInitial,
	SnapshotTypeBiennial,
	SnapshotTypeShift,
}

// IsValid reports whether the value matches the canonical enum.
func (t SnapshotType) IsValid() bool {
	for _, candidate := range validSnapshotTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseSnapshotType converts raw input into SnapshotType.
func ParseSnapshotType(value string) (SnapshotType, error) {
	for _, candidate := range validSnapshotTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid snapshot type %q", value)
}
