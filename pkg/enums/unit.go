package enums

import "fmt"

// Unit is the measurement unit for batch quantities.
type Unit string

const (
	UnitMilliliter Unit = "mL"
	UnitMilligram  Unit = "mg"
)

var validUnits = []Unit{
	UnitMilliliter,
	UnitMilligram,
}

// IsValid reports whether the value matches a supported unit.
func (u Unit) IsValid() bool {
	for _, candidate := range validUnits {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUnit converts raw input into Unit.
func ParseUnit(value string) (Unit, error) {
	for _, candidate := range validUnits {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid unit %q", value)
}
