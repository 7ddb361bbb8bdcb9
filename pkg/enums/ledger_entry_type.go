package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type_enum enum in Postgres.
type LedgerEntryType string

const (
	LedgerEntryTypeAcquisition LedgerEntryType = "acquisition"
	LedgerEntryTypeDispense    LedgerEntryType = "dispense"
	LedgerEntryTypeWaste       LedgerEntryType = "waste"
	LedgerEntryTypeDisposal    LedgerEntryType = "disposal"
	LedgerEntryTypeAdjustment  LedgerEntryType = "adjustment"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeAcquisition,
	LedgerEntryTypeDispense,
	LedgerEntryTypeWaste,
	LedgerEntryTypeDisposal,
	LedgerEntryTypeAdjustment,
}

// IsValid reports whether the value matches the canonical entry type enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// RequiresWitness reports whether entries of this type need a witness on a
// Schedule II substance.
func (t LedgerEntryType) RequiresWitness() bool {
	return t == LedgerEntryTypeWaste || t == LedgerEntryTypeDisposal
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
