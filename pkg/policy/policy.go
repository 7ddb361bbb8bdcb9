// Package policy holds the regulatory constants the ledger enforces.
// None of these are hardcoded at call sites; they are loaded from
// configuration so a facility can tune them without a rebuild.
package policy

import "github.com/shopspring/decimal"

// Rules captures the controlled-substance handling policy for a facility.
type Rules struct {
	// FullDisposalWitnessMin is the witness count required before a
	// full-container destruction of a Schedule II substance can finalize.
	FullDisposalWitnessMin int
	// WasteWitnessMin is the witness count required for partial waste.
	WasteWitnessMin int
	// IncinerationFormThreshold is the destroyed quantity (mL) at or above
	// which an incineration form reference must accompany finalization.
	IncinerationFormThreshold decimal.Decimal
	// LowStockThreshold is the quantity (mL) below which a batch reads as
	// low. Display state only, never persisted.
	LowStockThreshold decimal.Decimal
	// VarianceAlertPercent flags compliance metrics when the latest
	// snapshot variance exceeds it.
	VarianceAlertPercent decimal.Decimal
	// BiennialIntervalDays is the maximum spacing between biennial
	// physical counts before a snapshot records a spacing warning.
	BiennialIntervalDays int
	// MutationRetryAttempts bounds the optimistic-concurrency retry loop
	// on batch mutations before a conflict error surfaces.
	MutationRetryAttempts int
}

// Default returns the rules used when configuration supplies nothing.
func Default() Rules {
	return Rules{
		FullDisposalWitnessMin:    2,
		WasteWitnessMin:           1,
		IncinerationFormThreshold: decimal.NewFromInt(100),
		LowStockThreshold:         decimal.NewFromInt(100),
		VarianceAlertPercent:      decimal.NewFromInt(1),
		BiennialIntervalDays:      730,
		MutationRetryAttempts:     3,
	}
}
