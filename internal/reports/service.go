package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
)

// Service exposes the data feeds behind regulator-facing registers. It is
// a pure projection over committed ledger and acquisition history; the
// report formats themselves live with the audit collaborator.
type Service interface {
	DispensingLog(ctx context.Context, timeRange Range, params pagination.Params) ([]DispensingEntry, string, error)
	WasteRegister(ctx context.Context, timeRange Range, params pagination.Params) ([]WasteEntry, string, error)
	AcquisitionsRegister(ctx context.Context, timeRange Range, params pagination.Params) ([]AcquisitionEntry, string, error)
}

// DispensingEntry is one administration pulled from the ledger, joined with
// the batch identity a regulator needs on the log.
type DispensingEntry struct {
	EntryID     uuid.UUID       `json:"entry_id"`
	BatchID     uuid.UUID       `json:"batch_id"`
	Substance   string          `json:"substance"`
	LotNumber   string          `json:"lot_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        enums.Unit      `json:"unit"`
	ActorID     uuid.UUID       `json:"actor_id"`
	Reason      string          `json:"reason,omitempty"`
	DispensedAt time.Time       `json:"dispensed_at"`
}

// WasteEntry is one witnessed destruction, waste or full disposal, with
// the incineration form reference when the disposal carried one.
type WasteEntry struct {
	EntryID       uuid.UUID             `json:"entry_id"`
	BatchID       uuid.UUID             `json:"batch_id"`
	Substance     string                `json:"substance"`
	LotNumber     string                `json:"lot_number"`
	Type          enums.LedgerEntryType `json:"type"`
	Quantity      decimal.Decimal       `json:"quantity"`
	Unit          enums.Unit            `json:"unit"`
	ActorID       uuid.UUID             `json:"actor_id"`
	WitnessID     *uuid.UUID            `json:"witness_id,omitempty"`
	Reason        string                `json:"reason,omitempty"`
	DisposalID    *uuid.UUID            `json:"disposal_id,omitempty"`
	FormReference *string               `json:"form_reference,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// AcquisitionEntry is one Form-222 line for the acquisitions register.
type AcquisitionEntry struct {
	RecordID            uuid.UUID               `json:"record_id"`
	FormNumber          string                  `json:"form_number"`
	SupplierName        string                  `json:"supplier_name"`
	SupplierDEANumber   string                  `json:"supplier_dea_number"`
	RegistrantName      string                  `json:"registrant_name"`
	RegistrantDEANumber string                  `json:"registrant_dea_number"`
	ExecutionDate       time.Time               `json:"execution_date"`
	OrderedQty          decimal.Decimal         `json:"ordered_qty"`
	ReceivedQty         decimal.Decimal         `json:"received_qty"`
	AcceptedQty         *decimal.Decimal        `json:"accepted_qty,omitempty"`
	Status              enums.AcquisitionStatus `json:"status"`
	BatchID             *uuid.UUID              `json:"batch_id,omitempty"`
	Substance           *string                 `json:"substance,omitempty"`
	LotNumber           *string                 `json:"lot_number,omitempty"`
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	return &service{repo: repo}, nil
}

func validateRange(timeRange Range) error {
	if !timeRange.From.IsZero() && !timeRange.To.IsZero() && timeRange.To.Before(timeRange.From) {
		return pkgerrors.New(pkgerrors.CodeValidation, "range end precedes range start")
	}
	return nil
}

func parseParams(params pagination.Params) (*pagination.Cursor, int, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	return cursor, pagination.NormalizeLimit(params.Limit), nil
}

func (s *service) DispensingLog(ctx context.Context, timeRange Range, params pagination.Params) ([]DispensingEntry, string, error) {
	if err := validateRange(timeRange); err != nil {
		return nil, "", err
	}
	cursor, limit, err := parseParams(params)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.repo.dispensingEntries(ctx, timeRange, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading dispensing log")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.EntryID})
	}

	entries := make([]DispensingEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, DispensingEntry{
			EntryID:     row.EntryID,
			BatchID:     row.BatchID,
			Substance:   row.Substance,
			LotNumber:   row.LotNumber,
			Quantity:    row.QuantityDelta.Neg(),
			Unit:        row.Unit,
			ActorID:     row.ActorID,
			Reason:      row.Reason,
			DispensedAt: row.CreatedAt,
		})
	}
	return entries, next, nil
}

func (s *service) WasteRegister(ctx context.Context, timeRange Range, params pagination.Params) ([]WasteEntry, string, error) {
	if err := validateRange(timeRange); err != nil {
		return nil, "", err
	}
	cursor, limit, err := parseParams(params)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.repo.wasteEntries(ctx, timeRange, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading waste register")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.EntryID})
	}

	entries := make([]WasteEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, WasteEntry{
			EntryID:       row.EntryID,
			BatchID:       row.BatchID,
			Substance:     row.Substance,
			LotNumber:     row.LotNumber,
			Type:          row.Type,
			Quantity:      row.QuantityDelta.Neg(),
			Unit:          row.Unit,
			ActorID:       row.ActorID,
			WitnessID:     row.WitnessID,
			Reason:        row.Reason,
			DisposalID:    row.DisposalID,
			FormReference: row.FormReference,
			OccurredAt:    row.CreatedAt,
		})
	}
	return entries, next, nil
}

func (s *service) AcquisitionsRegister(ctx context.Context, timeRange Range, params pagination.Params) ([]AcquisitionEntry, string, error) {
	if err := validateRange(timeRange); err != nil {
		return nil, "", err
	}
	cursor, limit, err := parseParams(params)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.repo.acquisitionRecords(ctx, timeRange, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading acquisitions register")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.RecordID})
	}

	entries := make([]AcquisitionEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, AcquisitionEntry{
			RecordID:            row.RecordID,
			FormNumber:          row.FormNumber,
			SupplierName:        row.SupplierName,
			SupplierDEANumber:   row.SupplierDEANumber,
			RegistrantName:      row.RegistrantName,
			RegistrantDEANumber: row.RegistrantDEANumber,
			ExecutionDate:       row.ExecutionDate,
			OrderedQty:          row.OrderedQty,
			ReceivedQty:         row.ReceivedQty,
			AcceptedQty:         row.AcceptedQty,
			Status:              row.Status,
			BatchID:             row.BatchID,
			Substance:           row.Substance,
			LotNumber:           row.LotNumber,
		})
	}
	return entries, next, nil
}
