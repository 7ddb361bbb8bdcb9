package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearpath-clinical/inventory-backend/api/middleware"
	"github.com/clearpath-clinical/inventory-backend/api/responses"
	"github.com/clearpath-clinical/inventory-backend/api/validators"
	"github.com/clearpath-clinical/inventory-backend/internal/acquisitions"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

type batchSpecRequest struct {
	Substance       string          `json:"substance" validate:"required,max=200"`
	Schedule        string          `json:"schedule" validate:"required,oneof=I II III IV V"`
	LotNumber       string          `json:"lot_number" validate:"required,max=100"`
	SerialNumber    string          `json:"serial_number" validate:"required,max=100"`
	Manufacturer    string          `json:"manufacturer" validate:"required,max=200"`
	ConcentrationMg decimal.Decimal `json:"concentration_mg_per_ml" validate:"required"`
	Unit            string          `json:"unit" validate:"required,oneof=mL mg"`
	ExpirationDate  *time.Time      `json:"expiration_date,omitempty"`
	StorageLocation string          `json:"storage_location,omitempty" validate:"max=200"`
}

func (b batchSpecRequest) toSpec() (acquisitions.BatchSpec, error) {
	unit, err := enums.ParseUnit(b.Unit)
	if err != nil {
		return acquisitions.BatchSpec{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit")
	}
	return acquisitions.BatchSpec{
		Substance:       b.Substance,
		Schedule:        b.Schedule,
		LotNumber:       b.LotNumber,
		SerialNumber:    b.SerialNumber,
		Manufacturer:    b.Manufacturer,
		ConcentrationMg: b.ConcentrationMg,
		Unit:            unit,
		ExpirationDate:  b.ExpirationDate,
		StorageLocation: b.StorageLocation,
	}, nil
}

type recordAcquisitionRequest struct {
	FormNumber          string           `json:"form_number" validate:"required,max=100"`
	SupplierName        string           `json:"supplier_name" validate:"required,max=200"`
	SupplierDEANumber   string           `json:"supplier_dea_number" validate:"required,len=9"`
	RegistrantName      string           `json:"registrant_name" validate:"required,max=200"`
	RegistrantDEANumber string           `json:"registrant_dea_number" validate:"required,len=9"`
	ExecutionDate       time.Time        `json:"execution_date" validate:"required"`
	OrderedQty          decimal.Decimal  `json:"ordered_qty" validate:"required"`
	ReceivedQty         decimal.Decimal  `json:"received_qty"`
	Batch               batchSpecRequest `json:"batch" validate:"required"`
}

// RecordAcquisition registers a Form-222 receipt. A clean receipt creates
// the sealed batch in the same call; a quantity mismatch parks the record
// as a discrepancy for Reconcile.
func RecordAcquisition(svc acquisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req recordAcquisitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		spec, err := req.Batch.toSpec()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Record(r.Context(), acquisitions.RecordInput{
			FormNumber:          req.FormNumber,
			SupplierName:        req.SupplierName,
			SupplierDEANumber:   req.SupplierDEANumber,
			RegistrantName:      req.RegistrantName,
			RegistrantDEANumber: req.RegistrantDEANumber,
			ExecutionDate:       req.ExecutionDate,
			OrderedQty:          req.OrderedQty,
			ReceivedQty:         req.ReceivedQty,
			Batch:               spec,
			ActorID:             actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type reconcileAcquisitionRequest struct {
	AcceptedQty    decimal.Decimal   `json:"accepted_qty"`
	ResolutionNote string            `json:"resolution_note,omitempty" validate:"max=500"`
	Batch          *batchSpecRequest `json:"batch,omitempty"`
}

// ReconcileAcquisition resolves a discrepancy hold: accept some quantity
// (creating the batch and seed entry) or reject the shipment entirely.
func ReconcileAcquisition(svc acquisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		acquisitionID, err := parseUUIDParam(r, "acquisitionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reconcileAcquisitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := acquisitions.ReconcileInput{
			AcquisitionID:  acquisitionID,
			AcceptedQty:    req.AcceptedQty,
			ResolutionNote: req.ResolutionNote,
			ActorID:        actorID,
		}
		if req.Batch != nil {
			spec, specErr := req.Batch.toSpec()
			if specErr != nil {
				responses.WriteError(r.Context(), logg, w, specErr)
				return
			}
			input.Batch = spec
		}

		result, err := svc.Reconcile(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ListAcquisitions(svc acquisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := acquisitions.ListInput{
			Status:     strings.TrimSpace(r.URL.Query().Get("status")),
			Pagination: params,
		}
		if from, parseErr := validators.ParseQueryTime(r, "from"); parseErr != nil {
			responses.WriteError(r.Context(), logg, w, parseErr)
			return
		} else if !from.IsZero() {
			input.From = &from
		}
		if to, parseErr := validators.ParseQueryTime(r, "to"); parseErr != nil {
			responses.WriteError(r.Context(), logg, w, parseErr)
			return
		} else if !to.IsZero() {
			input.To = &to
		}

		records, next, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, records, next)
	}
}

func GetAcquisition(svc acquisitions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acquisitionID, err := parseUUIDParam(r, "acquisitionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), acquisitionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}
