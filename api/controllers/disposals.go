package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearpath-clinical/inventory-backend/api/middleware"
	"github.com/clearpath-clinical/inventory-backend/api/responses"
	"github.com/clearpath-clinical/inventory-backend/api/validators"
	"github.com/clearpath-clinical/inventory-backend/internal/disposals"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

type createDisposalRequest struct {
	BatchID      uuid.UUID       `json:"batch_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	Reason       string          `json:"reason" validate:"required,max=500"`
	FullDisposal bool            `json:"full_disposal"`
}

// CreateDisposal opens a draft destruction record. Quantity is the amount
// to waste for a partial disposal; a full disposal destroys whatever the
// container holds when it finalizes.
func CreateDisposal(svc disposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createDisposalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Create(r.Context(), disposals.CreateInput{
			BatchID:      req.BatchID,
			Quantity:     req.Quantity,
			Reason:       req.Reason,
			FullDisposal: req.FullDisposal,
			ActorID:      actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
	}
}

type witnessDisposalRequest struct {
	WitnessID uuid.UUID `json:"witness_id" validate:"required"`
}

func WitnessDisposal(svc disposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		disposalID, err := parseUUIDParam(r, "disposalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req witnessDisposalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.AddWitness(r.Context(), disposals.WitnessInput{
			DisposalID: disposalID,
			WitnessID:  req.WitnessID,
			ActorID:    actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

type finalizeDisposalRequest struct {
	FormReference *string `json:"form_reference,omitempty" validate:"omitempty,max=200"`
}

// FinalizeDisposal completes the destruction: ledger entry, batch update
// and, for a full disposal, the disposed status.
func FinalizeDisposal(svc disposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		disposalID, err := parseUUIDParam(r, "disposalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req finalizeDisposalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Finalize(r.Context(), disposals.FinalizeInput{
			DisposalID:    disposalID,
			FormReference: req.FormReference,
			ActorID:       actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

func ListDisposals(svc disposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := disposals.ListInput{
			Status:     strings.TrimSpace(r.URL.Query().Get("status")),
			Pagination: params,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("batch_id")); raw != "" {
			batchID, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid batch_id filter"))
				return
			}
			input.BatchID = batchID
		}

		records, next, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, records, next)
	}
}

func GetDisposal(svc disposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		disposalID, err := parseUUIDParam(r, "disposalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), disposalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}
