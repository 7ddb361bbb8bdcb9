package controllers

import (
	"net/http"
	"strings"

	"github.com/clearpath-clinical/inventory-backend/api/middleware"
	"github.com/clearpath-clinical/inventory-backend/api/responses"
	"github.com/clearpath-clinical/inventory-backend/api/validators"
	"github.com/clearpath-clinical/inventory-backend/internal/batches"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

// ListBatches pages the batch inventory, optionally filtered by status
// (including the derived low state) or substance.
func ListBatches(svc batches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views, next, err := svc.List(r.Context(), batches.ListInput{
			Status:     strings.TrimSpace(r.URL.Query().Get("status")),
			Substance:  strings.TrimSpace(r.URL.Query().Get("substance")),
			Pagination: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, views, next)
	}
}

func GetBatch(svc batches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := parseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), batchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type updateBatchStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// UpdateBatchStatus applies a manual state transition. Disposed is not
// reachable here; only a finalized full disposal sets it.
func UpdateBatchStatus(svc batches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batchID, err := parseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateBatchStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseBatchStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		view, err := svc.UpdateStatus(r.Context(), batches.UpdateStatusInput{
			BatchID: batchID,
			Status:  status,
			ActorID: actorID,
			Reason:  req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
