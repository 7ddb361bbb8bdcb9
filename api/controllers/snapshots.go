package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearpath-clinical/inventory-backend/api/middleware"
	"github.com/clearpath-clinical/inventory-backend/api/responses"
	"github.com/clearpath-clinical/inventory-backend/api/validators"
	"github.com/clearpath-clinical/inventory-backend/internal/reconciliation"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

type recordSnapshotRequest struct {
	Type          string          `json:"type" validate:"required,oneof=initial biennial shift"`
	PhysicalCount decimal.Decimal `json:"physical_count"`
	VerifiedBy    *uuid.UUID      `json:"verified_by,omitempty"`
	TakenAt       *time.Time      `json:"taken_at,omitempty"`
	Notes         string          `json:"notes,omitempty" validate:"max=1000"`
}

// RecordSnapshot files a physical count against the ledger aggregate. The
// acting clinician is the counter.
func RecordSnapshot(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req recordSnapshotRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapType, err := enums.ParseSnapshotType(req.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid snapshot type"))
			return
		}

		input := reconciliation.SnapshotInput{
			Type:          snapType,
			PhysicalCount: req.PhysicalCount,
			CountedBy:     actorID,
			VerifiedBy:    req.VerifiedBy,
			Notes:         req.Notes,
		}
		if req.TakenAt != nil {
			input.TakenAt = *req.TakenAt
		}

		snapshot, err := svc.RecordSnapshot(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, snapshot)
	}
}

func ListSnapshots(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshots, next, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, snapshots, next)
	}
}
