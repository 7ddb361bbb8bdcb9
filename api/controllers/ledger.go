package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearpath-clinical/inventory-backend/api/middleware"
	"github.com/clearpath-clinical/inventory-backend/api/responses"
	"github.com/clearpath-clinical/inventory-backend/api/validators"
	"github.com/clearpath-clinical/inventory-backend/internal/ledger"
	"github.com/clearpath-clinical/inventory-backend/pkg/enums"
	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

type appendEntryRequest struct {
	Type           string          `json:"type" validate:"required,oneof=dispense waste adjustment"`
	Delta          decimal.Decimal `json:"delta" validate:"required"`
	WitnessID      *uuid.UUID      `json:"witness_id,omitempty"`
	Reason         string          `json:"reason,omitempty" validate:"max=500"`
	AdjustsEntryID *uuid.UUID      `json:"adjusts_entry_id,omitempty"`
}

// AppendEntry records a dispense, waste or adjustment against a batch.
// Acquisition and disposal entries are written by their own flows.
func AppendEntry(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req appendEntryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entryType, err := enums.ParseLedgerEntryType(req.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry type"))
			return
		}

		entry, err := svc.Append(r.Context(), ledger.AppendEntryInput{
			BatchID:        batchID,
			Type:           entryType,
			Delta:          req.Delta,
			ActorID:        actorID,
			WitnessID:      req.WitnessID,
			Reason:         req.Reason,
			AdjustsEntryID: req.AdjustsEntryID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

// EntryHistory pages a batch's ledger, oldest first, optionally narrowed
// by entry type and time range.
func EntryHistory(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := parseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := ledger.HistoryFilter{BatchID: batchID}
		for _, raw := range strings.Split(r.URL.Query().Get("types"), ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			entryType, parseErr := enums.ParseLedgerEntryType(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid entry type filter"))
				return
			}
			filter.Types = append(filter.Types, entryType)
		}
		if from, parseErr := validators.ParseQueryTime(r, "from"); parseErr != nil {
			responses.WriteError(r.Context(), logg, w, parseErr)
			return
		} else if !from.IsZero() {
			filter.From = &from
		}
		if to, parseErr := validators.ParseQueryTime(r, "to"); parseErr != nil {
			responses.WriteError(r.Context(), logg, w, parseErr)
			return
		} else if !to.IsZero() {
			filter.To = &to
		}

		entries, next, err := svc.History(r.Context(), ledger.HistoryInput{
			Filter:     filter,
			Pagination: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, entries, next)
	}
}

// BatchBalance derives a batch balance from the ledger, at the provided
// instant or now.
func BatchBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := parseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		at, err := validators.ParseQueryTime(r, "at")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if at.IsZero() {
			at = time.Now().UTC()
		}

		balance, err := svc.BalanceAt(r.Context(), &batchID, at)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"batch_id": batchID,
			"at":       at,
			"balance":  balance,
		})
	}
}
