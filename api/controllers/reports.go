package controllers

import (
	"net/http"

	"github.com/clearpath-clinical/inventory-backend/api/responses"
	"github.com/clearpath-clinical/inventory-backend/api/validators"
	"github.com/clearpath-clinical/inventory-backend/internal/reports"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
	"github.com/clearpath-clinical/inventory-backend/pkg/pagination"
)

func reportQuery(r *http.Request) (reports.Range, pagination.Params, error) {
	var timeRange reports.Range

	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return reports.Range{}, pagination.Params{}, err
	}
	timeRange.From = from

	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return reports.Range{}, pagination.Params{}, err
	}
	timeRange.To = to

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return reports.Range{}, pagination.Params{}, err
	}

	return timeRange, pagination.Params{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}, nil
}

func DispensingLogReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timeRange, params, err := reportQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, next, err := svc.DispensingLog(r.Context(), timeRange, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, entries, next)
	}
}

func WasteRegisterReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timeRange, params, err := reportQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, next, err := svc.WasteRegister(r.Context(), timeRange, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, entries, next)
	}
}

func AcquisitionsRegisterReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timeRange, params, err := reportQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, next, err := svc.AcquisitionsRegister(r.Context(), timeRange, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, entries, next)
	}
}
