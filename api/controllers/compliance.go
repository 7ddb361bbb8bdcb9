package controllers

import (
	"net/http"

	"github.com/clearpath-clinical/inventory-backend/api/responses"
	"github.com/clearpath-clinical/inventory-backend/internal/compliance"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

// ComplianceMetrics serves the point-in-time compliance aggregate.
func ComplianceMetrics(svc compliance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, err := svc.Metrics(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, metrics)
	}
}
