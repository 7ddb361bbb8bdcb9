package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearpath-clinical/inventory-backend/api/controllers"
	"github.com/clearpath-clinical/inventory-backend/api/middleware"
	"github.com/clearpath-clinical/inventory-backend/internal/acquisitions"
	"github.com/clearpath-clinical/inventory-backend/internal/batches"
	"github.com/clearpath-clinical/inventory-backend/internal/compliance"
	"github.com/clearpath-clinical/inventory-backend/internal/disposals"
	"github.com/clearpath-clinical/inventory-backend/internal/ledger"
	"github.com/clearpath-clinical/inventory-backend/internal/reconciliation"
	"github.com/clearpath-clinical/inventory-backend/internal/reports"
	"github.com/clearpath-clinical/inventory-backend/pkg/config"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
	pkgredis "github.com/clearpath-clinical/inventory-backend/pkg/redis"
)

// Services bundles the domain services the router exposes.
type Services struct {
	Ledger         ledger.Service
	Batches        batches.Service
	Acquisitions   acquisitions.Service
	Disposals      disposals.Service
	Reconciliation reconciliation.Service
	Compliance     compliance.Service
	Reports        reports.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger controllers.Pinger,
	redisClient *pkgredis.Client,
	promRegistry *prometheus.Registry,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
		middleware.Actor(logg),
	)

	var idempotencyStore pkgredis.IdempotencyStore
	if redisClient != nil {
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		readiness := map[string]controllers.Pinger{"database": dbPinger}
		if redisClient != nil {
			readiness["redis"] = redisClient
		}
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/acquisitions", func(r chi.Router) {
			r.Post("/", controllers.RecordAcquisition(svcs.Acquisitions, logg))
			r.Get("/", controllers.ListAcquisitions(svcs.Acquisitions, logg))
			r.Get("/{acquisitionId}", controllers.GetAcquisition(svcs.Acquisitions, logg))
			r.Post("/{acquisitionId}/reconcile", controllers.ReconcileAcquisition(svcs.Acquisitions, logg))
		})

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", controllers.ListBatches(svcs.Batches, logg))
			r.Get("/{batchId}", controllers.GetBatch(svcs.Batches, logg))
			r.Patch("/{batchId}/status", controllers.UpdateBatchStatus(svcs.Batches, logg))
			r.Post("/{batchId}/entries", controllers.AppendEntry(svcs.Ledger, logg))
			r.Get("/{batchId}/entries", controllers.EntryHistory(svcs.Ledger, logg))
			r.Get("/{batchId}/balance", controllers.BatchBalance(svcs.Ledger, logg))
		})

		r.Route("/disposals", func(r chi.Router) {
			r.Post("/", controllers.CreateDisposal(svcs.Disposals, logg))
			r.Get("/", controllers.ListDisposals(svcs.Disposals, logg))
			r.Get("/{disposalId}", controllers.GetDisposal(svcs.Disposals, logg))
			r.Post("/{disposalId}/witnesses", controllers.WitnessDisposal(svcs.Disposals, logg))
			r.Post("/{disposalId}/finalize", controllers.FinalizeDisposal(svcs.Disposals, logg))
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Post("/", controllers.RecordSnapshot(svcs.Reconciliation, logg))
			r.Get("/", controllers.ListSnapshots(svcs.Reconciliation, logg))
		})

		r.Get("/compliance/metrics", controllers.ComplianceMetrics(svcs.Compliance, logg))

		r.Route("/reports", func(r chi.Router) {
			r.Get("/dispensing-log", controllers.DispensingLogReport(svcs.Reports, logg))
			r.Get("/waste-register", controllers.WasteRegisterReport(svcs.Reports, logg))
			r.Get("/acquisitions-register", controllers.AcquisitionsRegisterReport(svcs.Reports, logg))
		})
	})

	return r
}
