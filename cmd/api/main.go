package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clearpath-clinical/inventory-backend/api/routes"
	"github.com/clearpath-clinical/inventory-backend/internal/acquisitions"
	"github.com/clearpath-clinical/inventory-backend/internal/batches"
	"github.com/clearpath-clinical/inventory-backend/internal/compliance"
	"github.com/clearpath-clinical/inventory-backend/internal/disposals"
	"github.com/clearpath-clinical/inventory-backend/internal/ledger"
	"github.com/clearpath-clinical/inventory-backend/internal/reconciliation"
	"github.com/clearpath-clinical/inventory-backend/internal/reports"
	"github.com/clearpath-clinical/inventory-backend/pkg/config"
	"github.com/clearpath-clinical/inventory-backend/pkg/db"
	"github.com/clearpath-clinical/inventory-backend/pkg/db/models"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
	"github.com/clearpath-clinical/inventory-backend/pkg/metrics"
	"github.com/clearpath-clinical/inventory-backend/pkg/migrate"
	"github.com/clearpath-clinical/inventory-backend/pkg/outbox"
	"github.com/clearpath-clinical/inventory-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	rules, err := cfg.Policy.Rules()
	if err != nil {
		logg.Error(context.Background(), "failed to parse policy rules", err)
		os.Exit(1)
	}

	dbClient, err := openDatabase(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if !cfg.FeatureFlags.UseSQLite {
		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(promRegistry)

	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), dbClient, outboxSvc, rules, ledgerMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	batchSvc, err := batches.NewService(batches.NewRepository(conn), dbClient, outboxSvc, rules, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create batch service", err)
		os.Exit(1)
	}

	acquisitionSvc, err := acquisitions.NewService(acquisitions.NewRepository(conn), dbClient, outboxSvc, ledgerSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create acquisition service", err)
		os.Exit(1)
	}

	disposalSvc, err := disposals.NewService(disposals.NewRepository(conn), dbClient, outboxSvc, ledgerSvc, rules)
	if err != nil {
		logg.Error(context.Background(), "failed to create disposal service", err)
		os.Exit(1)
	}

	reconciliationSvc, err := reconciliation.NewService(reconciliation.NewRepository(conn), dbClient, outboxSvc, ledgerSvc, rules, ledgerMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation service", err)
		os.Exit(1)
	}

	complianceSvc, err := compliance.NewService(compliance.NewRepository(conn), rules, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create compliance service", err)
		os.Exit(1)
	}

	reportSvc, err := reports.NewService(reports.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create report service", err)
		os.Exit(1)
	}

	// Expired stock must stop dispensing even if the cron worker is down.
	if expired, err := batchSvc.MarkExpired(context.Background(), time.Now().UTC()); err != nil {
		logg.Error(context.Background(), "startup expiry sweep failed", err)
	} else if expired > 0 {
		logg.Info(logg.WithField(context.Background(), "batches_expired", expired), "startup expiry sweep complete")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, promRegistry, routes.Services{
			Ledger:         ledgerSvc,
			Batches:        batchSvc,
			Acquisitions:   acquisitionSvc,
			Disposals:      disposalSvc,
			Reconciliation: reconciliationSvc,
			Compliance:     complianceSvc,
			Reports:        reportSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// openDatabase boots Postgres, or an embedded sqlite file when the feature
// flag asks for it. The sqlite path exists for local demos without a
// database server; schema comes from AutoMigrate instead of goose.
func openDatabase(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, error) {
	if !cfg.FeatureFlags.UseSQLite {
		return db.New(ctx, cfg.DB, logg)
	}

	conn, err := gorm.Open(sqlite.Open("clearpath.db"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		return nil, err
	}
	if err := conn.AutoMigrate(
		&models.Batch{},
		&models.LedgerEntry{},
		&models.AcquisitionRecord{},
		&models.DisposalRecord{},
		&models.DisposalWitness{},
		&models.InventorySnapshot{},
		&models.OutboxEvent{},
	); err != nil {
		return nil, err
	}
	logg.Info(ctx, "sqlite database ready")
	return db.NewWithConn(conn), nil
}
