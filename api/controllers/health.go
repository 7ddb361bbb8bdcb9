package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/clearpath-clinical/inventory-backend/api/responses"
	"github.com/clearpath-clinical/inventory-backend/pkg/config"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

// Pinger is any dependency the readiness probe verifies.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ClearPath-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ClearPath-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		statuses := map[string]string{}
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				healthy = false
				statuses[name] = "down"
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness check failed", err)
				}
				continue
			}
			statuses[name] = "up"
		}

		if !healthy {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status":       "degraded",
				"dependencies": statuses,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"status":       "ready",
			"dependencies": statuses,
		})
	}
}
