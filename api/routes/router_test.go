package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clearpath-clinical/inventory-backend/pkg/config"
	"github.com/clearpath-clinical/inventory-backend/pkg/logger"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestRouter() http.Handler {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	return NewRouter(cfg, logg, okPinger{}, nil, nil, Services{})
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", rec.Code)
	}
	if env := rec.Header().Get("X-ClearPath-Env"); env != "test" {
		t.Fatalf("expected env header, got %q", env)
	}
}

func TestHealthReady(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"database":"up"`) {
		t.Fatalf("expected database dependency status, got %s", rec.Body.String())
	}
}

func TestMutationsRequireActorIdentity(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-Actor-Id, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 but got %d", rec.Code)
	}
}
