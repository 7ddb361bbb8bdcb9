package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/clearpath-clinical/inventory-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}


func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"append entry", http.MethodPost, "/api/v1/batches/0b51a2f3/entries", criticalIdempotencyTTL, true},
		{"finalize disposal", http.MethodPost, "/api/v1/disposals/77fa0c12/finalize", criticalIdempotencyTTL, true},
		{"reconcile", http.MethodPost, "/api/v1/acquisitions/3cd914aa/reconcile", criticalIdempotencyTTL, true},
		{"record acquisition", http.MethodPost, "/api/v1/acquisitions", defaultIdempotencyTTL, true},
		{"record snapshot", http.MethodPost, "/api/v1/snapshots", defaultIdempotencyTTL, true},
		{"status change", http.MethodPatch, "/api/v1/batches/0b51a2f3/status", defaultIdempotencyTTL, true},
		{"read history", http.MethodGet, "/api/v1/batches/0b51a2f3/entries", 0, false},
		{"list disposals", http.MethodGet, "/api/v1/disposals", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)

	if handlerCalled {
		t.Fatalf("handler must not run without an idempotency key")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 but got %d", rec.Code)
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"entry":1}}`))
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/batches/b1/entries", strings.NewReader(`{"type":"dispense"}`))
		req.Header.Set("Idempotency-Key", "station-7-attempt-1")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec
	}

	first := send()
	second := send()

	if calls != 1 {
		t.Fatalf("expected a single handler invocation, got %d", calls)
	}
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay must return the stored body verbatim")
	}
}

func TestIdempotencyMiddlewareRejectsKeyReuseWithNewBody(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/batches/b1/entries", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "station-7-attempt-1")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec
	}

	send(`{"quantity":"5"}`)
	rec := send(`{"quantity":"50"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 but got %d", rec.Code)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
}
