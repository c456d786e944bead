package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/miuvuu/miuvuu-backend/pkg/config"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	rec := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Miuvuu-Env") != "dev" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	root := t.TempDir()

	rec := httptest.NewRecorder()
	HealthReady(cfg, testLogger(), ReadyDeps{DB: stubPinger{}, StorageRoot: root}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with healthy deps, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), ReadyDeps{DB: stubPinger{}, Redis: stubPinger{err: errors.New("down")}, StorageRoot: root}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when redis is down, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), ReadyDeps{DB: stubPinger{}, StorageRoot: root + "/missing"}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when storage root is missing, got %d", rec.Code)
	}
}
