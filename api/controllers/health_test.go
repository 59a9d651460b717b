package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/affiliate-ledger/pkg/config"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var testCfg = &config.Config{App: config.AppConfig{Env: "test"}}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthLive(testCfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get("X-Affiliate-Ledger-Env") != "test" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReady(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	HealthReady(testCfg, nil, Dependency{Name: "postgres", Pinger: ok}, Dependency{Name: "redis", Pinger: ok}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthReady(testCfg, nil, Dependency{Name: "postgres", Pinger: ok}, Dependency{Name: "redis", Pinger: down}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Details["redis"] != "down" || body.Error.Details["postgres"] != "ok" {
		t.Fatalf("unexpected checks %v", body.Error.Details)
	}
}
