package controllers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prepmood/prepmood-backend/pkg/config"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	resp := serve(HealthReady(cfg, nil, map[string]Pinger{"db": up, "redis": up}), newRequest(http.MethodGet, "/health/ready", ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = serve(HealthReady(cfg, nil, map[string]Pinger{"db": up, "redis": down}), newRequest(http.MethodGet, "/health/ready", ""))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeDependency) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	resp := serve(HealthLive(cfg), newRequest(http.MethodGet, "/health/live", ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Prepmood-Env") != "test" {
		t.Fatalf("missing env header")
	}
}
