package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/affiliate-ledger/api/responses"
	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency names a pinger in readiness output.
type Dependency struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Affiliate-Ledger-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and answers 503 when any is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Affiliate-Ledger-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var failed bool
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				failed = true
				checks[dep.Name] = "down"
				if logg != nil {
					logg.Warn(logg.WithFields(r.Context(), map[string]any{"dependency": dep.Name, "error": err.Error()}), "health.dependency_down")
				}
				continue
			}
			checks[dep.Name] = "ok"
		}

		if failed {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
