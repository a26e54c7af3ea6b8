package controllers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/luggagedeposit-backend/api/responses"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

const (
	envHeader    = "X-Luggage-Env"
	readyTimeout = 2 * time.Second
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency and reports 503 when any fails.
func HealthReady(cfg *config.Config, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var errs error
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "missing"
				errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeUnavailable, name+" not configured"))
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeUnavailable, err, name+" ping"))
				continue
			}
			checks[name] = "up"
		}

		if errs != nil {
			if logg != nil {
				logCtx := logg.WithFields(r.Context(), map[string]any{"checks": checks})
				logg.Error(logCtx, "health.not_ready", errs)
			}
			responses.WriteStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "checks": checks})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
