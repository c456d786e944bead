package controllers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/miuvuu/miuvuu-backend/api/responses"
	"github.com/miuvuu/miuvuu-backend/pkg/config"
	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is any dependency with a connectivity probe.
type Pinger interface {
	Ping(context.Context) error
}

// ReadyDeps lists the probes behind /health/ready. A nil Redis is skipped.
type ReadyDeps struct {
	DB          Pinger
	Redis       Pinger
	StorageRoot string
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Miuvuu-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready once the database, Redis when configured and the
// storage root are all reachable.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ReadyDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Miuvuu-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]string{}
		failed := false
		probe := func(name string, fn func() error) {
			if err := fn(); err != nil {
				checks[name] = err.Error()
				failed = true
				return
			}
			checks[name] = "ok"
		}

		if deps.DB != nil {
			probe("db", func() error { return deps.DB.Ping(ctx) })
		}
		if deps.Redis != nil {
			probe("redis", func() error { return deps.Redis.Ping(ctx) })
		}
		if deps.StorageRoot != "" {
			probe("storage", func() error {
				info, err := os.Stat(deps.StorageRoot)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					return pkgerrors.New(pkgerrors.CodeDependency, "storage root is not a directory")
				}
				return nil
			})
		}

		if failed {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
