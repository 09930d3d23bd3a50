package controllers

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/larkspurhq/storefront-backend/api/responses"
	"github.com/larkspurhq/storefront-backend/pkg/config"
	"github.com/larkspurhq/storefront-backend/pkg/db"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
	"github.com/larkspurhq/storefront-backend/pkg/redis"
)

const envHeader = "X-Larkspur-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes the datastores the API cannot serve without.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		checks := map[string]string{}
		var failures error

		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				checks["postgres"] = "down"
				failures = multierr.Append(failures, err)
			} else {
				checks["postgres"] = "up"
			}
		}
		if redisP != nil {
			if err := redisP.Ping(r.Context()); err != nil {
				checks["redis"] = "down"
				failures = multierr.Append(failures, err)
			} else {
				checks["redis"] = "up"
			}
		}

		if failures != nil {
			err := pkgerrors.Wrap(pkgerrors.CodeDependency, failures, "readiness probe failed").
				WithDetails(checks)
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
