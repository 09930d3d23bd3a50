package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/larkspurhq/storefront-backend/api/middleware"
	"github.com/larkspurhq/storefront-backend/api/responses"
	"github.com/larkspurhq/storefront-backend/api/validators"
	"github.com/larkspurhq/storefront-backend/internal/sessions"
	"github.com/larkspurhq/storefront-backend/internal/storefront"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
)

// deviceSessionResolver re-resolves a device's hydration after an identity
// change. Login and logout push the new identity here so the device's cart
// reconciles without waiting for the next hydrate call.
type deviceSessionResolver interface {
	ResolveSession(ctx context.Context, deviceID string, userID *uuid.UUID) (storefront.SessionView, error)
}

// AuthLogin wires the login endpoint into the HTTP layer.
func AuthLogin(svc sessions.Service, hub deviceSessionResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body sessions.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		notifyDeviceSession(r, hub, logg, &result.User.ID)

		responses.WriteSuccess(w, result)
	}
}

// notifyDeviceSession pushes the identity change into the caller's storefront
// session when the request names a device. Failures are logged, not
// surfaced; the next hydrate retries.
func notifyDeviceSession(r *http.Request, hub deviceSessionResolver, logg *logger.Logger, userID *uuid.UUID) {
	if hub == nil {
		return
	}
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		return
	}
	if _, err := hub.ResolveSession(r.Context(), deviceID, userID); err != nil && logg != nil {
		ctx := logg.WithFields(r.Context(), map[string]any{
			"device_id": deviceID,
			"error":     err.Error(),
		})
		logg.Warn(ctx, "device session resolve after auth change failed")
	}
}
