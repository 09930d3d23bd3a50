package controllers

import (
	"net/http"

	"github.com/larkspurhq/storefront-backend/api/responses"
	"github.com/larkspurhq/storefront-backend/api/validators"
	"github.com/larkspurhq/storefront-backend/internal/sessions"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
)

// AuthRegister creates the account and signs the shopper straight in.
func AuthRegister(reg sessions.RegisterService, svc sessions.Service, hub deviceSessionResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reg == nil || svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body sessions.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := reg.Register(r.Context(), body); err != nil {
			if logg != nil {
				logg.Error(r.Context(), "register failed", err)
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), sessions.LoginRequest{Email: body.Email, Password: body.Password})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		notifyDeviceSession(r, hub, logg, &result.User.ID)

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
