package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/larkspurhq/storefront-backend/api/middleware"
	"github.com/larkspurhq/storefront-backend/api/responses"
	"github.com/larkspurhq/storefront-backend/api/validators"
	"github.com/larkspurhq/storefront-backend/internal/cart"
	"github.com/larkspurhq/storefront-backend/internal/catalog"
	"github.com/larkspurhq/storefront-backend/internal/storefront"
	pkgAuth "github.com/larkspurhq/storefront-backend/pkg/auth"
	"github.com/larkspurhq/storefront-backend/pkg/auth/session"
	"github.com/larkspurhq/storefront-backend/pkg/config"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
)

// storefrontHub is the per-device session surface the storefront endpoints
// drive. *storefront.Hub satisfies it.
type storefrontHub interface {
	deviceSessionResolver
	FailSession(ctx context.Context, deviceID string, cause error) (storefront.SessionView, error)
	View(deviceID string) storefront.SessionView
	AddItem(ctx context.Context, deviceID string, item cart.Line) (storefront.SessionView, error)
	RemoveItem(ctx context.Context, deviceID string, productID, variantID uuid.UUID) (storefront.SessionView, error)
	SetQuantity(ctx context.Context, deviceID string, productID, variantID uuid.UUID, quantity int) (storefront.SessionView, error)
	SyncNow(ctx context.Context, deviceID string) (storefront.SessionView, error)
}

type addCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0"`
}

func deviceIDFromRequest(r *http.Request) (string, error) {
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "device id is required")
	}
	return deviceID, nil
}

// StorefrontHydrate opens or refreshes the caller's reconciliation session.
// It resolves its own credentials instead of relying on auth middleware: a
// missing token hydrates as guest, an unverifiable session (the session store
// is down) resolves the machine to its error state so the shopper still gets
// a usable guest view, and only a bad or revoked token is rejected outright.
func StorefrontHydrate(hub storefrontHub, cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "storefront hub unavailable"))
			return
		}

		deviceID, err := deviceIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			view, err := hub.ResolveSession(r.Context(), deviceID, nil)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, view)
			return
		}

		token, err := parseBearerToken(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		claims, err := pkgAuth.ParseAccessToken(cfg, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
			return
		}
		if claims.ID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
			return
		}

		if verifier != nil {
			ok, checkErr := verifier.HasSession(r.Context(), claims.ID)
			if checkErr != nil {
				view, failErr := hub.FailSession(r.Context(), deviceID, checkErr)
				if failErr != nil {
					responses.WriteError(r.Context(), logg, w, failErr)
					return
				}
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "error", checkErr.Error()), "session check failed, hydrating without identity")
				}
				responses.WriteSuccess(w, view)
				return
			}
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
				return
			}
		}

		view, err := hub.ResolveSession(r.Context(), deviceID, &claims.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// StorefrontState reads the session snapshot without creating one.
func StorefrontState(hub storefrontHub, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "storefront hub unavailable"))
			return
		}

		deviceID, err := deviceIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, hub.View(deviceID))
	}
}

// CartAddItem prices the requested variant server-side and folds the line
// into the device's cart.
func CartAddItem(hub storefrontHub, catalogSvc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil || catalogSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "storefront hub unavailable"))
			return
		}

		deviceID, err := deviceIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body addCartItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := catalogSvc.ResolveLine(r.Context(), body.ProductID, body.VariantID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := hub.AddItem(r.Context(), deviceID, line)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartRemoveItem drops a line by its product identity.
func CartRemoveItem(hub storefrontHub, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "storefront hub unavailable"))
			return
		}

		deviceID, err := deviceIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, variantID, err := lineIdentityFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := hub.RemoveItem(r.Context(), deviceID, productID, variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartSetQuantity pins a line to an absolute quantity; zero removes it.
func CartSetQuantity(hub storefrontHub, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "storefront hub unavailable"))
			return
		}

		deviceID, err := deviceIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, variantID, err := lineIdentityFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body setQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := hub.SetQuantity(r.Context(), deviceID, productID, variantID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartSync flushes pending local changes ahead of the debounce window.
func CartSync(hub storefrontHub, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "storefront hub unavailable"))
			return
		}

		deviceID, err := deviceIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := hub.SyncNow(r.Context(), deviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

func lineIdentityFromPath(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	productID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "productId")))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	variantID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "variantId")))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id")
	}
	return productID, variantID, nil
}
