package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/larkspurhq/storefront-backend/api/responses"
	"github.com/larkspurhq/storefront-backend/api/validators"
	"github.com/larkspurhq/storefront-backend/internal/catalog"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
	"github.com/larkspurhq/storefront-backend/pkg/pagination"
)

const maxProductQueryLen = 120

// ProductsList serves the storefront's paginated catalog browse.
func ProductsList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
		query := validators.SanitizeString(r.URL.Query().Get("q"), maxProductQueryLen)

		input := catalog.ListProductsInput{
			Filters: catalog.ProductListFilters{Query: query},
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: cursor,
			},
		}

		result, err := svc.ListProducts(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// ProductDetail serves a single product with its sellable variants.
func ProductDetail(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		slug := chi.URLParam(r, "slug")
		detail, err := svc.GetProduct(r.Context(), slug)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, detail)
	}
}
