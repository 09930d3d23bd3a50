package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/larkspurhq/storefront-backend/internal/catalog"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
	"github.com/larkspurhq/storefront-backend/pkg/pagination"
)

func TestProductsListForwardsQueryParams(t *testing.T) {
	svc := &stubLineResolver{listResult: &catalog.ProductListResult{
		Products:   []catalog.ProductSummary{{ID: uuid.New(), Slug: "walnut-desk", Title: "Walnut Desk"}},
		NextCursor: "next-page",
	}}
	handler := ProductsList(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?limit=7&cursor=abc&q=%20walnut%20", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastInput.Pagination.Limit != 7 {
		t.Fatalf("expected limit 7 got %d", svc.lastInput.Pagination.Limit)
	}
	if svc.lastInput.Pagination.Cursor != "abc" {
		t.Fatalf("expected cursor abc got %s", svc.lastInput.Pagination.Cursor)
	}
	if svc.lastInput.Filters.Query != "walnut" {
		t.Fatalf("expected trimmed query walnut got %q", svc.lastInput.Filters.Query)
	}

	var envelope struct {
		Data catalog.ProductListResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Products) != 1 || envelope.Data.NextCursor != "next-page" {
		t.Fatalf("expected page with cursor got %+v", envelope.Data)
	}
}

func TestProductsListDefaultsLimit(t *testing.T) {
	svc := &stubLineResolver{listResult: &catalog.ProductListResult{}}
	handler := ProductsList(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastInput.Pagination.Limit != pagination.DefaultLimit {
		t.Fatalf("expected default limit %d got %d", pagination.DefaultLimit, svc.lastInput.Pagination.Limit)
	}
}

func TestProductsListRejectsBadLimit(t *testing.T) {
	handler := ProductsList(&stubLineResolver{}, testLogger())

	for _, limit := range []string{"0", "9999", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products?limit="+limit, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit %s: expected 400 got %d", limit, rec.Code)
		}
	}
}

func TestProductDetailBySlug(t *testing.T) {
	svc := &stubLineResolver{detail: &catalog.ProductDetail{ID: uuid.New(), Slug: "walnut-desk", Title: "Walnut Desk"}}
	handler := ProductDetail(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/walnut-desk", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("slug", "walnut-desk")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastSlug != "walnut-desk" {
		t.Fatalf("expected slug forwarded got %s", svc.lastSlug)
	}

	var envelope struct {
		Data catalog.ProductDetail `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Slug != "walnut-desk" {
		t.Fatalf("expected walnut-desk got %s", envelope.Data.Slug)
	}
}

func TestProductDetailNotFound(t *testing.T) {
	svc := &stubLineResolver{detailErr: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	handler := ProductDetail(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/missing", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("slug", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
