package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/larkspurhq/storefront-backend/api/middleware"
	"github.com/larkspurhq/storefront-backend/internal/cart"
	"github.com/larkspurhq/storefront-backend/internal/catalog"
	"github.com/larkspurhq/storefront-backend/internal/storefront"
	pkgAuth "github.com/larkspurhq/storefront-backend/pkg/auth"
	"github.com/larkspurhq/storefront-backend/pkg/config"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
)

type resolveCall struct {
	deviceID string
	userID   *uuid.UUID
}

type stubHub struct {
	view     storefront.SessionView
	err      error
	resolves []resolveCall
	failures []error
	added    []cart.Line
	removals [][2]uuid.UUID
	setCalls []int
	syncs    []string
}

func (s *stubHub) ResolveSession(ctx context.Context, deviceID string, userID *uuid.UUID) (storefront.SessionView, error) {
	s.resolves = append(s.resolves, resolveCall{deviceID: deviceID, userID: userID})
	return s.view, s.err
}

func (s *stubHub) FailSession(ctx context.Context, deviceID string, cause error) (storefront.SessionView, error) {
	s.failures = append(s.failures, cause)
	return s.view, s.err
}

func (s *stubHub) View(deviceID string) storefront.SessionView {
	return s.view
}

func (s *stubHub) AddItem(ctx context.Context, deviceID string, item cart.Line) (storefront.SessionView, error) {
	s.added = append(s.added, item)
	return s.view, s.err
}

func (s *stubHub) RemoveItem(ctx context.Context, deviceID string, productID, variantID uuid.UUID) (storefront.SessionView, error) {
	s.removals = append(s.removals, [2]uuid.UUID{productID, variantID})
	return s.view, s.err
}

func (s *stubHub) SetQuantity(ctx context.Context, deviceID string, productID, variantID uuid.UUID, quantity int) (storefront.SessionView, error) {
	s.setCalls = append(s.setCalls, quantity)
	return s.view, s.err
}

func (s *stubHub) SyncNow(ctx context.Context, deviceID string) (storefront.SessionView, error) {
	s.syncs = append(s.syncs, deviceID)
	return s.view, s.err
}

type stubVerifier struct {
	ok  bool
	err error
}

func (s stubVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	return s.ok, s.err
}

type stubLineResolver struct {
	line    cart.Line
	lineErr error

	listResult *catalog.ProductListResult
	listErr    error
	lastInput  catalog.ListProductsInput

	detail    *catalog.ProductDetail
	detailErr error
	lastSlug  string
}

func (s *stubLineResolver) ListProducts(ctx context.Context, input catalog.ListProductsInput) (*catalog.ProductListResult, error) {
	s.lastInput = input
	return s.listResult, s.listErr
}

func (s *stubLineResolver) GetProduct(ctx context.Context, slug string) (*catalog.ProductDetail, error) {
	s.lastSlug = slug
	return s.detail, s.detailErr
}

func (s *stubLineResolver) ResolveLine(ctx context.Context, productID, variantID uuid.UUID, quantity int) (cart.Line, error) {
	return s.line, s.lineErr
}

func deviceRequest(method, target string, body []byte, deviceID string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if deviceID != "" {
		req = req.WithContext(middleware.WithDeviceID(req.Context(), deviceID))
	}
	return req
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
}

func TestStorefrontHydrateGuest(t *testing.T) {
	hub := &stubHub{view: storefront.SessionView{DeviceID: "device-1"}}
	handler := StorefrontHydrate(hub, testJWTConfig(), stubVerifier{ok: true}, testLogger())

	req := deviceRequest(http.MethodPost, "/api/v1/storefront/hydrate", nil, "device-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(hub.resolves) != 1 {
		t.Fatalf("expected one resolve got %d", len(hub.resolves))
	}
	if hub.resolves[0].userID != nil {
		t.Fatalf("expected guest resolve got user %v", hub.resolves[0].userID)
	}
	if hub.resolves[0].deviceID != "device-1" {
		t.Fatalf("expected device-1 got %s", hub.resolves[0].deviceID)
	}
}

func TestStorefrontHydrateAuthenticated(t *testing.T) {
	cfg := testJWTConfig()
	hub := &stubHub{view: storefront.SessionView{DeviceID: "device-1"}}
	handler := StorefrontHydrate(hub, cfg, stubVerifier{ok: true}, testLogger())

	token, _, userID := mintTestToken(t, cfg)
	req := deviceRequest(http.MethodPost, "/api/v1/storefront/hydrate", nil, "device-1")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(hub.resolves) != 1 || hub.resolves[0].userID == nil {
		t.Fatalf("expected identified resolve got %+v", hub.resolves)
	}
	if *hub.resolves[0].userID != userID {
		t.Fatalf("expected user %s got %s", userID, *hub.resolves[0].userID)
	}
}

func TestStorefrontHydrateInvalidToken(t *testing.T) {
	hub := &stubHub{}
	handler := StorefrontHydrate(hub, testJWTConfig(), stubVerifier{ok: true}, testLogger())

	req := deviceRequest(http.MethodPost, "/api/v1/storefront/hydrate", nil, "device-1")
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if len(hub.resolves) != 0 {
		t.Fatalf("expected no resolve for invalid token")
	}
}

func TestStorefrontHydrateExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	hub := &stubHub{}
	handler := StorefrontHydrate(hub, cfg, stubVerifier{ok: true}, testLogger())

	token, err := pkgAuth.MintAccessToken(cfg, time.Now().Add(-2*time.Hour), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		JTI:    "expired-jti",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req := deviceRequest(http.MethodPost, "/api/v1/storefront/hydrate", nil, "device-1")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token got %d", rec.Code)
	}
}

func TestStorefrontHydrateRevokedSession(t *testing.T) {
	cfg := testJWTConfig()
	hub := &stubHub{}
	handler := StorefrontHydrate(hub, cfg, stubVerifier{ok: false}, testLogger())

	token, _, _ := mintTestToken(t, cfg)
	req := deviceRequest(http.MethodPost, "/api/v1/storefront/hydrate", nil, "device-1")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session got %d", rec.Code)
	}
	if len(hub.resolves) != 0 {
		t.Fatalf("expected no resolve for revoked session")
	}
}

func TestStorefrontHydrateSessionStoreDown(t *testing.T) {
	cfg := testJWTConfig()
	hub := &stubHub{view: storefront.SessionView{DeviceID: "device-1"}}
	handler := StorefrontHydrate(hub, cfg, stubVerifier{err: errors.New("redis timeout")}, testLogger())

	token, _, _ := mintTestToken(t, cfg)
	req := deviceRequest(http.MethodPost, "/api/v1/storefront/hydrate", nil, "device-1")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with degraded session got %d", rec.Code)
	}
	if len(hub.failures) != 1 {
		t.Fatalf("expected one fail-session call got %d", len(hub.failures))
	}
	if len(hub.resolves) != 0 {
		t.Fatalf("expected no identity resolve when session store is down")
	}
}

func TestStorefrontStateRequiresDevice(t *testing.T) {
	handler := StorefrontState(&stubHub{}, testLogger())

	req := deviceRequest(http.MethodGet, "/api/v1/storefront/state", nil, "")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without device got %d", rec.Code)
	}
}

func TestStorefrontStateReturnsView(t *testing.T) {
	hub := &stubHub{view: storefront.SessionView{DeviceID: "device-9"}}
	handler := StorefrontState(hub, testLogger())

	req := deviceRequest(http.MethodGet, "/api/v1/storefront/state", nil, "device-9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data storefront.SessionView `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.DeviceID != "device-9" {
		t.Fatalf("expected device-9 got %s", envelope.Data.DeviceID)
	}
}

func TestCartAddItemResolvesPriceServerSide(t *testing.T) {
	productID := uuid.New()
	variantID := uuid.New()
	line := cart.Line{
		ID:           uuid.New(),
		ProductID:    productID,
		VariantID:    variantID,
		Quantity:     2,
		PricePerUnit: decimal.NewFromFloat(12.50),
		TotalPrice:   decimal.NewFromFloat(25.00),
	}
	hub := &stubHub{view: storefront.SessionView{DeviceID: "device-1"}}
	catalogSvc := &stubLineResolver{line: line}
	handler := CartAddItem(hub, catalogSvc, testLogger())

	body := []byte(`{"product_id":"` + productID.String() + `","variant_id":"` + variantID.String() + `","quantity":2}`)
	req := deviceRequest(http.MethodPost, "/api/v1/storefront/cart/items", body, "device-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(hub.added) != 1 {
		t.Fatalf("expected one add got %d", len(hub.added))
	}
	if !hub.added[0].TotalPrice.Equal(decimal.NewFromFloat(25.00)) {
		t.Fatalf("expected resolved total 25.00 got %s", hub.added[0].TotalPrice)
	}
}

func TestCartAddItemUnknownVariant(t *testing.T) {
	hub := &stubHub{}
	catalogSvc := &stubLineResolver{lineErr: pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")}
	handler := CartAddItem(hub, catalogSvc, testLogger())

	body := []byte(`{"product_id":"` + uuid.NewString() + `","variant_id":"` + uuid.NewString() + `","quantity":1}`)
	req := deviceRequest(http.MethodPost, "/api/v1/storefront/cart/items", body, "device-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if len(hub.added) != 0 {
		t.Fatalf("expected no add for unknown variant")
	}
}

func TestCartAddItemRejectsZeroQuantity(t *testing.T) {
	handler := CartAddItem(&stubHub{}, &stubLineResolver{}, testLogger())

	body := []byte(`{"product_id":"` + uuid.NewString() + `","variant_id":"` + uuid.NewString() + `","quantity":0}`)
	req := deviceRequest(http.MethodPost, "/api/v1/storefront/cart/items", body, "device-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCartAddItemUninitializedSession(t *testing.T) {
	hub := &stubHub{err: pkgerrors.New(pkgerrors.CodeStateConflict, "session not initialized")}
	catalogSvc := &stubLineResolver{line: cart.Line{ID: uuid.New()}}
	handler := CartAddItem(hub, catalogSvc, testLogger())

	body := []byte(`{"product_id":"` + uuid.NewString() + `","variant_id":"` + uuid.NewString() + `","quantity":1}`)
	req := deviceRequest(http.MethodPost, "/api/v1/storefront/cart/items", body, "device-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestCartSetQuantityParsesLineIdentity(t *testing.T) {
	productID := uuid.New()
	variantID := uuid.New()
	hub := &stubHub{view: storefront.SessionView{DeviceID: "device-1"}}
	handler := CartSetQuantity(hub, testLogger())

	target := "/api/v1/storefront/cart/items/" + productID.String() + "/" + variantID.String()
	req := deviceRequest(http.MethodPatch, target, []byte(`{"quantity":4}`), "device-1")
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productId", productID.String())
	routeCtx.URLParams.Add("variantId", variantID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(hub.setCalls) != 1 || hub.setCalls[0] != 4 {
		t.Fatalf("expected quantity 4 forwarded got %+v", hub.setCalls)
	}
}

func TestCartSetQuantityInvalidLineIdentity(t *testing.T) {
	handler := CartSetQuantity(&stubHub{}, testLogger())

	req := deviceRequest(http.MethodPatch, "/api/v1/storefront/cart/items/nope/also-nope", []byte(`{"quantity":1}`), "device-1")
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productId", "nope")
	routeCtx.URLParams.Add("variantId", "also-nope")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCartRemoveItem(t *testing.T) {
	productID := uuid.New()
	variantID := uuid.New()
	hub := &stubHub{view: storefront.SessionView{DeviceID: "device-1"}}
	handler := CartRemoveItem(hub, testLogger())

	target := "/api/v1/storefront/cart/items/" + productID.String() + "/" + variantID.String()
	req := deviceRequest(http.MethodDelete, target, nil, "device-1")
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productId", productID.String())
	routeCtx.URLParams.Add("variantId", variantID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(hub.removals) != 1 || hub.removals[0][0] != productID || hub.removals[0][1] != variantID {
		t.Fatalf("expected removal of %s/%s got %+v", productID, variantID, hub.removals)
	}
}

func TestCartSyncFlushesDevice(t *testing.T) {
	hub := &stubHub{view: storefront.SessionView{DeviceID: "device-1"}}
	handler := CartSync(hub, testLogger())

	req := deviceRequest(http.MethodPost, "/api/v1/storefront/cart/sync", nil, "device-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(hub.syncs) != 1 || hub.syncs[0] != "device-1" {
		t.Fatalf("expected sync for device-1 got %+v", hub.syncs)
	}
}
