package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/larkspurhq/storefront-backend/api/middleware"
	"github.com/larkspurhq/storefront-backend/internal/sessions"
	"github.com/larkspurhq/storefront-backend/internal/users"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
)

type stubLoginService struct {
	resp    *sessions.LoginResponse
	err     error
	lastReq sessions.LoginRequest
}

func (s *stubLoginService) Login(ctx context.Context, req sessions.LoginRequest) (*sessions.LoginResponse, error) {
	s.lastReq = req
	return s.resp, s.err
}

func loginResponseFor(userID uuid.UUID) *sessions.LoginResponse {
	return &sessions.LoginResponse{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		User: &users.UserDTO{
			ID:       userID,
			Email:    "shopper@example.com",
			IsActive: true,
		},
	}
}

func TestAuthLoginSuccess(t *testing.T) {
	userID := uuid.New()
	svc := &stubLoginService{resp: loginResponseFor(userID)}
	hub := &stubHub{}
	handler := AuthLogin(svc, hub, testLogger())

	body := `{"email":"shopper@example.com","password":"hunter2!"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithDeviceID(req.Context(), "device-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastReq.Email != "shopper@example.com" {
		t.Fatalf("expected email forwarded got %s", svc.lastReq.Email)
	}

	var envelope struct {
		Data sessions.LoginResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.AccessToken != "access-token" {
		t.Fatalf("expected access token in payload got %s", envelope.Data.AccessToken)
	}
	if envelope.Data.User == nil || envelope.Data.User.ID != userID {
		t.Fatalf("expected user in payload got %+v", envelope.Data.User)
	}

	if len(hub.resolves) != 1 {
		t.Fatalf("expected one device resolve got %d", len(hub.resolves))
	}
	if hub.resolves[0].userID == nil || *hub.resolves[0].userID != userID {
		t.Fatalf("expected resolve with signed-in user got %+v", hub.resolves[0])
	}
}

func TestAuthLoginInvalidPayload(t *testing.T) {
	handler := AuthLogin(&stubLoginService{}, &stubHub{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"shopper@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAuthLoginWrongCredentials(t *testing.T) {
	svc := &stubLoginService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	hub := &stubHub{}
	handler := AuthLogin(svc, hub, testLogger())

	body := `{"email":"shopper@example.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithDeviceID(req.Context(), "device-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if len(hub.resolves) != 0 {
		t.Fatalf("expected no resolve on failed login got %d", len(hub.resolves))
	}
}

func TestAuthLoginHubFailureDoesNotFailLogin(t *testing.T) {
	userID := uuid.New()
	svc := &stubLoginService{resp: loginResponseFor(userID)}
	hub := &stubHub{err: pkgerrors.New(pkgerrors.CodeDependency, "hydration source down")}
	handler := AuthLogin(svc, hub, testLogger())

	body := `{"email":"shopper@example.com","password":"hunter2!"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithDeviceID(req.Context(), "device-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected login to succeed despite hub failure got %d", rec.Code)
	}
}
