package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
)

type fakeTenantStore struct {
	tenants map[string]*model.Tenant
}

func (f *fakeTenantStore) GetTenant(_ context.Context, id string) (*model.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, errs.NotFound("Mandant nicht gefunden.")
	}
	return t, nil
}

type fakeUserStore struct {
	users map[string]*model.User
}

func (f *fakeUserStore) GetUser(_ context.Context, _, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errs.NotFound("Benutzer nicht gefunden.")
	}
	return u, nil
}

func TestTenantResolution(t *testing.T) {
	store := &fakeTenantStore{tenants: map[string]*model.Tenant{
		"t-1": {ID: "t-1", Active: true},
		"t-2": {ID: "t-2", Active: false},
	}}

	var gotTenant string
	handler := Tenant(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant, _ = reqctx.TenantID(r.Context())
	}))

	// Valid tenant passes through.
	req := httptest.NewRequest(http.MethodGet, "/cases", nil)
	req.Header.Set("X-Tenant-ID", "t-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t-1", gotTenant)

	// Missing header is 401, never a default.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cases", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Inactive tenant is 401.
	req = httptest.NewRequest(http.MethodGet, "/cases", nil)
	req.Header.Set("X-Tenant-ID", "t-2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActorResolution(t *testing.T) {
	locked := time.Now().UTC().Add(time.Hour)
	store := &fakeUserStore{users: map[string]*model.User{
		"u-1": {ID: "u-1", Role: model.RoleOmbudsperson, Active: true},
		"u-2": {ID: "u-2", Role: model.RoleAdmin, Active: true, LockedUntil: &locked},
	}}

	var gotActor reqctx.Actor
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, _ = reqctx.ActorFrom(r.Context())
	})
	handler := Actor(store)(inner)

	withTenant := func(r *http.Request) *http.Request {
		return r.WithContext(reqctx.WithTenant(r.Context(), "t-1"))
	}

	// Role comes from the record.
	req := withTenant(httptest.NewRequest(http.MethodGet, "/cases", nil))
	req.Header.Set("X-User-ID", "u-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.RoleOmbudsperson, gotActor.Role)

	// Locked account is 423.
	req = withTenant(httptest.NewRequest(http.MethodGet, "/cases", nil))
	req.Header.Set("X-User-ID", "u-2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusLocked, rec.Code)

	// No header passes through unauthenticated.
	gotActor = reqctx.Actor{}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withTenant(httptest.NewRequest(http.MethodGet, "/cases", nil)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, gotActor.UserID)
}

func TestMetaExtractsTorHeaders(t *testing.T) {
	var got reqctx.Meta
	handler := Meta(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = reqctx.MetaFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/anonymous/submit", nil)
	req.Header.Set("X-Tor-Circuit-Id", "circuit-42")
	req.Header.Set("X-Tor-Hidden-Service", "true")
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "circuit-42", got.TorCircuitID)
	assert.True(t, got.TorHidden)
	assert.Equal(t, "203.0.113.5", got.IPAddress)
	assert.Equal(t, http.MethodPost, got.Method)
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// Allowed origin, preflight.
	req := httptest.NewRequest(http.MethodOptions, "/submissions", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	// Unknown origin gets no CORS grant.
	req = httptest.NewRequest(http.MethodGet, "/submissions", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
