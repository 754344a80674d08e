package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitema/hinweis-backend/internal/anonchannel"
	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/crypto"
	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/infra"
	"github.com/aitema/hinweis-backend/internal/intake"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

const testTenant = "tenant-1"

type fakeStore struct {
	tenants map[string]*model.Tenant
	users   map[string]*model.User
	reports map[string]*model.Report
	created []*model.Tenant
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: map[string]*model.Tenant{
			testTenant: {ID: testTenant, Slug: "acme", Name: "ACME GmbH", Active: true},
		},
		users: map[string]*model.User{
			"admin-1":  {ID: "admin-1", Role: model.RoleAdmin, Active: true},
			"melder-1": {ID: "melder-1", Role: model.RoleMelder, Active: true},
		},
		reports: make(map[string]*model.Report),
	}
}

func (f *fakeStore) GetTenant(_ context.Context, id string) (*model.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, errs.NotFound("Mandant nicht gefunden.")
	}
	return t, nil
}

func (f *fakeStore) GetUser(_ context.Context, _, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errs.NotFound("Benutzer nicht gefunden.")
	}
	return u, nil
}

// intake.Store

func (f *fakeStore) CreateSubmission(_ context.Context, r *model.Report, _ []*model.Deadline, _ *model.AuditEntry) error {
	f.reports[r.ID] = r
	return nil
}

func (f *fakeStore) GetReport(_ context.Context, _, id string) (*model.Report, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, errs.NotFound("Meldung nicht gefunden.")
	}
	return r, nil
}

func (f *fakeStore) GetReportByAccessCode(_ context.Context, code string) (*model.Report, error) {
	for _, r := range f.reports {
		if r.AccessCode == code {
			return r, nil
		}
	}
	return nil, errs.NotFound("Kein Vorgang zu diesem Zugangscode gefunden.")
}

func (f *fakeStore) ListReports(_ context.Context, _ string, _, _ int) ([]*model.Report, error) {
	var out []*model.Report
	for _, r := range f.reports {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) InsertAttachment(context.Context, *model.Attachment) error { return nil }

func (f *fakeStore) ListAttachmentsByReport(context.Context, string, string) ([]*model.Attachment, error) {
	return nil, nil
}

// AdminStore

func (f *fakeStore) CreateTenant(_ context.Context, t *model.Tenant) error {
	f.tenants[t.ID] = t
	f.created = append(f.created, t)
	return nil
}

func (f *fakeStore) ListTenants(context.Context) ([]*model.Tenant, error) { return nil, nil }
func (f *fakeStore) UpdateTenant(context.Context, *model.Tenant) error    { return nil }

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) ListUsers(context.Context, string) ([]*model.User, error) { return nil, nil }
func (f *fakeStore) UpdateUser(context.Context, *model.User) error            { return nil }
func (f *fakeStore) DeleteUser(context.Context, string, string) error         { return nil }

// tenantcfg.Loader

func (f *fakeStore) GetTenantSettings(context.Context, string) (*model.TenantSettings, error) {
	return nil, nil
}

func (f *fakeStore) SaveTenantSettings(context.Context, string, model.TenantSettings) error {
	return nil
}

type fakeAuditStore struct{}

func (fakeAuditStore) InsertAuditEntry(context.Context, *model.AuditEntry) error { return nil }
func (fakeAuditStore) LastAuditIntegrity(context.Context, string) (string, error) {
	return "", nil
}

func newTestRouter(t *testing.T) (http.Handler, *fakeStore) {
	t.Helper()

	fs := newFakeStore()
	env, err := crypto.NewEnvelope("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	auditor, err := audit.NewLogger("audit-hmac-key-0123456789abcdef01", fakeAuditStore{})
	require.NoError(t, err)
	settings := tenantcfg.NewCache(fs)

	intakeSvc := intake.NewService(fs, env, settings, auditor)
	admin := NewAdminHandler(fs, settings, auditor)
	limiter := anonchannel.NewLimiter(infra.NewMemoryKV())

	srv := NewServer(intakeSvc, nil, nil, nil, nil, admin, settings, limiter, fs, fs)
	return srv.Router(nil), fs
}

func asJSON(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func TestHealthNeedsNoTenant(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRejectsUnknownTenant(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	req.Header.Set("X-Tenant-ID", "unbekannt")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Unbekannter oder inaktiver Mandant.", body["error"])
}

func TestSubmitReturnsCodes(t *testing.T) {
	router, fs := newTestRouter(t)

	payload := map[string]string{
		"titel":        "Unregelmäßigkeiten im Einkauf",
		"beschreibung": strings.Repeat("Im Rahmen der Rechnungsprüfung sind Abweichungen aufgefallen. ", 2),
		"kategorie":    string(model.CategoryKorruption),
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", asJSON(t, payload))
	req.Header.Set("X-Tenant-ID", testTenant)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ReferenceCode string `json:"reference_code"`
		AccessCode    string `json:"access_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Regexp(t, `^HW-\d{4}-[0-9A-F]{4}$`, resp.ReferenceCode)
	assert.Len(t, resp.AccessCode, 43)
	assert.Len(t, fs.reports, 1)
}

func TestSubmitAcceptsAnonymousFlag(t *testing.T) {
	router, fs := newTestRouter(t)

	payload := map[string]interface{}{
		"titel":        "Unregelmäßigkeiten im Einkauf",
		"beschreibung": strings.Repeat("Im Rahmen der Rechnungsprüfung sind Abweichungen aufgefallen. ", 2),
		"kategorie":    string(model.CategoryKorruption),
		"is_anonymous": true,
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", asJSON(t, payload))
	req.Header.Set("X-Tenant-ID", testTenant)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, fs.reports, 1)
	for _, r := range fs.reports {
		assert.True(t, r.IsAnonymous)
	}
}

func TestSubmitValidationError(t *testing.T) {
	router, _ := newTestRouter(t)

	payload := map[string]string{
		"titel":        "kurz",
		"beschreibung": "zu kurz",
		"kategorie":    string(model.CategoryKorruption),
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", asJSON(t, payload))
	req.Header.Set("X-Tenant-ID", testTenant)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Fields)
}

func TestStaffEndpointNeedsActor(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions", nil)
	req.Header.Set("X-Tenant-ID", testTenant)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminCreateTenant(t *testing.T) {
	router, fs := newTestRouter(t)

	payload := map[string]string{"slug": "beispiel", "name": "Beispiel AG"}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/tenants", asJSON(t, payload))
	req.Header.Set("X-Tenant-ID", testTenant)
	req.Header.Set("X-User-ID", "admin-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, fs.created, 1)
	assert.Equal(t, "beispiel", fs.created[0].Slug)
	assert.True(t, fs.created[0].Active)
}

func TestAdminEndpointForbiddenForMelder(t *testing.T) {
	router, _ := newTestRouter(t)

	payload := map[string]string{"slug": "x", "name": "X"}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/tenants", asJSON(t, payload))
	req.Header.Set("X-Tenant-ID", testTenant)
	req.Header.Set("X-User-ID", "melder-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminCreateUserHashesPassword(t *testing.T) {
	router, fs := newTestRouter(t)

	payload := map[string]string{
		"email":    "ombud@example.org",
		"password": "sehr-langes-passwort",
		"role":     string(model.RoleOmbudsperson),
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users", asJSON(t, payload))
	req.Header.Set("X-Tenant-ID", testTenant)
	req.Header.Set("X-User-ID", "admin-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created *model.User
	for _, u := range fs.users {
		if u.Email == "ombud@example.org" {
			created = u
		}
	}
	require.NotNil(t, created)
	assert.NotEqual(t, "sehr-langes-passwort", created.PasswordHash)
	assert.True(t, strings.HasPrefix(created.PasswordHash, "$2a$"))
	// The hash never leaves the server.
	assert.NotContains(t, rec.Body.String(), created.PasswordHash)
}

func TestMetricsGated(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	req.Header.Set("X-Tenant-ID", testTenant)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	req.Header.Set("X-Tenant-ID", testTenant)
	req.Header.Set("X-User-ID", "admin-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusLookupRateLimited(t *testing.T) {
	router, _ := newTestRouter(t)

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/status/unbekannt", nil)
		req.Header.Set("X-Tenant-ID", testTenant)
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
}

func TestStaffLookupNotRateLimited(t *testing.T) {
	router, _ := newTestRouter(t)

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/status/unbekannt", nil)
		req.Header.Set("X-Tenant-ID", testTenant)
		req.Header.Set("X-User-ID", "admin-1")
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	// Unknown access code, but never throttled.
	assert.Equal(t, http.StatusNotFound, last.Code)
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
}
