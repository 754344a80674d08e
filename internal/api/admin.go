package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/aitema/hinweis-backend/internal/access"
	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

// AdminStore is the persistence surface of the admin endpoints.
type AdminStore interface {
	CreateTenant(ctx context.Context, t *model.Tenant) error
	GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error)
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
	UpdateTenant(ctx context.Context, t *model.Tenant) error

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, tenantID, userID string) (*model.User, error)
	ListUsers(ctx context.Context, tenantID string) ([]*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	DeleteUser(ctx context.Context, tenantID, userID string) error
}

// AdminHandler serves tenant and user administration.
type AdminHandler struct {
	store    AdminStore
	settings *tenantcfg.Cache
	auditor  *audit.Logger
}

// NewAdminHandler wires the admin endpoints.
func NewAdminHandler(store AdminStore, settings *tenantcfg.Cache, auditor *audit.Logger) *AdminHandler {
	return &AdminHandler{store: store, settings: settings, auditor: auditor}
}

// TenantRequest is the create/update payload for a tenant.
type TenantRequest struct {
	Slug             string        `json:"slug"`
	Name             string        `json:"name"`
	OrgSize          model.OrgSize `json:"organization_size"`
	ContactEmail     string        `json:"contact_email,omitempty"`
	OmbudspersonName string        `json:"ombudsperson_name,omitempty"`
	OmbudspersonMail string        `json:"ombudsperson_email,omitempty"`
	Active           *bool         `json:"active,omitempty"`
}

func (h *AdminHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageTenants); err != nil {
		respondError(w, err)
		return
	}
	var req TenantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Slug == "" || req.Name == "" {
		respondError(w, errs.Validation("Slug und Name sind erforderlich.").
			WithField("slug", "erforderlich").WithField("name", "erforderlich"))
		return
	}

	now := time.Now().UTC()
	t := &model.Tenant{
		ID:               uuid.NewString(),
		Slug:             req.Slug,
		Name:             req.Name,
		OrgSize:          req.OrgSize,
		ContactEmail:     req.ContactEmail,
		OmbudspersonName: req.OmbudspersonName,
		OmbudspersonMail: req.OmbudspersonMail,
		Config:           tenantcfg.Default(),
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.store.CreateTenant(r.Context(), t); err != nil {
		respondError(w, err)
		return
	}
	h.record(r, model.AuditTenantCreated, "tenant", t.ID, nil)
	respondJSON(w, http.StatusCreated, t)
}

func (h *AdminHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageTenants); err != nil {
		respondError(w, err)
		return
	}
	tenants, err := h.store.ListTenants(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants})
}

func (h *AdminHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageTenants); err != nil {
		respondError(w, err)
		return
	}
	t, err := h.store.GetTenant(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *AdminHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageTenants); err != nil {
		respondError(w, err)
		return
	}
	t, err := h.store.GetTenant(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	var req TenantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Name != "" {
		t.Name = req.Name
	}
	if req.OrgSize != "" {
		t.OrgSize = req.OrgSize
	}
	if req.ContactEmail != "" {
		t.ContactEmail = req.ContactEmail
	}
	if req.OmbudspersonName != "" {
		t.OmbudspersonName = req.OmbudspersonName
	}
	if req.OmbudspersonMail != "" {
		t.OmbudspersonMail = req.OmbudspersonMail
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	t.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateTenant(r.Context(), t); err != nil {
		respondError(w, err)
		return
	}
	h.record(r, model.AuditTenantUpdated, "tenant", t.ID, req)
	respondJSON(w, http.StatusOK, t)
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageTenants); err != nil {
		respondError(w, err)
		return
	}
	settings := h.settings.Get(r.Context(), mux.Vars(r)["id"])
	respondJSON(w, http.StatusOK, settings)
}

// UpdateSettings replaces the deadline overrides. Legal bounds are
// enforced by the cache before anything is persisted.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageTenants); err != nil {
		respondError(w, err)
		return
	}
	var req model.TenantSettings
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	tenantID := mux.Vars(r)["id"]
	if err := h.settings.Update(r.Context(), tenantID, req); err != nil {
		respondError(w, err)
		return
	}
	h.record(r, model.AuditConfigChanged, "tenant_settings", tenantID, req)
	respondJSON(w, http.StatusOK, req)
}

// UserRequest is the create/update payload for a staff account.
type UserRequest struct {
	Email       string     `json:"email"`
	Password    string     `json:"password,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Role        model.Role `json:"role"`
	Active      *bool      `json:"active,omitempty"`
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageUsers); err != nil {
		respondError(w, err)
		return
	}
	tenantID, err := reqctx.TenantID(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	var req UserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Email == "" {
		respondError(w, errs.Validation("E-Mail-Adresse ist erforderlich.").WithField("email", "erforderlich"))
		return
	}
	if !model.ValidRole(req.Role) {
		respondError(w, errs.Validation("Unbekannte Rolle.").WithField("role", string(req.Role)))
		return
	}
	if len(req.Password) < 12 {
		respondError(w, errs.Validation("Das Passwort muss mindestens 12 Zeichen lang sein.").
			WithField("password", "mindestens 12 Zeichen"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, errs.Internal(err))
		return
	}

	now := time.Now().UTC()
	u := &model.User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.CreateUser(r.Context(), u); err != nil {
		respondError(w, err)
		return
	}
	h.record(r, model.AuditUserCreated, "user", u.ID, nil)
	respondJSON(w, http.StatusCreated, u)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageUsers); err != nil {
		respondError(w, err)
		return
	}
	tenantID, err := reqctx.TenantID(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	users, err := h.store.ListUsers(r.Context(), tenantID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageUsers); err != nil {
		respondError(w, err)
		return
	}
	tenantID, err := reqctx.TenantID(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	u, err := h.store.GetUser(r.Context(), tenantID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	var req UserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.DisplayName != "" {
		u.DisplayName = req.DisplayName
	}
	if req.Role != "" {
		if !model.ValidRole(req.Role) {
			respondError(w, errs.Validation("Unbekannte Rolle.").WithField("role", string(req.Role)))
			return
		}
		u.Role = req.Role
	}
	if req.Password != "" {
		if len(req.Password) < 12 {
			respondError(w, errs.Validation("Das Passwort muss mindestens 12 Zeichen lang sein.").
				WithField("password", "mindestens 12 Zeichen"))
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondError(w, errs.Internal(err))
			return
		}
		u.PasswordHash = string(hash)
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	u.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateUser(r.Context(), u); err != nil {
		respondError(w, err)
		return
	}
	h.record(r, model.AuditUserUpdated, "user", u.ID, nil)
	respondJSON(w, http.StatusOK, u)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(r.Context(), access.ManageUsers); err != nil {
		respondError(w, err)
		return
	}
	tenantID, err := reqctx.TenantID(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	userID := mux.Vars(r)["id"]
	if err := h.store.DeleteUser(r.Context(), tenantID, userID); err != nil {
		respondError(w, err)
		return
	}
	h.record(r, model.AuditUserDeleted, "user", userID, nil)
	respondJSON(w, http.StatusOK, map[string]string{"status": "gelöscht"})
}

func (h *AdminHandler) record(r *http.Request, action model.AuditAction, resourceType, resourceID string, changes interface{}) {
	tenantID, _ := reqctx.TenantID(r.Context())
	actor, _ := reqctx.ActorFrom(r.Context())
	meta := reqctx.MetaFrom(r.Context())
	h.auditor.Record(r.Context(), audit.Event{
		Action:       action,
		TenantID:     tenantID,
		UserID:       actor.UserID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
		Method:       meta.Method,
		Path:         meta.Path,
		IPAddress:    meta.IPAddress,
		Success:      true,
	})
}
