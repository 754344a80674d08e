// Package api exposes the REST surface: intake, case management, the
// anonymous channel, ombudsperson review, administration and reporting.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aitema/hinweis-backend/internal/access"
	"github.com/aitema/hinweis-backend/internal/anonchannel"
	"github.com/aitema/hinweis-backend/internal/casemgmt"
	"github.com/aitema/hinweis-backend/internal/intake"
	"github.com/aitema/hinweis-backend/internal/middleware"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/ombuds"
	"github.com/aitema/hinweis-backend/internal/report"
	"github.com/aitema/hinweis-backend/internal/reqctx"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

// Limiter throttles the unauthenticated lookup endpoints.
type Limiter interface {
	Allow(ctx context.Context, tenantID, circuitID string) error
}

// HealthCheck probes one dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server wires the services into the HTTP router.
type Server struct {
	intake   *intake.Service
	cases    *casemgmt.Service
	anon     *anonchannel.Service
	ombuds   *ombuds.Service
	reports  *report.Service
	admin    *AdminHandler
	settings *tenantcfg.Cache
	limiter  Limiter
	health   []HealthCheck

	tenants middleware.TenantStore
	users   middleware.UserStore
}

// NewServer builds the server around the fully wired services.
func NewServer(
	intakeSvc *intake.Service,
	caseSvc *casemgmt.Service,
	anonSvc *anonchannel.Service,
	ombudsSvc *ombuds.Service,
	reportSvc *report.Service,
	admin *AdminHandler,
	settings *tenantcfg.Cache,
	limiter Limiter,
	tenants middleware.TenantStore,
	users middleware.UserStore,
) *Server {
	return &Server{
		intake:   intakeSvc,
		cases:    caseSvc,
		anon:     anonSvc,
		ombuds:   ombudsSvc,
		reports:  reportSvc,
		admin:    admin,
		settings: settings,
		limiter:  limiter,
		tenants:  tenants,
		users:    users,
	}
}

// AddHealthCheck registers a dependency probe for /health.
func (s *Server) AddHealthCheck(name string, check func(ctx context.Context) error) {
	s.health = append(s.health, HealthCheck{Name: name, Check: check})
}

// Router assembles the full route table with the middleware chain.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(middleware.Tenant(s.tenants))
	v1.Use(middleware.Actor(s.users))

	// Intake
	v1.HandleFunc("/submissions", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/submissions", s.handleListSubmissions).Methods(http.MethodGet)
	v1.Handle("/submissions/status/{access_code}", s.rateLimited(s.handleSubmissionStatus)).Methods(http.MethodGet)
	v1.HandleFunc("/submissions/{id}", s.handleGetSubmission).Methods(http.MethodGet)
	v1.HandleFunc("/submissions/{id}/attachments", s.handleAddAttachment).Methods(http.MethodPost)
	v1.HandleFunc("/submissions/{id}/attachments", s.handleListAttachments).Methods(http.MethodGet)

	// Case lifecycle
	v1.HandleFunc("/cases", s.handleOpenCase).Methods(http.MethodPost)
	v1.HandleFunc("/cases", s.handleListCases).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{id}", s.handleGetCase).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{id}/status", s.handleTransition).Methods(http.MethodPut)
	v1.HandleFunc("/cases/{id}/assign", s.handleAssign).Methods(http.MethodPut)
	v1.HandleFunc("/cases/{id}/acknowledge", s.handleAcknowledge).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{id}/resolve", s.handleResolve).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{id}/forward-to-ombudsperson", s.handleForward).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{id}/notes", s.handleAddNote).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{id}/deadlines", s.handleCaseDeadlines).Methods(http.MethodGet)

	// Ombudsperson review
	v1.HandleFunc("/ombudsperson/cases", s.handleOmbudsList).Methods(http.MethodGet)
	v1.HandleFunc("/ombudsperson/cases/{id}", s.handleOmbudsGet).Methods(http.MethodGet)
	v1.HandleFunc("/ombudsperson/cases/{id}/recommendation", s.handleRecommend).Methods(http.MethodPost)

	// Anonymous channel
	v1.HandleFunc("/anonymous/submit", s.handleAnonSubmit).Methods(http.MethodPost)
	v1.Handle("/anonymous/status/{receipt_code}", s.rateLimited(s.handleAnonStatus)).Methods(http.MethodGet)
	v1.Handle("/anonymous/message/{receipt_code}", s.rateLimited(s.handleAnonMessage)).Methods(http.MethodPost)

	// Administration
	v1.HandleFunc("/admin/tenants", s.admin.CreateTenant).Methods(http.MethodPost)
	v1.HandleFunc("/admin/tenants", s.admin.ListTenants).Methods(http.MethodGet)
	v1.HandleFunc("/admin/tenants/{id}", s.admin.GetTenant).Methods(http.MethodGet)
	v1.HandleFunc("/admin/tenants/{id}", s.admin.UpdateTenant).Methods(http.MethodPut)
	v1.HandleFunc("/admin/tenants/{id}/settings", s.admin.GetSettings).Methods(http.MethodGet)
	v1.HandleFunc("/admin/tenants/{id}/settings", s.admin.UpdateSettings).Methods(http.MethodPut)
	v1.HandleFunc("/admin/users", s.admin.CreateUser).Methods(http.MethodPost)
	v1.HandleFunc("/admin/users", s.admin.ListUsers).Methods(http.MethodGet)
	v1.HandleFunc("/admin/users/{id}", s.admin.UpdateUser).Methods(http.MethodPut)
	v1.HandleFunc("/admin/users/{id}", s.admin.DeleteUser).Methods(http.MethodDelete)
	v1.HandleFunc("/admin/audit", s.handleAuditExport).Methods(http.MethodGet)

	// Reporting
	v1.HandleFunc("/reports/compliance", s.handleCompliance).Methods(http.MethodGet)
	v1.Handle("/metrics", s.gatedMetrics()).Methods(http.MethodGet)

	var h http.Handler = r
	h = middleware.Meta(h)
	h = middleware.CORS(allowedOrigins)(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.Logging(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.health))
	for _, hc := range s.health {
		if err := hc.Check(ctx); err != nil {
			checks[hc.Name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}

	body := map[string]interface{}{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	respondJSON(w, status, body)
}

// rateLimited throttles an unauthenticated endpoint per tenant and Tor
// circuit. Authenticated staff requests pass unthrottled.
func (s *Server) rateLimited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			if _, authenticated := reqctx.ActorFrom(r.Context()); !authenticated {
				tenantID, _ := reqctx.TenantID(r.Context())
				meta := reqctx.MetaFrom(r.Context())
				if err := s.limiter.Allow(r.Context(), tenantID, meta.TorCircuitID); err != nil {
					respondError(w, err)
					return
				}
			}
		}
		next(w, r)
	})
}

// gatedMetrics exposes the Prometheus registry to admins and
// ombudspersonen only.
func (s *Server) gatedMetrics() http.Handler {
	prom := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := access.RequireRole(r.Context(), model.RoleAdmin, model.RoleOmbudsperson); err != nil {
			respondError(w, err)
			return
		}
		prom.ServeHTTP(w, r)
	})
}
