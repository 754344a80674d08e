// Package middleware carries the HTTP cross-cutting concerns: tenant
// resolution, actor resolution, request metadata, security headers, CORS
// and access logging.
package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
)

// TenantStore validates tenant ids against the database.
type TenantStore interface {
	GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error)
}

// UserStore loads the acting user.
type UserStore interface {
	GetUser(ctx context.Context, tenantID, userID string) (*model.User, error)
}

// Tenant resolves the active tenant from X-Tenant-ID, validated against
// the store. Requests without a valid tenant get 401 — there is no
// default tenant, ever.
func Tenant(store TenantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := r.Header.Get("X-Tenant-ID")
			if tenantID == "" {
				writeError(w, errs.Unauthenticated("Kein Mandantenkontext vorhanden."))
				return
			}
			tenant, err := store.GetTenant(r.Context(), tenantID)
			if err != nil || !tenant.Active {
				writeError(w, errs.Unauthenticated("Unbekannter oder inaktiver Mandant."))
				return
			}
			next.ServeHTTP(w, r.WithContext(reqctx.WithTenant(r.Context(), tenant.ID)))
		})
	}
}

// Actor resolves the authenticated user from the gateway-injected
// X-User-ID header. The role always comes from the user record, never
// from a header. Requests without the header pass through unauthenticated;
// the capability checks reject them where it matters.
func Actor(store UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-ID")
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}
			tenantID, err := reqctx.TenantID(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			user, err := store.GetUser(r.Context(), tenantID, userID)
			if err != nil || !user.Active {
				writeError(w, errs.Unauthenticated("Unbekanntes oder deaktiviertes Benutzerkonto."))
				return
			}
			if user.LockedUntil != nil && time.Now().UTC().Before(*user.LockedUntil) {
				writeError(w, errs.New(errs.KindAccountLocked, "Das Benutzerkonto ist vorübergehend gesperrt."))
				return
			}
			ctx := reqctx.WithActor(r.Context(), reqctx.Actor{UserID: user.ID, Role: user.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Meta records the transport metadata for audit entries, including the
// Tor headers set by the hidden-service frontend. The raw IP lives only
// in the request context; persistence hashes it.
func Meta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := reqctx.Meta{
			Method:       r.Method,
			Path:         r.URL.Path,
			UserAgent:    r.UserAgent(),
			IPAddress:    clientIP(r),
			TorCircuitID: r.Header.Get("X-Tor-Circuit-Id"),
			TorHidden:    r.Header.Get("X-Tor-Hidden-Service") == "true",
		}
		next.ServeHTTP(w, r.WithContext(reqctx.WithMeta(r.Context(), m)))
	})
}

// SecurityHeaders sets the response headers every endpoint carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// CORS allows the configured origins. An empty list allows none.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Tenant-ID, X-User-ID")
				h.Set("Access-Control-Max-Age", "600")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Logging writes one access-log line per request.
func Logging(next http.Handler) http.Handler {
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Printf("%s %s → %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// clientIP prefers the first X-Forwarded-For hop, then RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
