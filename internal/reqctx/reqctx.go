// Package reqctx carries the request-scoped values: active tenant, acting
// user, and request metadata. Handlers populate it; services read it.
// There is no ambient fallback — a missing tenant is an authentication
// failure, never a default.
package reqctx

import (
	"context"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	actorKey
	metaKey
)

// Actor is the authenticated user acting on the request.
type Actor struct {
	UserID string
	Role   model.Role
}

// Meta is the transport metadata recorded into audit entries.
type Meta struct {
	Method       string
	Path         string
	UserAgent    string
	IPAddress    string
	TorCircuitID string
	TorHidden    bool
}

// WithTenant injects the active tenant id.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantID returns the active tenant or an Unauthenticated error.
func TenantID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(tenantKey).(string)
	if !ok || id == "" {
		return "", errs.Unauthenticated("Kein Mandantenkontext vorhanden.")
	}
	return id, nil
}

// WithActor injects the acting user.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFrom returns the acting user, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// WithMeta injects request metadata.
func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, metaKey, m)
}

// MetaFrom returns the request metadata; zero value when absent.
func MetaFrom(ctx context.Context) Meta {
	m, _ := ctx.Value(metaKey).(Meta)
	return m
}
