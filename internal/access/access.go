// Package access holds the fixed role→capability table. Checks run at
// handler entry and are reaffirmed inside the case and ombudsperson
// services.
package access

import (
	"context"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
)

// Capability is a named permission.
type Capability string

const (
	ManageTenants      Capability = "manage_tenants"
	ManageUsers        Capability = "manage_users"
	ViewAllCases       Capability = "view_all_cases"
	ViewAssignedCases  Capability = "view_assigned_cases"
	ManageCases        Capability = "manage_cases"
	AssignCases        Capability = "assign_cases"
	ViewAudit          Capability = "view_audit"
	ExportData         Capability = "export_data"
	ViewSubmissions    Capability = "view_submissions"
	CreateSubmission   Capability = "create_submission"
	ViewOwnSubmissions Capability = "view_own_submissions"
	AddFollowUp        Capability = "add_follow_up"
	AddNotes           Capability = "add_notes"
	UploadAttachments  Capability = "upload_attachments"
	SendNotifications  Capability = "send_notifications"
)

// capabilities is the authoritative role→capability table.
var capabilities = map[model.Role][]Capability{
	model.RoleAdmin: {
		ManageTenants, ManageUsers, ViewAllCases, ViewAudit,
		ExportData, ManageCases, ViewSubmissions,
	},
	model.RoleOmbudsperson: {
		ViewSubmissions, ManageCases, AssignCases, ViewAudit,
		ExportData, ViewAllCases, SendNotifications,
	},
	model.RoleFallbearbeiter: {
		ViewAssignedCases, ManageCases, AddNotes, UploadAttachments,
	},
	model.RoleMelder: {
		CreateSubmission, ViewOwnSubmissions, AddFollowUp,
	},
	model.RoleAuditor: {
		ViewAllCases, ViewAudit, ViewSubmissions, ExportData,
	},
}

// Has reports whether the role carries the capability.
func Has(role model.Role, cap Capability) bool {
	for _, c := range capabilities[role] {
		if c == cap {
			return true
		}
	}
	return false
}

// Require returns Forbidden unless the acting user carries the capability.
// A missing actor is Unauthenticated.
func Require(ctx context.Context, cap Capability) error {
	actor, ok := reqctx.ActorFrom(ctx)
	if !ok {
		return errs.Unauthenticated("Anmeldung erforderlich.")
	}
	if !Has(actor.Role, cap) {
		return errs.Forbidden("Keine Berechtigung für diese Aktion.")
	}
	return nil
}

// RequireRole returns Forbidden unless the actor has one of the roles.
func RequireRole(ctx context.Context, roles ...model.Role) error {
	actor, ok := reqctx.ActorFrom(ctx)
	if !ok {
		return errs.Unauthenticated("Anmeldung erforderlich.")
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return errs.Forbidden("Keine Berechtigung für diese Aktion.")
}
