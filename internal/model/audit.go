package model

import (
	"encoding/json"
	"time"
)

// AuditAction enumerates the audit event codes.
type AuditAction string

const (
	// Authentifizierung
	AuditLoginSuccess    AuditAction = "login_success"
	AuditLoginFailed     AuditAction = "login_failed"
	AuditLogout          AuditAction = "logout"
	AuditMFAEnabled      AuditAction = "mfa_enabled"
	AuditMFADisabled     AuditAction = "mfa_disabled"
	AuditPasswordChanged AuditAction = "password_changed"
	AuditAccountLocked   AuditAction = "account_locked"
	AuditAccountUnlocked AuditAction = "account_unlocked"

	// Hinweismeldungen
	AuditSubmissionCreated        AuditAction = "submission_created"
	AuditSubmissionViewed         AuditAction = "submission_viewed"
	AuditSubmissionUpdated        AuditAction = "submission_updated"
	AuditSubmissionDeleted        AuditAction = "submission_deleted"
	AuditEingangsbestaetigungSent AuditAction = "eingangsbestaetigung_sent"
	AuditRueckmeldungSent         AuditAction = "rueckmeldung_sent"

	// Fallbearbeitung
	AuditCaseCreated       AuditAction = "case_created"
	AuditCaseAssigned      AuditAction = "case_assigned"
	AuditCaseStatusChanged AuditAction = "case_status_changed"
	AuditCaseClosed        AuditAction = "case_closed"
	AuditCaseEscalated     AuditAction = "case_escalated"
	AuditCaseNoteAdded     AuditAction = "case_note_added"
	AuditCaseForwarded     AuditAction = "case_forwarded"
	AuditRecommendation    AuditAction = "ombudsperson_recommendation"

	// Dateien
	AuditAttachmentUploaded   AuditAction = "attachment_uploaded"
	AuditAttachmentDownloaded AuditAction = "attachment_downloaded"
	AuditAttachmentDeleted    AuditAction = "attachment_deleted"

	// Administration
	AuditUserCreated         AuditAction = "user_created"
	AuditUserUpdated         AuditAction = "user_updated"
	AuditUserDeleted         AuditAction = "user_deleted"
	AuditTenantCreated       AuditAction = "tenant_created"
	AuditTenantUpdated       AuditAction = "tenant_updated"
	AuditConfigChanged       AuditAction = "system_config_changed"

	// Sicherheit & Datenhaltung
	AuditDataExported       AuditAction = "data_exported"
	AuditDataDeleted        AuditAction = "data_deleted"
	AuditSuspiciousActivity AuditAction = "suspicious_activity"
	AuditRateLimitExceeded  AuditAction = "rate_limit_exceeded"
	AuditUnauthorizedAccess AuditAction = "unauthorized_access"
)

// AuditEntry is one append-only audit record. Integrity chains to the
// previous entry via HMAC-SHA256(prev_hash ‖ canonical payload).
type AuditEntry struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	Action       AuditAction     `json:"event_type"`
	Severity     string          `json:"severity"`
	TenantID     string          `json:"tenant_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Changes      json.RawMessage `json:"changes,omitempty"`
	Method       string          `json:"method,omitempty"`
	Path         string          `json:"path,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	Success      bool            `json:"success"`
	Integrity    string          `json:"integrity"`
	PrevHash     string          `json:"-"`
}
