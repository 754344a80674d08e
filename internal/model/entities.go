// Package model defines the domain entities and their closed enums.
//
// Entities reference each other by id only; traversals go through the
// repositories. Encrypted columns carry the envelope format
// base64(salt ‖ nonce ‖ ciphertext ‖ tag) and are never decrypted here.
package model

import (
	"encoding/json"
	"time"
)

// Tenant is a customer organization. All other entities belong to exactly
// one tenant; deleting a tenant cascades to all its data.
type Tenant struct {
	ID      string  `json:"id"`
	Slug    string  `json:"slug"`
	Name    string  `json:"name"`
	OrgSize OrgSize `json:"organization_size"`

	ContactEmail     string `json:"contact_email,omitempty"`
	OmbudspersonName string `json:"ombudsperson_name,omitempty"`
	OmbudspersonMail string `json:"ombudsperson_email,omitempty"`

	// Deadline overrides live in a single typed config object,
	// persisted as one JSON column.
	Config TenantSettings `json:"config"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantSettings holds per-tenant overrides of the statutory parameters.
// Legal bounds are enforced by tenantcfg.Validate, not here.
type TenantSettings struct {
	EingangsbestaetigungTage int  `json:"eingangsbestaetigung_tage"` // [1,7], default 7
	RueckmeldungTage         int  `json:"rueckmeldung_tage"`         // [30,90], default 90
	AufbewahrungJahre        int  `json:"aufbewahrung_jahre"`        // [3,10], default 3
	ReminderVorlaufTage      int  `json:"reminder_vorlauf_tage"`     // default 2
	AnonymousChannelEnabled  bool `json:"anonymous_channel_enabled"`
}

// User belongs to exactly one tenant. Email is unique per tenant, not global.
type User struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	DisplayName  string `json:"display_name,omitempty"`
	Role         Role   `json:"role"`

	MFAEnabled     bool       `json:"mfa_enabled"`
	FailedLogins   int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	Active         bool       `json:"active"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Report (Hinweis) is the central entity. Title, description and reporter
// identity fields are stored encrypted; everything else is clear.
type Report struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	ReferenceCode string `json:"reference_code"` // HW-YYYY-4hex
	AccessCode    string `json:"-"`              // base64url, >=256 bit

	// Encrypted envelope columns.
	TitelEnc          string `json:"-"`
	BeschreibungEnc   string `json:"-"`
	MelderNameEnc     string `json:"-"`
	MelderEmailEnc    string `json:"-"`
	MelderTelefonEnc  string `json:"-"`
	BetroffenePersEnc string `json:"-"`

	Kategorie   Category     `json:"kategorie"`
	Prioritaet  Priority     `json:"prioritaet"`
	Status      ReportStatus `json:"status"`
	Channel     Channel      `json:"channel"`
	Language    string       `json:"language"`
	IPHash      string       `json:"-"` // search hash, never the raw IP
	IsAnonymous bool         `json:"is_anonymous"`

	// Non-identity metadata, clear.
	AbteilungBetroffen string `json:"abteilung_betroffen,omitempty"`
	Zeitraum           string `json:"zeitraum,omitempty"`

	// Statutory deadline fields. Invariant:
	// EingangsbestaetigungFrist > EingegangenAm.
	EingegangenAm             time.Time  `json:"eingegangen_am"`
	EingangsbestaetigungFrist time.Time  `json:"eingangsbestaetigung_frist"`
	RueckmeldungFrist         time.Time  `json:"rueckmeldung_frist"`
	EingangsbestaetigungAm    *time.Time `json:"eingangsbestaetigung_am,omitempty"`
	RueckmeldungAm            *time.Time `json:"rueckmeldung_am,omitempty"`
	ArchivierungDatum         *time.Time `json:"archivierung_datum,omitempty"`
	LoeschungDatum            *time.Time `json:"loeschung_datum,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Case is the processing vessel around a report, 1:1 within a tenant.
type Case struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	ReportID   string     `json:"report_id"`
	CaseNumber string     `json:"case_number"` // SLUG-YYYY-NNNN
	Status     CaseStatus `json:"status"`
	// Snapshot of the status before the last transition.
	PreviousStatus *CaseStatus `json:"previous_status,omitempty"`

	AssigneeID string   `json:"assignee_id,omitempty"`
	CreatedBy  string   `json:"created_by,omitempty"`
	Severity   Priority `json:"severity"`

	Eskaliert   bool       `json:"eskaliert"`
	EskaliertAm *time.Time `json:"eskaliert_am,omitempty"`

	// Ombudsperson handoff.
	ForwardedToOmbudspersonAt  *time.Time     `json:"forwarded_to_ombudsperson_at,omitempty"`
	ForwardedToOmbudspersonBy  string         `json:"forwarded_to_ombudsperson_by,omitempty"`
	OmbudspersonRecommendation Recommendation `json:"ombudsperson_recommendation,omitempty"`
	OmbudspersonReviewedAt     *time.Time     `json:"ombudsperson_reviewed_at,omitempty"`
	OmbudspersonReviewedBy     string         `json:"ombudsperson_reviewed_by,omitempty"`
	OmbudspersonNotesEnc       string         `json:"-"`

	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	Abschlussgrund string     `json:"abschlussgrund,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseEvent is one append-only history entry on a case.
type CaseEvent struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenant_id"`
	CaseID    string      `json:"case_id"`
	EventType EventType   `json:"event_type"`
	OldStatus *CaseStatus `json:"old_status,omitempty"`
	NewStatus *CaseStatus `json:"new_status,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	// Free text; encrypted when it may contain identity.
	Description       string          `json:"description,omitempty"`
	DescriptionEnc    string          `json:"-"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	Internal          bool            `json:"internal"`
	VisibleToReporter bool            `json:"visible_to_reporter"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Deadline records one statutory timer. Owned by the report; CaseID is
// filled once a case is opened. A case has at most one open deadline of
// each type.
type Deadline struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	ReportID     string       `json:"report_id"`
	CaseID       string       `json:"case_id,omitempty"`
	Type         DeadlineType `json:"type"`
	DueAt        time.Time    `json:"due_at"`
	DoneAt       *time.Time   `json:"done_at,omitempty"`
	ReminderSent bool         `json:"reminder_sent"`
	Escalated    bool         `json:"escalated"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Done reports whether the deadline has been fulfilled.
func (d *Deadline) Done() bool { return d.DoneAt != nil }

// Attachment is metadata for an encrypted binary blob on a report.
// StoredFilename is UUID-derived and leaks nothing about the origin.
type Attachment struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ReportID       string    `json:"report_id"`
	Filename       string    `json:"filename"`
	StoredFilename string    `json:"-"`
	MimeType       string    `json:"mime_type"`
	SizeBytes      int64     `json:"size_bytes"`
	SHA256Plain    string    `json:"-"`
	SHA256Cipher   string    `json:"-"`
	Nonce          string    `json:"-"`
	Tag            string    `json:"-"`
	ScanResult     string    `json:"scan_result,omitempty"`
	UploadedBy     string    `json:"uploaded_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AnonSubmission is the parallel anonymous-channel report, identified only
// by its receipt code. No identity link ever.
type AnonSubmission struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	ReceiptCode string `json:"-"` // bare 16-char storage form
	Aktenzeichen string `json:"aktenzeichen"` // AH-YYYY-NNNNNN

	BeschreibungEnc string   `json:"-"`
	Kategorie       Category `json:"kategorie"`
	Status          ReportStatus `json:"status"`

	EingegangenAm             time.Time `json:"eingegangen_am"`
	EingangsbestaetigungFrist time.Time `json:"eingangsbestaetigung_frist"`
	RueckmeldungFrist         time.Time `json:"rueckmeldung_frist"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnonMessage attaches to an anonymous submission; direction-flagged,
// never identity-linked.
type AnonMessage struct {
	ID           string           `json:"id"`
	TenantID     string           `json:"tenant_id"`
	SubmissionID string           `json:"submission_id"`
	Direction    MessageDirection `json:"direction"`
	TextEnc      string           `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
}
