// Package ombuds serves the external ombudsperson's restricted view:
// only cases that were explicitly handed over, with reporter identity
// masked and internal notes withheld.
package ombuds

import (
	"context"
	"time"

	"github.com/aitema/hinweis-backend/internal/access"
	"github.com/aitema/hinweis-backend/internal/crypto"
	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
)

// Masked replaces every reporter identity field in the ombudsperson view.
const Masked = "[vertraulich]"

// maskedNote replaces internal note bodies.
const maskedNote = "[intern]"

// Store is the persistence surface of the ombudsperson view.
type Store interface {
	ListForwardedCases(ctx context.Context, tenantID string) ([]*model.Case, error)
	GetCase(ctx context.Context, tenantID, caseID string) (*model.Case, error)
	GetReport(ctx context.Context, tenantID, reportID string) (*model.Report, error)
	ListCaseEvents(ctx context.Context, tenantID, caseID string) ([]*model.CaseEvent, error)
}

// Service implements the masked read access.
type Service struct {
	store Store
	env   *crypto.Envelope
}

// NewService wires the ombudsperson view.
func NewService(st Store, env *crypto.Envelope) *Service {
	return &Service{store: st, env: env}
}

// CaseSummary is one row of the forwarded-case list.
type CaseSummary struct {
	ID             string               `json:"id"`
	CaseNumber     string               `json:"case_number"`
	Status         model.CaseStatus     `json:"status"`
	Severity       model.Priority       `json:"severity"`
	ForwardedAt    *time.Time           `json:"forwarded_at,omitempty"`
	Recommendation model.Recommendation `json:"recommendation,omitempty"`
	ReviewedAt     *time.Time           `json:"reviewed_at,omitempty"`
}

// EventView is one history entry; internal note bodies are withheld.
type EventView struct {
	EventType   model.EventType   `json:"event_type"`
	OldStatus   *model.CaseStatus `json:"old_status,omitempty"`
	NewStatus   *model.CaseStatus `json:"new_status,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// CaseDetail is the masked full view of one forwarded case.
type CaseDetail struct {
	Summary CaseSummary `json:"case"`

	// Report content — decrypted, the ombudsperson assesses substance.
	Titel        string         `json:"titel"`
	Beschreibung string         `json:"beschreibung"`
	Kategorie    model.Category `json:"kategorie"`

	// Reporter identity — always masked, even when the report carries it.
	MelderName    string `json:"melder_name"`
	MelderEmail   string `json:"melder_email"`
	MelderTelefon string `json:"melder_telefon"`

	EingegangenAm     time.Time   `json:"eingegangen_am"`
	RueckmeldungFrist time.Time   `json:"rueckmeldung_frist"`
	Events            []EventView `json:"events"`
}

// ListCases returns every case handed to the ombudsperson of the tenant.
func (s *Service) ListCases(ctx context.Context) ([]CaseSummary, error) {
	if err := access.RequireRole(ctx, model.RoleOmbudsperson); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	cases, err := s.store.ListForwardedCases(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]CaseSummary, 0, len(cases))
	for _, c := range cases {
		out = append(out, summarize(c))
	}
	return out, nil
}

// GetCase returns the masked detail of one forwarded case. A case that
// was never handed over is Forbidden, not NotFound — the ombudsperson may
// know it exists, just not see it.
func (s *Service) GetCase(ctx context.Context, caseID string) (*CaseDetail, error) {
	if err := access.RequireRole(ctx, model.RoleOmbudsperson); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if c.ForwardedToOmbudspersonAt == nil {
		return nil, errs.Forbidden("Der Fall wurde nicht an die Ombudsperson übergeben.")
	}

	report, err := s.store.GetReport(ctx, tenantID, c.ReportID)
	if err != nil {
		return nil, err
	}
	titel, err := s.env.Decrypt(report.TitelEnc, report.ID+":titel")
	if err != nil {
		return nil, errs.Crypto(err)
	}
	beschreibung, err := s.env.Decrypt(report.BeschreibungEnc, report.ID+":beschreibung")
	if err != nil {
		return nil, errs.Crypto(err)
	}

	events, err := s.store.ListCaseEvents(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	detail := &CaseDetail{
		Summary:      summarize(c),
		Titel:        titel,
		Beschreibung: beschreibung,
		Kategorie:    report.Kategorie,

		MelderName:    Masked,
		MelderEmail:   Masked,
		MelderTelefon: Masked,

		EingegangenAm:     report.EingegangenAm,
		RueckmeldungFrist: report.RueckmeldungFrist,
	}
	for _, ev := range events {
		view := EventView{
			EventType:   ev.EventType,
			OldStatus:   ev.OldStatus,
			NewStatus:   ev.NewStatus,
			Description: ev.Description,
			CreatedAt:   ev.CreatedAt,
		}
		// Encrypted note bodies stay sealed towards the ombudsperson.
		if ev.DescriptionEnc != "" {
			view.Description = maskedNote
		}
		detail.Events = append(detail.Events, view)
	}
	return detail, nil
}

func summarize(c *model.Case) CaseSummary {
	return CaseSummary{
		ID:             c.ID,
		CaseNumber:     c.CaseNumber,
		Status:         c.Status,
		Severity:       c.Severity,
		ForwardedAt:    c.ForwardedToOmbudspersonAt,
		Recommendation: c.OmbudspersonRecommendation,
		ReviewedAt:     c.OmbudspersonReviewedAt,
	}
}
