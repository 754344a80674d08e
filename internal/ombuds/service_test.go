package ombuds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitema/hinweis-backend/internal/crypto"
	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
)

const testTenant = "tenant-1"

type fakeStore struct {
	cases   map[string]*model.Case
	reports map[string]*model.Report
	events  []*model.CaseEvent
}

func (f *fakeStore) ListForwardedCases(_ context.Context, _ string) ([]*model.Case, error) {
	var out []*model.Case
	for _, c := range f.cases {
		if c.ForwardedToOmbudspersonAt != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCase(_ context.Context, _, caseID string) (*model.Case, error) {
	c, ok := f.cases[caseID]
	if !ok {
		return nil, errs.NotFound("Fall nicht gefunden.")
	}
	return c, nil
}

func (f *fakeStore) GetReport(_ context.Context, _, reportID string) (*model.Report, error) {
	r, ok := f.reports[reportID]
	if !ok {
		return nil, errs.NotFound("Hinweis nicht gefunden.")
	}
	return r, nil
}

func (f *fakeStore) ListCaseEvents(_ context.Context, _, _ string) ([]*model.CaseEvent, error) {
	return f.events, nil
}

func ombudsCtx() context.Context {
	ctx := reqctx.WithTenant(context.Background(), testTenant)
	return reqctx.WithActor(ctx, reqctx.Actor{UserID: "ombuds-1", Role: model.RoleOmbudsperson})
}

func setup(t *testing.T) (*Service, *fakeStore, *crypto.Envelope) {
	t.Helper()
	env, err := crypto.NewEnvelope("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	fs := &fakeStore{
		cases:   map[string]*model.Case{},
		reports: map[string]*model.Report{},
	}
	return NewService(fs, env), fs, env
}

func seed(fs *fakeStore, env *crypto.Envelope, forwarded bool) (*model.Case, *model.Report) {
	r := &model.Report{
		ID:            "report-1",
		TenantID:      testTenant,
		ReferenceCode: "HW-2026-A1B2",
		Kategorie:     model.CategoryKorruption,
	}
	titelEnc, _ := env.Encrypt("Verdacht auf Bestechung", r.ID+":titel")
	beschEnc, _ := env.Encrypt("Ausführliche Beschreibung des Sachverhalts.", r.ID+":beschreibung")
	nameEnc, _ := env.Encrypt("Erika Mustermann", r.ID+":melder_name")
	r.TitelEnc, r.BeschreibungEnc, r.MelderNameEnc = titelEnc, beschEnc, nameEnc
	fs.reports[r.ID] = r

	c := &model.Case{
		ID:         "case-1",
		TenantID:   testTenant,
		ReportID:   r.ID,
		CaseNumber: "ACME-2026-0001",
		Status:     model.CaseInErmittlung,
		Severity:   model.PriorityHoch,
	}
	if forwarded {
		now := time.Now().UTC()
		c.ForwardedToOmbudspersonAt = &now
	}
	fs.cases[c.ID] = c
	return c, r
}

func TestListReturnsOnlyForwardedCases(t *testing.T) {
	svc, fs, env := setup(t)
	seed(fs, env, true)
	fs.cases["case-2"] = &model.Case{
		ID: "case-2", TenantID: testTenant, ReportID: "report-1",
		CaseNumber: "ACME-2026-0002", Status: model.CaseOffen,
	}

	cases, err := svc.ListCases(ombudsCtx())
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "case-1", cases[0].ID)
}

func TestListForbiddenForOtherRoles(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := reqctx.WithTenant(context.Background(), testTenant)
	ctx = reqctx.WithActor(ctx, reqctx.Actor{UserID: "admin-1", Role: model.RoleAdmin})

	_, err := svc.ListCases(ctx)
	assert.True(t, errs.Is(err, errs.KindForbidden))
}

func TestGetCaseMasksIdentity(t *testing.T) {
	svc, fs, env := setup(t)
	seed(fs, env, true)

	detail, err := svc.GetCase(ombudsCtx(), "case-1")
	require.NoError(t, err)

	// Substance is readable, identity never.
	assert.Equal(t, "Verdacht auf Bestechung", detail.Titel)
	assert.Equal(t, "Ausführliche Beschreibung des Sachverhalts.", detail.Beschreibung)
	assert.Equal(t, Masked, detail.MelderName)
	assert.Equal(t, Masked, detail.MelderEmail)
	assert.Equal(t, Masked, detail.MelderTelefon)
}

func TestGetCaseMasksInternalNotes(t *testing.T) {
	svc, fs, env := setup(t)
	seed(fs, env, true)
	noteEnc, _ := env.Encrypt("Rücksprache mit Melderin.", "case-1:note")
	fs.events = []*model.CaseEvent{
		{EventType: model.EventNoteAdded, DescriptionEnc: noteEnc, Internal: true},
		{EventType: model.EventStatusChange, Description: "Fall eröffnet."},
	}

	detail, err := svc.GetCase(ombudsCtx(), "case-1")
	require.NoError(t, err)
	require.Len(t, detail.Events, 2)
	assert.Equal(t, "[intern]", detail.Events[0].Description)
	assert.Equal(t, "Fall eröffnet.", detail.Events[1].Description)
}

func TestGetUnforwardedCaseIsForbidden(t *testing.T) {
	svc, fs, env := setup(t)
	seed(fs, env, false)

	_, err := svc.GetCase(ombudsCtx(), "case-1")
	assert.True(t, errs.Is(err, errs.KindForbidden))
}
