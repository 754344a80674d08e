package intake

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/crypto"
	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

const testTenant = "tenant-1"

var (
	validTitel        = "Unregelmäßigkeiten im Einkauf"
	validBeschreibung = strings.Repeat("Details zu den beobachteten Vorgängen. ", 3)
)

type fakeStore struct {
	reports     map[string]*model.Report
	deadlines   []*model.Deadline
	attachments []*model.Attachment
}

func newFakeStore() *fakeStore {
	return &fakeStore{reports: map[string]*model.Report{}}
}

func (f *fakeStore) CreateSubmission(_ context.Context, r *model.Report, deadlines []*model.Deadline, _ *model.AuditEntry) error {
	cp := *r
	f.reports[r.ID] = &cp
	f.deadlines = append(f.deadlines, deadlines...)
	return nil
}

func (f *fakeStore) GetReport(_ context.Context, _, reportID string) (*model.Report, error) {
	r, ok := f.reports[reportID]
	if !ok {
		return nil, errs.NotFound("Hinweis nicht gefunden.")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) GetReportByAccessCode(_ context.Context, accessCode string) (*model.Report, error) {
	for _, r := range f.reports {
		if r.AccessCode == accessCode {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errs.NotFound("Kein Vorgang zu diesem Zugangscode gefunden.")
}

func (f *fakeStore) ListReports(_ context.Context, _ string, _, _ int) ([]*model.Report, error) {
	out := make([]*model.Report, 0, len(f.reports))
	for _, r := range f.reports {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) InsertAttachment(_ context.Context, a *model.Attachment) error {
	f.attachments = append(f.attachments, a)
	return nil
}

func (f *fakeStore) ListAttachmentsByReport(_ context.Context, _, reportID string) ([]*model.Attachment, error) {
	var out []*model.Attachment
	for _, a := range f.attachments {
		if a.ReportID == reportID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeAuditStore struct{}

func (fakeAuditStore) InsertAuditEntry(context.Context, *model.AuditEntry) error { return nil }
func (fakeAuditStore) LastAuditIntegrity(context.Context, string) (string, error) {
	return "", nil
}

type fakeLoader struct{}

func (fakeLoader) GetTenantSettings(context.Context, string) (*model.TenantSettings, error) {
	return nil, nil
}

func (fakeLoader) SaveTenantSettings(context.Context, string, model.TenantSettings) error {
	return nil
}

func newTestService(t *testing.T, fs *fakeStore) *Service {
	t.Helper()
	env, err := crypto.NewEnvelope("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	auditor, err := audit.NewLogger("audit-hmac-key-0123456789abcdef01", fakeAuditStore{})
	require.NoError(t, err)
	svc := NewService(fs, env, tenantcfg.NewCache(fakeLoader{}), auditor)
	svc.clock = func() time.Time {
		return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	return svc
}

func tenantCtx() context.Context {
	return reqctx.WithTenant(context.Background(), testTenant)
}

func staffCtx(role model.Role) context.Context {
	return reqctx.WithActor(tenantCtx(), reqctx.Actor{UserID: "user-1", Role: role})
}

func TestSubmitStartsStatutoryTimers(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	resp, err := svc.Submit(tenantCtx(), SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryKorruption,
	})
	require.NoError(t, err)

	assert.Regexp(t, `^HW-2026-[0-9A-F]{4}$`, resp.ReferenceCode)
	assert.Len(t, resp.AccessCode, 43)

	// Defaults: 7 days acknowledgement, 90 days feedback.
	received := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, received, resp.EingegangenAm)
	assert.Equal(t, received.AddDate(0, 0, 7), resp.EingangsbestaetigungFrist)
	assert.Equal(t, received.AddDate(0, 0, 90), resp.RueckmeldungFrist)

	require.Len(t, fs.deadlines, 2)
	assert.Equal(t, model.DeadlineAck7d, fs.deadlines[0].Type)
	assert.Equal(t, model.DeadlineFeedback3m, fs.deadlines[1].Type)

	stored := fs.reports[resp.ReportID]
	assert.Equal(t, model.ReportEingegangen, stored.Status)
	assert.True(t, stored.IsAnonymous)
}

func TestSubmitAnonymousFlag(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	anonymous := true
	identified := false

	// The declared flag wins over the derivation from the contact fields.
	resp, err := svc.Submit(tenantCtx(), SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryKorruption,
		IsAnonymous:  &anonymous,
		MelderEmail:  "erika@example.org",
	})
	require.NoError(t, err)
	assert.True(t, fs.reports[resp.ReportID].IsAnonymous)

	resp, err = svc.Submit(tenantCtx(), SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryKorruption,
		IsAnonymous:  &identified,
	})
	require.NoError(t, err)
	assert.False(t, fs.reports[resp.ReportID].IsAnonymous)

	// Without the flag, identity decides.
	resp, err = svc.Submit(tenantCtx(), SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryKorruption,
		MelderName:   "Erika Beispiel",
	})
	require.NoError(t, err)
	assert.False(t, fs.reports[resp.ReportID].IsAnonymous)
}

func TestSubmitEncryptsContent(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	resp, err := svc.Submit(tenantCtx(), SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryBetrug,
		MelderName:   "Erika Mustermann",
		MelderEmail:  "erika@example.org",
	})
	require.NoError(t, err)

	stored := fs.reports[resp.ReportID]
	assert.False(t, stored.IsAnonymous)
	assert.NotContains(t, stored.TitelEnc, validTitel)
	assert.NotContains(t, stored.MelderNameEnc, "Erika")

	titel, err := svc.env.Decrypt(stored.TitelEnc, stored.ID+":titel")
	require.NoError(t, err)
	assert.Equal(t, validTitel, titel)

	// A field value is bound to its column: decrypting under another
	// context must fail.
	_, err = svc.env.Decrypt(stored.TitelEnc, stored.ID+":beschreibung")
	require.Error(t, err)
}

func TestSubmitValidation(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"titel zu kurz", SubmitRequest{Titel: "kurz", Beschreibung: validBeschreibung, Kategorie: model.CategoryBetrug}},
		{"beschreibung zu kurz", SubmitRequest{Titel: validTitel, Beschreibung: "zu wenig", Kategorie: model.CategoryBetrug}},
		{"unbekannte kategorie", SubmitRequest{Titel: validTitel, Beschreibung: validBeschreibung, Kategorie: "sonstwas"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(tenantCtx(), tt.req)
			assert.True(t, errs.Is(err, errs.KindValidation))
			assert.Empty(t, fs.reports)
		})
	}
}

func TestSubmitHashesIPInsteadOfStoringIt(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	ctx := reqctx.WithMeta(tenantCtx(), reqctx.Meta{IPAddress: "198.51.100.7"})
	resp, err := svc.Submit(ctx, SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryDatenschutz,
	})
	require.NoError(t, err)

	stored := fs.reports[resp.ReportID]
	assert.NotEmpty(t, stored.IPHash)
	assert.NotContains(t, stored.IPHash, "198.51.100.7")
	assert.Equal(t, crypto.SearchHash(testTenant, "198.51.100.7"), stored.IPHash)
}

func TestStatusByAccessCodeIsRedacted(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	resp, err := svc.Submit(tenantCtx(), SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryKorruption,
		MelderName:   "Erika Mustermann",
	})
	require.NoError(t, err)

	view, err := svc.StatusByAccessCode(context.Background(), resp.AccessCode)
	require.NoError(t, err)
	assert.Equal(t, resp.ReferenceCode, view.ReferenceCode)
	assert.Equal(t, model.ReportEingegangen, view.Status)
	assert.Equal(t, resp.RueckmeldungFrist, view.RueckmeldungFrist)
}

func TestStatusByUnknownAccessCode(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	_, err := svc.StatusByAccessCode(context.Background(), "gibt-es-nicht")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	_, err = svc.StatusByAccessCode(context.Background(), "")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestGetDecryptsForStaff(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	resp, err := svc.Submit(tenantCtx(), SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryBetrug,
		MelderEmail:  "erika@example.org",
	})
	require.NoError(t, err)

	detail, err := svc.Get(staffCtx(model.RoleOmbudsperson), resp.ReportID)
	require.NoError(t, err)
	assert.Equal(t, validTitel, detail.Titel)
	assert.Equal(t, validBeschreibung, detail.Beschreibung)
	assert.Equal(t, "erika@example.org", detail.MelderEmail)
}

func TestGetForbiddenForMelder(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	_, err := svc.Get(staffCtx(model.RoleMelder), "report-1")
	assert.True(t, errs.Is(err, errs.KindForbidden))
}

func TestListDecryptsTitles(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	_, err := svc.Submit(tenantCtx(), SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryKorruption,
	})
	require.NoError(t, err)

	items, err := svc.List(staffCtx(model.RoleAdmin), 50, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, validTitel, items[0].Titel)
}

func TestAddAttachmentUsesOpaqueStoredName(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	resp, err := svc.Submit(tenantCtx(), SubmitRequest{
		Titel:        validTitel,
		Beschreibung: validBeschreibung,
		Kategorie:    model.CategoryKorruption,
	})
	require.NoError(t, err)

	a, err := svc.AddAttachment(staffCtx(model.RoleFallbearbeiter), AttachmentRequest{
		ReportID:  resp.ReportID,
		Filename:  "beweisfoto.jpg",
		MimeType:  "image/jpeg",
		SizeBytes: 4096,
	})
	require.NoError(t, err)
	assert.NotContains(t, a.StoredFilename, "beweisfoto")
	assert.True(t, strings.HasSuffix(a.StoredFilename, ".bin"))

	list, err := svc.Attachments(staffCtx(model.RoleAdmin), resp.ReportID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "beweisfoto.jpg", list[0].Filename)
}
