package anonchannel

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aitema/hinweis-backend/internal/access"
	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/crypto"
	"github.com/aitema/hinweis-backend/internal/deadline"
	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

const (
	minBeschreibungLen = 20
	maxMessageLen      = 4000

	// missDelay equalizes the response time of failed lookups so timing
	// reveals nothing about whether a receipt code exists.
	missDelay = 100 * time.Millisecond
)

// Store is the persistence surface of the anonymous channel.
type Store interface {
	CreateAnonSubmission(ctx context.Context, a *model.AnonSubmission, auditEntry *model.AuditEntry) error
	GetAnonSubmissionByReceipt(ctx context.Context, receiptCode string) (*model.AnonSubmission, error)
	NextAnonSequence(ctx context.Context, tenantID string, year int) (int, error)
	AddAnonMessage(ctx context.Context, m *model.AnonMessage) error
	ListAnonMessages(ctx context.Context, tenantID, submissionID string) ([]*model.AnonMessage, error)
}

// Service handles anonymous submissions and the receipt-code message box.
type Service struct {
	store    Store
	env      *crypto.Envelope
	settings *tenantcfg.Cache
	auditor  *audit.Logger
	limiter  *Limiter
	clock    func() time.Time
	sleep    func(time.Duration)
}

// NewService wires the anonymous channel.
func NewService(st Store, env *crypto.Envelope, settings *tenantcfg.Cache, auditor *audit.Logger, limiter *Limiter) *Service {
	return &Service{
		store:    st,
		env:      env,
		settings: settings,
		auditor:  auditor,
		limiter:  limiter,
		clock:    func() time.Time { return time.Now().UTC() },
		sleep:    time.Sleep,
	}
}

// SubmitRequest is one anonymous report. No identity fields exist.
type SubmitRequest struct {
	Beschreibung string         `json:"beschreibung"`
	Kategorie    model.Category `json:"kategorie"`
}

// SubmitResponse carries the receipt code — the reporter's only key to
// the submission, shown exactly once.
type SubmitResponse struct {
	ReceiptCode               string    `json:"receipt_code"` // display form XXXX-XXXX-XXXX-XXXX
	Aktenzeichen              string    `json:"aktenzeichen"`
	EingegangenAm             time.Time `json:"eingegangen_am"`
	EingangsbestaetigungFrist time.Time `json:"eingangsbestaetigung_frist"`
	RueckmeldungFrist         time.Time `json:"rueckmeldung_frist"`
}

// Submit stores an anonymous report. Rate limited per Tor circuit; the
// channel must be enabled in the tenant configuration.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	settings := s.settings.Get(ctx, tenantID)
	if !settings.AnonymousChannelEnabled {
		return nil, errs.Forbidden("Der anonyme Meldekanal ist für diese Organisation nicht aktiviert.")
	}

	meta := reqctx.MetaFrom(ctx)
	if err := s.limiter.Allow(ctx, tenantID, meta.TorCircuitID); err != nil {
		s.auditor.Record(ctx, audit.Event{
			Action:       model.AuditRateLimitExceeded,
			TenantID:     tenantID,
			ResourceType: "anon_submission",
			Method:       meta.Method,
			Path:         meta.Path,
			Success:      false,
		})
		return nil, err
	}

	if utf8.RuneCountInString(req.Beschreibung) < minBeschreibungLen {
		return nil, errs.Validation(fmt.Sprintf("Die Beschreibung muss mindestens %d Zeichen lang sein.", minBeschreibungLen)).
			WithField("beschreibung", fmt.Sprintf("mindestens %d Zeichen", minBeschreibungLen))
	}
	if !model.ValidCategory(req.Kategorie) {
		return nil, errs.Validation(fmt.Sprintf("Unbekannte Kategorie: %s", req.Kategorie)).
			WithField("kategorie", "ungültig")
	}

	now := s.clock()
	receipt, err := crypto.GenerateReceiptCode()
	if err != nil {
		return nil, errs.Internal(err)
	}
	seq, err := s.store.NextAnonSequence(ctx, tenantID, now.Year())
	if err != nil {
		return nil, err
	}

	sub := &model.AnonSubmission{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		ReceiptCode:  receipt,
		Aktenzeichen: crypto.Aktenzeichen(now.Year(), seq),
		Kategorie:    req.Kategorie,
		Status:       model.ReportEingegangen,

		EingegangenAm:             now,
		EingangsbestaetigungFrist: deadline.Ack(now, settings),
		RueckmeldungFrist:         deadline.Feedback(now, settings),
	}

	enc, err := s.env.Encrypt(req.Beschreibung, sub.ID+":beschreibung")
	if err != nil {
		return nil, errs.Crypto(err)
	}
	sub.BeschreibungEnc = enc

	entry := s.auditor.Build(ctx, audit.Event{
		Action:       model.AuditSubmissionCreated,
		TenantID:     tenantID,
		ResourceType: "anon_submission",
		ResourceID:   sub.ID,
		Changes:      map[string]string{"aktenzeichen": sub.Aktenzeichen, "kategorie": string(req.Kategorie)},
		Method:       meta.Method,
		Path:         meta.Path,
		Success:      true,
	})
	if err := s.store.CreateAnonSubmission(ctx, sub, entry); err != nil {
		s.auditor.Discard(entry)
		return nil, err
	}

	return &SubmitResponse{
		ReceiptCode:               crypto.FormatReceiptCode(receipt),
		Aktenzeichen:              sub.Aktenzeichen,
		EingegangenAm:             sub.EingegangenAm,
		EingangsbestaetigungFrist: sub.EingangsbestaetigungFrist,
		RueckmeldungFrist:         sub.RueckmeldungFrist,
	}, nil
}

// MessageView is one decrypted message in the box.
type MessageView struct {
	Direction model.MessageDirection `json:"direction"`
	Text      string                 `json:"text"`
	CreatedAt time.Time              `json:"created_at"`
}

// StatusView is what a valid receipt code resolves to.
type StatusView struct {
	Aktenzeichen              string             `json:"aktenzeichen"`
	Status                    model.ReportStatus `json:"status"`
	EingegangenAm             time.Time          `json:"eingegangen_am"`
	EingangsbestaetigungFrist time.Time          `json:"eingangsbestaetigung_frist"`
	RueckmeldungFrist         time.Time          `json:"rueckmeldung_frist"`
	Messages                  []MessageView      `json:"messages"`
}

// Lookup resolves a receipt code. An unknown and a malformed code are
// indistinguishable; failed lookups are delayed to equalize timing.
func (s *Service) Lookup(ctx context.Context, receiptCode string) (*StatusView, error) {
	sub, err := s.resolve(ctx, receiptCode)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.ListAnonMessages(ctx, sub.TenantID, sub.ID)
	if err != nil {
		return nil, err
	}
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		text, err := s.env.Decrypt(m.TextEnc, m.SubmissionID+":message")
		if err != nil {
			return nil, errs.Crypto(err)
		}
		views = append(views, MessageView{Direction: m.Direction, Text: text, CreatedAt: m.CreatedAt})
	}

	return &StatusView{
		Aktenzeichen:              sub.Aktenzeichen,
		Status:                    sub.Status,
		EingegangenAm:             sub.EingegangenAm,
		EingangsbestaetigungFrist: sub.EingangsbestaetigungFrist,
		RueckmeldungFrist:         sub.RueckmeldungFrist,
		Messages:                  views,
	}, nil
}

// ReporterMessage appends a reporter-side message via the receipt code.
func (s *Service) ReporterMessage(ctx context.Context, receiptCode, text string) error {
	sub, err := s.resolve(ctx, receiptCode)
	if err != nil {
		return err
	}
	return s.appendMessage(ctx, sub, model.DirectionReporter, text)
}

// HandlerMessage appends a staff-side reply to a submission. The handler
// addresses the submission by receipt code handed over through the case
// file, never by any identity.
func (s *Service) HandlerMessage(ctx context.Context, receiptCode, text string) error {
	if err := access.Require(ctx, access.ManageCases); err != nil {
		return err
	}
	sub, err := s.resolve(ctx, receiptCode)
	if err != nil {
		return err
	}
	return s.appendMessage(ctx, sub, model.DirectionHandler, text)
}

func (s *Service) appendMessage(ctx context.Context, sub *model.AnonSubmission, dir model.MessageDirection, text string) error {
	if text == "" {
		return errs.Validation("Die Nachricht darf nicht leer sein.").WithField("text", "erforderlich")
	}
	if utf8.RuneCountInString(text) > maxMessageLen {
		return errs.Validation(fmt.Sprintf("Die Nachricht darf höchstens %d Zeichen lang sein.", maxMessageLen)).
			WithField("text", fmt.Sprintf("höchstens %d Zeichen", maxMessageLen))
	}

	enc, err := s.env.Encrypt(text, sub.ID+":message")
	if err != nil {
		return errs.Crypto(err)
	}
	return s.store.AddAnonMessage(ctx, &model.AnonMessage{
		ID:           uuid.NewString(),
		TenantID:     sub.TenantID,
		SubmissionID: sub.ID,
		Direction:    dir,
		TextEnc:      enc,
	})
}

// resolve normalizes and validates a receipt code, then loads the
// submission. Every failure path reads the same from outside.
func (s *Service) resolve(ctx context.Context, receiptCode string) (*model.AnonSubmission, error) {
	code := crypto.NormalizeReceiptCode(receiptCode)
	if !crypto.ValidateReceiptCode(code) {
		s.sleep(missDelay)
		return nil, errs.NotFound("Kein Vorgang zu diesem Zugangscode gefunden.")
	}
	sub, err := s.store.GetAnonSubmissionByReceipt(ctx, code)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			s.sleep(missDelay)
		}
		return nil, err
	}
	return sub, nil
}
