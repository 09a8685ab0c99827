package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/state"
)

// User-facing triage messages.
const (
	msgArchived       = "Listo, archivé el correo."
	msgDictate        = "Perfecto. Dicta tu respuesta breve y yo preparo el borrador."
	msgSent           = "Enviado. Si quieres agregar seguimiento, dímelo."
	msgCancelled      = "Cancelado. No enviaré respuesta."
	msgDraftFormat    = "Tengo este borrador:\n\n%s\n\n¿Lo envío?"
	msgDraftDiscarded = "Va, descarté el borrador. Dicta de nuevo tu respuesta."
	msgNoPending      = "No tengo correos pendientes."
	msgNoDraft        = "Aún no hay borrador. Di \"contestar\" para dictar uno."
	msgMailNoAuth     = "No tengo acceso a tu correo. Autoriza de nuevo la cuenta de Google."
	msgMailFailed     = "Perdón, no pude completar la acción con tu correo. Intenta de nuevo en un momento."
)

// TriageMachine drives a PendingEmailAction through
// pending → drafting → draft_ready → sent, with ignore and cancel exits.
//
// Callers must hold the user key's lock (state.Store.Lock) for the whole
// Handle call.
type TriageMachine struct {
	store  *state.Store
	mail   MailProvider
	notify Notifier
	log    zerolog.Logger
}

// NewTriageMachine constructs a TriageMachine.
func NewTriageMachine(store *state.Store, mail MailProvider, n Notifier, log zerolog.Logger) *TriageMachine {
	return &TriageMachine{
		store:  store,
		mail:   mail,
		notify: n,
		log:    log.With().Str("component", "triage").Logger(),
	}
}

// Handles reports whether in is one of the intents the machine consumes.
func (m *TriageMachine) Handles(in domain.Intent) bool {
	switch in {
	case domain.IntentIgnore, domain.IntentReply, domain.IntentSend,
		domain.IntentConfirm, domain.IntentReject, domain.IntentCancel:
		return true
	}
	return false
}

// Drafting reports whether key has a pending action waiting for dictation.
func (m *TriageMachine) Drafting(key string) bool {
	p, ok := m.store.Pending(key)
	return ok && p.Status == domain.EmailDrafting
}

// Handle applies one turn. IntentFreeform is treated as dictated text and
// only has an effect in the drafting state.
func (m *TriageMachine) Handle(ctx context.Context, t Turn) domain.Status {
	p, ok := m.store.Pending(t.Key)
	if !ok {
		return m.noPending(ctx, t)
	}

	if t.Intent == domain.IntentCancel {
		m.store.ClearPending(t.Key)
		notify(ctx, m.notify, t.ReplyTo, msgCancelled)
		return domain.StatusCancelled
	}

	switch p.Status {
	case domain.EmailPending:
		return m.fromPending(ctx, t, p)
	case domain.EmailDrafting:
		return m.fromDrafting(ctx, t, p)
	case domain.EmailDraftReady:
		return m.fromDraftReady(ctx, t, p)
	default:
		// approved and ignored are terminal and never stored; drop stale values.
		m.store.ClearPending(t.Key)
		return m.noPending(ctx, t)
	}
}

func (m *TriageMachine) noPending(ctx context.Context, t Turn) domain.Status {
	switch t.Intent {
	case domain.IntentSend, domain.IntentConfirm, domain.IntentReject:
		notify(ctx, m.notify, t.ReplyTo, msgNoDraft)
		return domain.StatusNoDraft
	default:
		notify(ctx, m.notify, t.ReplyTo, msgNoPending)
		return domain.StatusNoPending
	}
}

func (m *TriageMachine) fromPending(ctx context.Context, t Turn, p domain.PendingEmailAction) domain.Status {
	switch t.Intent {
	case domain.IntentIgnore:
		if err := m.mail.Archive(ctx, p.ActionID); err != nil {
			return m.mailFailure(ctx, t, "archive", err)
		}
		m.store.ClearPending(t.Key)
		m.store.LogEvent("email.ignored", p.ActionID)
		notify(ctx, m.notify, t.ReplyTo, msgArchived)
		return domain.StatusIgnored
	case domain.IntentReply:
		p.Status = domain.EmailDrafting
		m.store.SetPending(t.Key, p)
		notify(ctx, m.notify, t.ReplyTo, msgDictate)
		return domain.StatusDrafting
	case domain.IntentSend, domain.IntentConfirm, domain.IntentReject:
		notify(ctx, m.notify, t.ReplyTo, msgNoDraft)
		return domain.StatusNoDraft
	default:
		return domain.StatusOK
	}
}

func (m *TriageMachine) fromDrafting(ctx context.Context, t Turn, p domain.PendingEmailAction) domain.Status {
	switch t.Intent {
	case domain.IntentFreeform:
		draft := strings.TrimSpace(t.Text)
		if draft == "" {
			notify(ctx, m.notify, t.ReplyTo, msgDictate)
			return domain.StatusDrafting
		}
		p.DraftReply = draft
		p.Status = domain.EmailDraftReady
		m.store.SetPending(t.Key, p)
		notify(ctx, m.notify, t.ReplyTo, fmt.Sprintf(msgDraftFormat, draft))
		return domain.StatusDraftReady
	case domain.IntentSend, domain.IntentConfirm, domain.IntentReject:
		notify(ctx, m.notify, t.ReplyTo, msgNoDraft)
		return domain.StatusNoDraft
	default:
		notify(ctx, m.notify, t.ReplyTo, msgDictate)
		return domain.StatusDrafting
	}
}

func (m *TriageMachine) fromDraftReady(ctx context.Context, t Turn, p domain.PendingEmailAction) domain.Status {
	switch t.Intent {
	case domain.IntentSend, domain.IntentConfirm:
		if !p.HasDraft() {
			notify(ctx, m.notify, t.ReplyTo, msgNoDraft)
			return domain.StatusNoDraft
		}
		to := replyAddress(p.Sender)
		subject := replySubject(p.Subject)
		if err := m.mail.SendReply(ctx, to, subject, p.DraftReply); err != nil {
			return m.mailFailure(ctx, t, "send_reply", err)
		}
		m.store.ClearPending(t.Key)
		m.store.LogEvent("email.replied", fmt.Sprintf("To %s - %s", to, subject))
		notify(ctx, m.notify, t.ReplyTo, msgSent)
		return domain.StatusSent
	case domain.IntentReject:
		p.DraftReply = ""
		p.Status = domain.EmailDrafting
		m.store.SetPending(t.Key, p)
		notify(ctx, m.notify, t.ReplyTo, msgDraftDiscarded)
		return domain.StatusDrafting
	default:
		notify(ctx, m.notify, t.ReplyTo, fmt.Sprintf(msgDraftFormat, p.DraftReply))
		return domain.StatusDraftReady
	}
}

// mailFailure keeps the pending action so the user can retry.
func (m *TriageMachine) mailFailure(ctx context.Context, t Turn, op string, err error) domain.Status {
	if errors.Is(err, ErrUnauthorized) {
		m.log.Warn().Err(err).Str("op", op).Msg("mail not authorized")
		notify(ctx, m.notify, t.ReplyTo, msgMailNoAuth)
		return domain.StatusNotAuthorized
	}
	m.log.Error().Err(err).Str("op", op).Msg("mail operation failed")
	notify(ctx, m.notify, t.ReplyTo, msgMailFailed)
	return domain.StatusFailed
}

// replyAddress extracts the bare address from a From header value such as
// "Ana <a@x.com>"; unparsable values are used as-is.
func replyAddress(sender string) string {
	if addr, err := mail.ParseAddress(sender); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(sender)
}

func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
