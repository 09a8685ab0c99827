package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/intent"
	"github.com/tbourn/go-agenda-agent/internal/state"
)

// Slot sources for BookingMachine.
const (
	SlotSourceCalendar   = "calendar"
	SlotSourceCompletion = "completion"
)

const (
	msgSlotsHeader      = "Tengo estos horarios disponibles:"
	msgSlotsFooter      = "Responde con el número de la opción que prefieras."
	msgSlotInvalid      = "No encontré esa opción. Responde con un número del 1 al %d."
	msgOfficePrompt     = "Perfecto, %s. ¿En qué consultorio te queda mejor? Opciones: %s."
	msgOfficeInvalid    = "No reconocí el consultorio. Elige uno de: %s."
	msgBookingConfirmed = "Listo, tu cita quedó agendada para %s en el consultorio %s (%s)."
	msgBookingCaveat    = "\n\nNota: no pude registrarla en el calendario; te confirmaremos por este medio."
	msgBookingCancelled = "Cancelé la solicitud de cita."
	msgNoSlotsFormat    = "Por ahora no tengo horarios disponibles en los próximos días. Por favor llama directamente al %s."
	msgNoSlotsNoPhone   = "Por ahora no tengo horarios disponibles en los próximos días. Por favor llama directamente al consultorio."
	msgCalendarNoAuth   = "No tengo acceso al calendario. Autoriza de nuevo la cuenta de Google."
	msgCalendarFailed   = "Perdón, no pude consultar el calendario. Intenta de nuevo en un momento."
)

var bookingVocabulary = []string{"cita", "agendar", "consulta", "appointment"}

// WantsBooking reports whether text explicitly mentions scheduling.
func WantsBooking(text string) bool {
	clean := intent.Normalize(text)
	for _, w := range bookingVocabulary {
		if strings.Contains(clean, w) {
			return true
		}
	}
	return false
}

// BookingOptions configures a BookingMachine.
type BookingOptions struct {
	Planner     SlotPlanner
	Offices     *Gazetteer
	SlotSource  string
	ClinicPhone string
	Now         func() time.Time
}

// BookingMachine drives none → scheduling → choosing_office → confirmed.
// Like TriageMachine it expects the caller to hold the key's lock.
type BookingMachine struct {
	store      *state.Store
	cal        CalendarProvider
	completion CompletionProvider
	notify     Notifier
	opts       BookingOptions
	log        zerolog.Logger
}

// NewBookingMachine constructs a BookingMachine. completion is only used
// when opts.SlotSource is SlotSourceCompletion and may be nil otherwise.
func NewBookingMachine(store *state.Store, cal CalendarProvider, completion CompletionProvider, n Notifier, opts BookingOptions, log zerolog.Logger) *BookingMachine {
	if opts.Offices == nil {
		opts.Offices = NewGazetteer(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SlotSource == "" {
		opts.SlotSource = SlotSourceCalendar
	}
	return &BookingMachine{
		store:      store,
		cal:        cal,
		completion: completion,
		notify:     n,
		opts:       opts,
		log:        log.With().Str("component", "booking").Logger(),
	}
}

// Active reports whether key has a booking conversation in progress.
func (m *BookingMachine) Active(key string) bool {
	_, ok := m.store.Conversation(key)
	return ok
}

// Start computes availability and, when at least one slot exists, opens a
// conversation in the scheduling state.
func (m *BookingMachine) Start(ctx context.Context, t Turn, symptoms string) domain.Status {
	slots, err := m.availability(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			m.log.Warn().Err(err).Msg("calendar not authorized")
			notify(ctx, m.notify, t.ReplyTo, msgCalendarNoAuth)
			return domain.StatusNotAuthorized
		}
		m.log.Error().Err(err).Msg("availability lookup failed")
		notify(ctx, m.notify, t.ReplyTo, msgCalendarFailed)
		return domain.StatusFailed
	}

	offered := m.opts.Planner.Offer(slots)
	if len(offered) == 0 {
		m.store.LogEvent("booking.no_slots", t.Key)
		if m.opts.ClinicPhone != "" {
			notify(ctx, m.notify, t.ReplyTo, fmt.Sprintf(msgNoSlotsFormat, m.opts.ClinicPhone))
		} else {
			notify(ctx, m.notify, t.ReplyTo, msgNoSlotsNoPhone)
		}
		return domain.StatusNoSlots
	}

	now := m.opts.Now()
	m.store.SetConversation(t.Key, domain.AppointmentConversation{
		PatientKey:    t.Key,
		State:         domain.ConvScheduling,
		Symptoms:      strings.TrimSpace(symptoms),
		ProposedSlots: offered,
		CreatedAt:     now,
		LastUpdated:   now,
	})
	m.store.LogEvent("booking.started", fmt.Sprintf("%s - %d slots", t.Key, len(offered)))
	notify(ctx, m.notify, t.ReplyTo, slotList(offered))
	return domain.StatusWaitingSlot
}

// Handle continues an existing conversation. Without one it returns
// StatusOK and does nothing.
func (m *BookingMachine) Handle(ctx context.Context, t Turn) domain.Status {
	conv, ok := m.store.Conversation(t.Key)
	if !ok {
		return domain.StatusOK
	}
	if t.Intent == domain.IntentCancel || t.Intent == domain.IntentReject {
		m.store.ClearConversation(t.Key)
		m.store.LogEvent("booking.cancelled", t.Key)
		notify(ctx, m.notify, t.ReplyTo, msgBookingCancelled)
		return domain.StatusAppointmentCancelled
	}

	switch conv.State {
	case domain.ConvScheduling:
		return m.selectSlot(ctx, t, conv)
	case domain.ConvChoosingOffice:
		return m.selectOffice(ctx, t, conv)
	default:
		m.store.ClearConversation(t.Key)
		return domain.StatusOK
	}
}

func (m *BookingMachine) selectSlot(ctx context.Context, t Turn, conv domain.AppointmentConversation) domain.Status {
	n, err := strconv.Atoi(intent.Normalize(t.Text))
	if err != nil || n < 1 || n > len(conv.ProposedSlots) {
		notify(ctx, m.notify, t.ReplyTo, fmt.Sprintf(msgSlotInvalid, len(conv.ProposedSlots)))
		return domain.StatusWaitingSlot
	}

	chosen := conv.ProposedSlots[n-1]
	promoted := make([]domain.Slot, 0, len(conv.ProposedSlots))
	promoted = append(promoted, chosen)
	for i, s := range conv.ProposedSlots {
		if i != n-1 {
			promoted = append(promoted, s)
		}
	}
	conv.ProposedSlots = promoted
	conv.SelectedTime = chosen.Label
	conv.State = domain.ConvChoosingOffice
	conv.LastUpdated = m.opts.Now()
	m.store.SetConversation(t.Key, conv)

	notify(ctx, m.notify, t.ReplyTo, fmt.Sprintf(msgOfficePrompt, chosen.Label, m.officeNames()))
	return domain.StatusWaitingOffice
}

func (m *BookingMachine) selectOffice(ctx context.Context, t Turn, conv domain.AppointmentConversation) domain.Status {
	office, ok := m.opts.Offices.Match(t.Text)
	if !ok || len(conv.ProposedSlots) == 0 {
		notify(ctx, m.notify, t.ReplyTo, fmt.Sprintf(msgOfficeInvalid, m.officeNames()))
		return domain.StatusWaitingOffice
	}

	slot := conv.ProposedSlots[0]
	conv.SelectedOffice = office.Name
	conv.State = domain.ConvConfirming

	desc := "Paciente: " + conv.PatientKey
	if conv.Symptoms != "" {
		desc += "\nSíntomas: " + conv.Symptoms
	}
	_, calErr := m.cal.CreateEvent(ctx, domain.NewCalendarEvent{
		Summary:     fmt.Sprintf("Consulta - %s", conv.PatientKey),
		Description: desc,
		Location:    office.Location,
		Start:       slot.Start,
		End:         slot.End(),
	})
	m.store.ClearConversation(t.Key)

	msg := fmt.Sprintf(msgBookingConfirmed, conv.SelectedTime, office.Name, office.Location)
	if calErr != nil {
		m.log.Error().Err(calErr).Str("office", office.Name).Msg("appointment event creation failed")
		msg += msgBookingCaveat
	}
	m.store.LogEvent("booking.confirmed", fmt.Sprintf("%s - %s - %s", conv.PatientKey, conv.SelectedTime, office.Name))
	notify(ctx, m.notify, t.ReplyTo, msg)
	return domain.StatusAppointmentConfirmed
}

func (m *BookingMachine) availability(ctx context.Context) ([]domain.Slot, error) {
	now := m.opts.Now()
	start, end := m.opts.Planner.Window(now)
	events, err := m.cal.ListEvents(ctx, start, end, 250)
	if err != nil {
		return nil, err
	}
	if m.opts.SlotSource == SlotSourceCompletion && m.completion != nil {
		suggested, err := m.completion.SuggestSlots(ctx, events, m.opts.Planner.loc(), m.opts.Planner.HorizonDays)
		if err == nil {
			return m.opts.Planner.Filter(now, suggested, events), nil
		}
		m.log.Warn().Err(err).Msg("slot suggestion failed; using calendar computation")
	}
	return m.opts.Planner.Compute(now, events), nil
}

func (m *BookingMachine) officeNames() string {
	return strings.Join(m.opts.Offices.Names(), ", ")
}

func slotList(slots []domain.Slot) string {
	var b strings.Builder
	b.WriteString(msgSlotsHeader)
	for i, s := range slots {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s.Label)
	}
	b.WriteString("\n\n")
	b.WriteString(msgSlotsFooter)
	return b.String()
}
