package domain

// Status is the token returned to the webhook caller. Values are part of the
// external contract and must not change.
type Status string

const (
	StatusOK            Status = "ok"
	StatusNoPending     Status = "no_pending"
	StatusNoDraft       Status = "no_draft"
	StatusIgnored       Status = "ignored"
	StatusDrafting      Status = "drafting"
	StatusDraftReady    Status = "draft_ready"
	StatusSent          Status = "sent"
	StatusCancelled     Status = "cancelled"
	StatusNotAuthorized Status = "not_authorized"
	StatusFailed        Status = "failed"

	StatusAgenda             Status = "agenda"
	StatusEventCreated       Status = "event_created"
	StatusEventCancelled     Status = "event_cancelled"
	StatusEventNotFound      Status = "event_not_found"
	StatusNeedsClarification Status = "needs_clarification"
	StatusSummary            Status = "summary"
	StatusHelpEmail          Status = "help_email"
	StatusChat               Status = "chat"
	StatusEmergency          Status = "emergency"

	StatusWaitingSlot          Status = "waiting_slot_selection"
	StatusWaitingOffice        Status = "waiting_office_selection"
	StatusAppointmentConfirmed Status = "appointment_confirmed"
	StatusAppointmentCancelled Status = "appointment_cancelled"
	StatusNoSlots              Status = "no_slots"
)
