// Package domain defines the typed models shared by the state store, the
// conversation machines, the scheduler and the collaborator adapters. Rows
// persisted with GORM (OAuth tokens, idempotency records) live here as well.
package domain

import "time"

// EmailStatus is the lifecycle state of a PendingEmailAction.
type EmailStatus string

const (
	EmailPending    EmailStatus = "pending"
	EmailDrafting   EmailStatus = "drafting"
	EmailDraftReady EmailStatus = "draft_ready"
	EmailApproved   EmailStatus = "approved"
	EmailIgnored    EmailStatus = "ignored"
)

// PendingEmailAction is an outstanding email-triage task awaiting a user
// decision. There is at most one per user key.
//
// Fields:
//   - ActionID: the provider message id of the source email.
//   - Sender / Subject: taken from the message headers.
//   - Summary: one-sentence summary produced by the completion provider.
//   - DraftReply: set once the user dictated a reply (status draft_ready).
type PendingEmailAction struct {
	ActionID   string      `json:"action_id"`
	Sender     string      `json:"sender"`
	Subject    string      `json:"subject"`
	Summary    string      `json:"summary"`
	CreatedAt  time.Time   `json:"created_at"`
	Status     EmailStatus `json:"status"`
	DraftReply string      `json:"draft_reply,omitempty"`
}

// HasDraft reports whether a non-empty draft reply has been captured.
func (p PendingEmailAction) HasDraft() bool { return p.DraftReply != "" }

// ConversationState is the state of an AppointmentConversation.
type ConversationState string

const (
	ConvInitial        ConversationState = "initial"
	ConvScheduling     ConversationState = "scheduling"
	ConvChoosingOffice ConversationState = "choosing_office"
	ConvConfirming     ConversationState = "confirming"
)

// Slot is a candidate appointment window. Slots are immutable once they have
// been offered; selection only reorders the proposed list.
type Slot struct {
	Start time.Time `json:"datetime"`
	Label string    `json:"display_label"`
	Date  string    `json:"date"`
	Time  string    `json:"time"`
}

// End returns the exclusive end of a one-hour slot.
func (s Slot) End() time.Time { return s.Start.Add(time.Hour) }

// AppointmentConversation tracks one patient's booking dialogue.
type AppointmentConversation struct {
	PatientKey     string            `json:"patient_key"`
	State          ConversationState `json:"state"`
	Symptoms       string            `json:"symptoms,omitempty"`
	ProposedSlots  []Slot            `json:"proposed_slots"`
	SelectedTime   string            `json:"selected_time,omitempty"`
	SelectedOffice string            `json:"selected_office,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastUpdated    time.Time         `json:"last_updated"`
}

// Clone returns a deep copy so callers never share the slot slice.
func (c AppointmentConversation) Clone() AppointmentConversation {
	out := c
	if c.ProposedSlots != nil {
		out.ProposedSlots = append([]Slot(nil), c.ProposedSlots...)
	}
	return out
}

// EventLogEntry is one observability record in the bounded event log.
type EventLogEntry struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
}
