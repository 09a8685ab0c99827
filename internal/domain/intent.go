package domain

// Intent is the closed set of meanings the router can assign to inbound text.
type Intent string

const (
	IntentIgnore      Intent = "ignore"
	IntentReply       Intent = "reply"
	IntentSend        Intent = "send"
	IntentConfirm     Intent = "confirm"
	IntentReject      Intent = "reject"
	IntentCancel      Intent = "cancel"
	IntentAgenda      Intent = "agenda"
	IntentCreateEvent Intent = "create_event"
	IntentCancelEvent Intent = "cancel_event"
	IntentChat        Intent = "chat"
	IntentHelpEmail   Intent = "help_email"
	IntentSummary     Intent = "summary"
	IntentFreeform    Intent = "freeform"
)

var allIntents = map[Intent]struct{}{
	IntentIgnore: {}, IntentReply: {}, IntentSend: {}, IntentConfirm: {},
	IntentReject: {}, IntentCancel: {}, IntentAgenda: {}, IntentCreateEvent: {},
	IntentCancelEvent: {}, IntentChat: {}, IntentHelpEmail: {}, IntentSummary: {},
	IntentFreeform: {},
}

// Valid reports whether i belongs to the closed intent set.
func (i Intent) Valid() bool {
	_, ok := allIntents[i]
	return ok
}

// IntentContext is what the router knows about the user's pending work.
type IntentContext struct {
	HasPendingEmail bool
	PendingSummary  string
}
