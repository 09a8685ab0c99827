// Package intent converts raw inbound text into one intent from a closed set.
//
// Resolution happens in two steps. First a deterministic phrase table is
// evaluated in a fixed priority order (see rules). Only when nothing matches
// (IntentFreeform) and the router runs in command mode is an external
// classifier consulted; its answer is validated against a smaller subset and
// anything else, including classifier errors, becomes IntentChat.
package intent

import (
	"context"
	"strings"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

// Classifier is the completion-provider capability used for escalation.
type Classifier interface {
	ClassifyIntent(ctx context.Context, text string, ic domain.IntentContext) (domain.Intent, error)
}

type matchKind int

const (
	matchExact matchKind = iota
	matchPrefix
	matchAllOf
	matchContains
)

type rule struct {
	intent  domain.Intent
	kind    matchKind
	phrases []string
	// for matchAllOf: phrases[0] plus any of also must be contained
	also []string
}

// rules is the priority table. Stages run top to bottom and the first hit
// wins:
//
//  1. exact phrases, so "no enviar" is a rejection rather than a send;
//  2. prefixes for commands that carry an argument ("crear evento ...");
//  3. the compound help_email rule;
//  4. substrings of the explicit email verbs, ignore > reply > send.
var rules = []rule{
	{intent: domain.IntentIgnore, kind: matchExact, phrases: []string{"ignorar", "ignora", "ignore"}},
	{intent: domain.IntentReply, kind: matchExact, phrases: []string{"contestar", "responder", "responde"}},
	{intent: domain.IntentSend, kind: matchExact, phrases: []string{"enviar", "manda", "mandar"}},
	{intent: domain.IntentConfirm, kind: matchExact, phrases: []string{"si", "ok", "dale", "va", "envia", "envialo"}},
	{intent: domain.IntentReject, kind: matchExact, phrases: []string{"no", "nel", "nope", "no enviar", "no lo envies"}},
	{intent: domain.IntentAgenda, kind: matchExact, phrases: []string{"agenda", "proximos", "calendario"}},
	{intent: domain.IntentCancel, kind: matchExact, phrases: []string{"cancelar", "cancela"}},

	{intent: domain.IntentCreateEvent, kind: matchPrefix, phrases: []string{"crear evento"}},
	{intent: domain.IntentCancelEvent, kind: matchPrefix, phrases: []string{"cancelar evento", "cancela evento"}},
	{intent: domain.IntentSummary, kind: matchPrefix, phrases: []string{"resumen"}},

	{intent: domain.IntentHelpEmail, kind: matchAllOf, phrases: []string{"correo"}, also: []string{"escribir", "escribirme"}},

	{intent: domain.IntentIgnore, kind: matchContains, phrases: []string{"ignorar", "ignora"}},
	{intent: domain.IntentReply, kind: matchContains, phrases: []string{"contestar", "responder"}},
	{intent: domain.IntentSend, kind: matchContains, phrases: []string{"enviar", "manda"}},
}

// escalationSet is what the classifier may answer.
var escalationSet = map[domain.Intent]struct{}{
	domain.IntentAgenda:      {},
	domain.IntentCreateEvent: {},
	domain.IntentReply:       {},
	domain.IntentSend:        {},
	domain.IntentIgnore:      {},
	domain.IntentCancel:      {},
	domain.IntentChat:        {},
}

// Match runs only the deterministic table. It never returns an error and
// returns IntentFreeform when nothing matches.
func Match(text string) domain.Intent {
	clean := Normalize(text)
	if clean == "" {
		return domain.IntentFreeform
	}
	for _, r := range rules {
		if r.matches(clean) {
			return r.intent
		}
	}
	return domain.IntentFreeform
}

// MatchCommand reports whether text is an explicit command: an exact phrase
// or a command prefix. Substring-only hits do not count, so dictated text
// such as "te voy a responder mañana" is not mistaken for a command.
func MatchCommand(text string) (domain.Intent, bool) {
	clean := Normalize(text)
	if clean == "" {
		return domain.IntentFreeform, false
	}
	for _, r := range rules {
		if r.kind != matchExact && r.kind != matchPrefix {
			continue
		}
		if r.matches(clean) {
			return r.intent, true
		}
	}
	return domain.IntentFreeform, false
}

func (r rule) matches(clean string) bool {
	switch r.kind {
	case matchExact:
		for _, p := range r.phrases {
			if clean == p {
				return true
			}
		}
	case matchPrefix:
		for _, p := range r.phrases {
			if strings.HasPrefix(clean, p) {
				return true
			}
		}
	case matchAllOf:
		if !strings.Contains(clean, r.phrases[0]) {
			return false
		}
		for _, a := range r.also {
			if strings.Contains(clean, a) {
				return true
			}
		}
	case matchContains:
		for _, p := range r.phrases {
			if strings.Contains(clean, p) {
				return true
			}
		}
	}
	return false
}

// Router resolves intents, escalating free-form text to a Classifier when
// CommandMode is on.
type Router struct {
	Classifier  Classifier
	CommandMode bool
}

// NewRouter returns a Router. A nil classifier disables escalation.
func NewRouter(c Classifier, commandMode bool) *Router {
	return &Router{Classifier: c, CommandMode: commandMode}
}

// Route returns exactly one intent for text.
func (r *Router) Route(ctx context.Context, text string, ic domain.IntentContext) domain.Intent {
	if in := Match(text); in != domain.IntentFreeform {
		return in
	}
	return r.Escalate(ctx, text, ic)
}

// Escalate classifies text that the table could not resolve. Outside command
// mode, or without a classifier, it returns IntentFreeform unchanged.
func (r *Router) Escalate(ctx context.Context, text string, ic domain.IntentContext) domain.Intent {
	if r == nil || !r.CommandMode || r.Classifier == nil {
		return domain.IntentFreeform
	}
	in, err := r.Classifier.ClassifyIntent(ctx, text, ic)
	if err != nil {
		return domain.IntentChat
	}
	in = domain.Intent(strings.ToLower(strings.TrimSpace(string(in))))
	if _, ok := escalationSet[in]; !ok {
		return domain.IntentChat
	}
	return in
}
