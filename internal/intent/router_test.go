package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

func TestMatch_PriorityTable(t *testing.T) {
	cases := map[string]domain.Intent{
		"ignorar":                           domain.IntentIgnore,
		"Ignóralo por favor":                domain.IntentIgnore,
		"contestar":                         domain.IntentReply,
		"quiero responder":                  domain.IntentReply,
		"enviar":                            domain.IntentSend,
		"Manda":                             domain.IntentSend,
		"mándalo ya":                        domain.IntentSend,
		"sí":                                domain.IntentConfirm,
		"Si!":                               domain.IntentConfirm,
		"envíalo":                           domain.IntentConfirm,
		"ok":                                domain.IntentConfirm,
		"no":                                domain.IntentReject,
		"no enviar":                         domain.IntentReject, // exact phrase beats the send substring
		"No lo envíes":                      domain.IntentReject,
		"agenda":                            domain.IntentAgenda,
		"Próximos":                          domain.IntentAgenda,
		"crear evento mañana 10am dentista": domain.IntentCreateEvent,
		"cancelar evento dentista":          domain.IntentCancelEvent,
		"cancela evento junta":              domain.IntentCancelEvent,
		"cancelar":                          domain.IntentCancel,
		"resumen":                           domain.IntentSummary,
		"resumen del correo":                domain.IntentSummary,
		"a que correo te puedo escribir":    domain.IntentHelpEmail,
		"Gracias, pago la próxima semana":   domain.IntentFreeform,
		"":                                  domain.IntentFreeform,
		"   ":                               domain.IntentFreeform,
		"me duele la cabeza":                domain.IntentFreeform,
	}
	for in, want := range cases {
		if got := Match(in); got != want {
			t.Errorf("Match(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestMatch_Stable(t *testing.T) {
	for i := 0; i < 20; i++ {
		if Match("enviar") != domain.IntentSend {
			t.Fatalf("priority must be deterministic")
		}
	}
}

type fakeClassifier struct {
	out   domain.Intent
	err   error
	calls int
	ctx   domain.IntentContext
}

func (f *fakeClassifier) ClassifyIntent(_ context.Context, _ string, ic domain.IntentContext) (domain.Intent, error) {
	f.calls++
	f.ctx = ic
	return f.out, f.err
}

func TestRoute_Escalation(t *testing.T) {
	ctx := context.Background()
	ic := domain.IntentContext{HasPendingEmail: true, PendingSummary: "factura"}

	fc := &fakeClassifier{out: "agenda"}
	r := NewRouter(fc, true)
	if got := r.Route(ctx, "que tengo hoy en la tarde", ic); got != domain.IntentAgenda {
		t.Fatalf("got %q; want agenda", got)
	}
	if !fc.ctx.HasPendingEmail || fc.ctx.PendingSummary != "factura" {
		t.Fatalf("pending context not forwarded: %+v", fc.ctx)
	}

	// Deterministic hits never reach the classifier.
	fc.calls = 0
	_ = r.Route(ctx, "ignorar", ic)
	if fc.calls != 0 {
		t.Fatalf("classifier called for deterministic match")
	}
}

func TestRoute_EscalationNormalizesToChat(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		fc   *fakeClassifier
	}{
		{"outside subset", &fakeClassifier{out: domain.IntentSummary}},
		{"unknown", &fakeClassifier{out: "book_flight"}},
		{"error", &fakeClassifier{err: errors.New("parse error")}},
		{"empty", &fakeClassifier{out: ""}},
	}
	for _, tc := range cases {
		r := NewRouter(tc.fc, true)
		if got := r.Route(ctx, "hola que tal", domain.IntentContext{}); got != domain.IntentChat {
			t.Errorf("%s: got %q; want chat", tc.name, got)
		}
	}

	r := NewRouter(&fakeClassifier{out: " SEND "}, true)
	if got := r.Route(ctx, "hola", domain.IntentContext{}); got != domain.IntentSend {
		t.Errorf("case/space tolerant classifier answer: got %q", got)
	}
}

func TestRoute_NoCommandMode(t *testing.T) {
	fc := &fakeClassifier{out: domain.IntentAgenda}
	r := NewRouter(fc, false)
	if got := r.Route(context.Background(), "hola", domain.IntentContext{}); got != domain.IntentFreeform {
		t.Fatalf("got %q; want freeform", got)
	}
	if fc.calls != 0 {
		t.Fatalf("classifier must not be called outside command mode")
	}
	var nilRouter *Router
	if nilRouter.Escalate(context.Background(), "x", domain.IntentContext{}) != domain.IntentFreeform {
		t.Fatalf("nil router should not escalate")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Sí,  ENVÍALO ": "si, envialo",
		"¿Próximos?":      "proximos",
		"no   lo envíes!": "no lo envies",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestMatchCommand(t *testing.T) {
	if in, ok := MatchCommand("Enviar"); !ok || in != domain.IntentSend {
		t.Fatalf("exact phrase: got %q %v", in, ok)
	}
	if in, ok := MatchCommand("crear evento junta 5pm"); !ok || in != domain.IntentCreateEvent {
		t.Fatalf("prefix: got %q %v", in, ok)
	}
	if _, ok := MatchCommand("te voy a responder mañana"); ok {
		t.Fatalf("substring-only text must not count as a command")
	}
	if _, ok := MatchCommand(""); ok {
		t.Fatalf("empty text is not a command")
	}
}
