package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/services"
)

var testLoc = time.FixedZone("UTC-6", -6*3600)

type captured struct {
	auth string
	req  chatRequest
}

// fakeAPI answers every completion with content and records the last request.
func fakeAPI(t *testing.T, status int, content string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		got.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got.req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newClient(url string) *Client {
	return New(Options{
		BaseURL: url,
		APIKey:  "sk-test",
		Model:   "test-model",
		Timeout: 5 * time.Second,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.Date(2025, 1, 6, 9, 0, 0, 0, testLoc) },
	})
}

func TestSummarize_SendsPromptAndAuth(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, "  Piden confirmar la reunión.  ")
	c := newClient(srv.URL)

	out, err := c.Summarize(context.Background(), "Reunión", "¿Confirmas?")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "Piden confirmar la reunión." {
		t.Fatalf("summary = %q", out)
	}
	if got.auth != "Bearer sk-test" {
		t.Fatalf("auth = %q", got.auth)
	}
	if got.req.Model != "test-model" || got.req.ResponseFormat != nil {
		t.Fatalf("request = %+v", got.req)
	}
	if len(got.req.Messages) != 2 || !strings.Contains(got.req.Messages[1].Content, "Reunión") {
		t.Fatalf("messages = %+v", got.req.Messages)
	}
}

func TestSummarize_TruncatesOnRuneBoundary(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, "ok")
	c := newClient(srv.URL)

	body := strings.Repeat("ñ", maxBodyChars+10)
	if _, err := c.Summarize(context.Background(), "Año", body); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	content := got.req.Messages[1].Content
	if !utf8.ValidString(content) {
		t.Fatalf("prompt is not valid UTF-8")
	}
	if n := strings.Count(content, "ñ"); n != maxBodyChars+1 { // +1 for "Año"
		t.Fatalf("kept %d runes of body, want %d", n-1, maxBodyChars)
	}
}

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hola", 10, "hola"},
		{"hola", 2, "ho"},
		{"canción", 6, "canció"},
		{"ññññ", 3, "ñññ"},
		{"ññ", 2, "ññ"},
		{"", 3, ""},
	}
	for _, tc := range cases {
		if got := truncateRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    domain.Intent
	}{
		{"label", `{"intent":" Agenda "}`, domain.Intent("agenda")},
		{"fenced", "```json\n{\"intent\":\"reply\"}\n```", domain.IntentReply},
		{"malformed", `not json`, domain.IntentChat},
		{"empty", `{}`, domain.IntentChat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, got := fakeAPI(t, http.StatusOK, tc.content)
			in, err := newClient(srv.URL).ClassifyIntent(context.Background(), "hola",
				domain.IntentContext{HasPendingEmail: true, PendingSummary: "factura"})
			if err != nil {
				t.Fatalf("ClassifyIntent: %v", err)
			}
			if in != tc.want {
				t.Fatalf("intent = %q, want %q", in, tc.want)
			}
			if got.req.ResponseFormat == nil || got.req.ResponseFormat.Type != "json_object" {
				t.Fatalf("response_format = %+v", got.req.ResponseFormat)
			}
			if !strings.Contains(got.req.Messages[1].Content, "factura") {
				t.Fatalf("pending context missing: %q", got.req.Messages[1].Content)
			}
		})
	}
}

func TestAnalyzeHealthQuery(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK,
		`{"is_emergency":false,"needs_appointment":true,"needs_more_info":false,"urgency":"MEDIUM","suggested_response":"Te ayudo a agendar."}`)
	a, err := newClient(srv.URL).AnalyzeHealthQuery(context.Background(), "me duele la cabeza", []string{"hola"})
	if err != nil {
		t.Fatalf("AnalyzeHealthQuery: %v", err)
	}
	if !a.NeedsAppointment || a.IsEmergency || a.Urgency != "medium" || a.SuggestedResponse != "Te ayudo a agendar." {
		t.Fatalf("analysis = %+v", a)
	}
	if !strings.Contains(got.req.Messages[1].Content, "- hola") {
		t.Fatalf("history missing: %q", got.req.Messages[1].Content)
	}
}

func TestAnalyzeHealthQuery_MalformedFallsBack(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, `{"is_emergency":`)
	a, err := newClient(srv.URL).AnalyzeHealthQuery(context.Background(), "x", nil)
	if err != nil {
		t.Fatalf("AnalyzeHealthQuery: %v", err)
	}
	if a.IsEmergency || a.NeedsAppointment || !a.NeedsMoreInfo || a.SuggestedResponse == "" {
		t.Fatalf("fallback = %+v", a)
	}
}

func TestParseEvent(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK,
		`{"title":"Dentista","start":"2025-01-07T16:00:00-06:00","end":"2025-01-07T17:00:00-06:00","location":null,"attendees":["a@x.com",""],"notes":null}`)
	ev, err := newClient(srv.URL).ParseEvent(context.Background(), "dentista mañana a las 4", testLoc)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Title != "Dentista" || ev.Start.Hour() != 16 || ev.End == nil || ev.End.Hour() != 17 {
		t.Fatalf("event = %+v", ev)
	}
	if len(ev.Attendees) != 1 || ev.Attendees[0] != "a@x.com" {
		t.Fatalf("attendees = %v", ev.Attendees)
	}
	if !strings.Contains(got.req.Messages[0].Content, "2025-01-06T09:00:00-06:00") {
		t.Fatalf("system prompt lacks now: %q", got.req.Messages[0].Content)
	}
}

func TestParseEvent_LocalTimeWithoutEnd(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, `{"title":"Junta","start":"2025-01-08 10:30"}`)
	ev, err := newClient(srv.URL).ParseEvent(context.Background(), "junta", testLoc)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	want := time.Date(2025, 1, 8, 10, 30, 0, 0, testLoc)
	if !ev.Start.Equal(want) || ev.End != nil {
		t.Fatalf("event = %+v", ev)
	}
}

func TestParseEvent_Unparseable(t *testing.T) {
	for _, content := range []string{
		`{"title":null,"start":"2025-01-08T10:00:00Z"}`,
		`{"title":"x","start":null}`,
		`{"title":"x","start":"el martes"}`,
		`garbage`,
	} {
		srv, _ := fakeAPI(t, http.StatusOK, content)
		_, err := newClient(srv.URL).ParseEvent(context.Background(), "algo", testLoc)
		if !errors.Is(err, services.ErrUnparseable) {
			t.Fatalf("%s: err = %v, want ErrUnparseable", content, err)
		}
	}
}

func TestSuggestSlots(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK,
		`{"slots":[{"datetime":"2025-01-06T10:00:00-06:00"},{"datetime":"bad"},{"datetime":"2025-01-06T12:00"}]}`)
	events := []domain.CalendarEvent{{
		Summary: "Ocupado",
		Start:   domain.EventTime{Time: time.Date(2025, 1, 6, 11, 0, 0, 0, testLoc)},
	}}
	slots, err := newClient(srv.URL).SuggestSlots(context.Background(), events, testLoc, 7)
	if err != nil {
		t.Fatalf("SuggestSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("slots = %+v", slots)
	}
	if slots[0].Label != "Lunes 2025-01-06 10:00" || slots[1].Time != "12:00" {
		t.Fatalf("slots = %+v", slots)
	}
	if !strings.Contains(got.req.Messages[1].Content, "Ocupado") {
		t.Fatalf("events missing from prompt: %q", got.req.Messages[1].Content)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusUnauthorized, "")
	if _, err := newClient(srv.URL).Summarize(context.Background(), "s", "b"); !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("401 err = %v", err)
	}

	srv, _ = fakeAPI(t, http.StatusInternalServerError, "")
	if _, err := newClient(srv.URL).ClassifyIntent(context.Background(), "x", domain.IntentContext{}); !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("500 err = %v", err)
	}

	c := newClient("http://127.0.0.1:1")
	if _, err := c.SuggestSlots(context.Background(), nil, testLoc, 7); !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("dial err = %v", err)
	}
}
