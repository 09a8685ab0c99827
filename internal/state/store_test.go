package state

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

func TestPending_SingleSlot(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.SetPending("521", domain.PendingEmailAction{ActionID: fmt.Sprintf("m%d", i), Status: domain.EmailPending})
		got, ok := s.Pending("521")
		if !ok || got.ActionID != fmt.Sprintf("m%d", i) {
			t.Fatalf("after set #%d got %+v ok=%v", i, got, ok)
		}
	}
	if s.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d; want 1", s.PendingCount())
	}
	s.ClearPending("521")
	if _, ok := s.Pending("521"); ok {
		t.Fatalf("expected cleared")
	}
	s.ClearPending("missing") // no-op
}

func TestPending_ReturnsCopy(t *testing.T) {
	s := New()
	s.SetPending("k", domain.PendingEmailAction{ActionID: "a", Status: domain.EmailPending})
	got, _ := s.Pending("k")
	got.Status = domain.EmailDrafting
	again, _ := s.Pending("k")
	if again.Status != domain.EmailPending {
		t.Fatalf("mutating a read value leaked into the store")
	}
}

func TestConversation_CopyAndClear(t *testing.T) {
	s := New()
	c := domain.AppointmentConversation{PatientKey: "p", State: domain.ConvScheduling, ProposedSlots: []domain.Slot{{Label: "x"}}}
	s.SetConversation("p", c)
	c.ProposedSlots[0].Label = "mutated"

	got, ok := s.Conversation("p")
	if !ok || got.ProposedSlots[0].Label != "x" {
		t.Fatalf("stored conversation aliases caller slice: %+v", got)
	}
	if s.ConversationCount() != 1 {
		t.Fatalf("ConversationCount = %d", s.ConversationCount())
	}
	s.ClearConversation("p")
	if _, ok := s.Conversation("p"); ok {
		t.Fatalf("expected cleared")
	}
}

func TestHistory_Bounded(t *testing.T) {
	s := New(WithHistoryTurns(3))
	for i := 0; i < 5; i++ {
		s.AppendHistory("k", fmt.Sprint(i))
	}
	h := s.History("k")
	if len(h) != 3 || h[0] != "2" || h[2] != "4" {
		t.Fatalf("history = %v", h)
	}
}

func TestReminderDedup(t *testing.T) {
	s := New()
	if s.WasReminderSent("e1:60") {
		t.Fatalf("fresh store should not report sent")
	}
	if !s.MarkReminderSent("e1:60") {
		t.Fatalf("first mark should be new")
	}
	if s.MarkReminderSent("e1:60") {
		t.Fatalf("second mark should not be new")
	}
	if !s.WasReminderSent("e1:60") {
		t.Fatalf("expected sent")
	}
}

func TestReminderDedup_ConcurrentMarkOnlyOneWins(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkReminderSent("ev:10") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d; want 1", wins)
	}
}

func TestEmailSeen(t *testing.T) {
	s := New()
	s.MarkEmailSeen("m1")
	if !s.WasEmailSeen("m1") || s.WasEmailSeen("m2") {
		t.Fatalf("seen set mismatch")
	}
}

func TestEvents_MostRecentFirst(t *testing.T) {
	base := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	tick := 0
	s := New(WithEventLogCapacity(3), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))
	for i := 0; i < 4; i++ {
		s.LogEvent("k", fmt.Sprint(i))
	}
	ev := s.Events(0)
	if len(ev) != 3 {
		t.Fatalf("len = %d; want 3", len(ev))
	}
	if ev[0].Detail != "3" || ev[2].Detail != "1" {
		t.Fatalf("order = %+v", ev)
	}
	if got := s.Events(1); len(got) != 1 || got[0].Detail != "3" {
		t.Fatalf("limit 1 = %+v", got)
	}
	if s.EventCapacity() != 3 {
		t.Fatalf("capacity = %d", s.EventCapacity())
	}
}

func TestClaimRecommendationDate(t *testing.T) {
	s := New()
	prev, ok := s.ClaimRecommendationDate("2025-01-06")
	if !ok || prev != "" {
		t.Fatalf("first claim = (%q,%v)", prev, ok)
	}
	if _, ok := s.ClaimRecommendationDate("2025-01-06"); ok {
		t.Fatalf("second claim same day must fail")
	}
	if prev, ok := s.ClaimRecommendationDate("2025-01-07"); !ok || prev != "2025-01-06" {
		t.Fatalf("next day claim = (%q,%v)", prev, ok)
	}
	s.SetLastRecommendationDate("x")
	if s.LastRecommendationDate() != "x" {
		t.Fatalf("set/get mismatch")
	}
}

func TestLock_SerializesSameKey(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("521")
			defer unlock()
			a, _ := s.Pending("521")
			counter++
			a.Summary = fmt.Sprint(counter)
			s.SetPending("521", a)
		}()
	}
	wg.Wait()
	got, _ := s.Pending("521")
	if got.Summary != "100" || counter != 100 {
		t.Fatalf("lost update: summary=%q counter=%d", got.Summary, counter)
	}
	if s.locks.Len() != 0 {
		t.Fatalf("idle key entries should be released, have %d", s.locks.Len())
	}
}
