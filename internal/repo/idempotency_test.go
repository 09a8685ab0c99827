package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newIdem(t *testing.T, migrate bool, now *time.Time) *Idempotency {
	t.Helper()
	r := NewIdempotency(newTestDB(t, migrate))
	if now != nil {
		r.now = func() time.Time { return *now }
	}
	return r
}

func TestIdempotency_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	r := newIdem(t, true, nil)

	if err := r.Save(ctx, "528112345678", "whatsapp", "k1", "sent", time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}
	status, err := r.Get(ctx, "528112345678", "whatsapp", "k1")
	if err != nil || status != "sent" {
		t.Fatalf("Get = (%q, %v)", status, err)
	}
	if ok, err := r.Exists(ctx, "528112345678", "whatsapp", "k1"); !ok || err != nil {
		t.Fatalf("Exists = (%v, %v)", ok, err)
	}
	if ok, err := r.Exists(ctx, "other", "whatsapp", "k1"); ok || err != nil {
		t.Fatalf("Exists(other user) = (%v, %v)", ok, err)
	}
	if ok, err := r.Live(ctx, "whatsapp", "k1"); !ok || err != nil {
		t.Fatalf("Live = (%v, %v)", ok, err)
	}
	if ok, _ := r.Live(ctx, "other-scope", "k1"); ok {
		t.Fatal("Live matched a different scope")
	}
}

func TestIdempotency_Duplicate(t *testing.T) {
	ctx := context.Background()
	r := newIdem(t, true, nil)

	if err := r.Save(ctx, "u", "s", "k", "ok", time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := r.Save(ctx, "u", "s", "k", "failed", time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestIdempotency_ExpiryAndReuse(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	r := newIdem(t, true, &now)

	if err := r.Save(ctx, "u", "s", "k", "ok", time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	now = now.Add(2 * time.Minute)

	if _, err := r.Get(ctx, "u", "s", "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired Get err = %v, want ErrNotFound", err)
	}
	if err := r.Save(ctx, "u", "s", "k", "chat", time.Minute); err != nil {
		t.Fatalf("re-Save after expiry: %v", err)
	}
	if status, _ := r.Get(ctx, "u", "s", "k"); status != "chat" {
		t.Fatalf("status = %q, want chat", status)
	}
}

func TestIdempotency_Purge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	r := newIdem(t, true, &now)

	_ = r.Save(ctx, "u", "s", "old", "ok", time.Minute)
	_ = r.Save(ctx, "u", "s", "new", "ok", time.Hour)
	now = now.Add(10 * time.Minute)

	n, err := r.Purge(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Purge = (%d, %v), want (1, nil)", n, err)
	}
}

func TestIdempotency_BlankKey(t *testing.T) {
	if _, err := newIdem(t, true, nil).Get(context.Background(), "u", "s", "  "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank key err = %v", err)
	}
}

// Each test gets its own shared-cache DSN, so this database has no tables.
func TestIdempotency_MissingTable(t *testing.T) {
	r := newIdem(t, false, nil)
	err := r.Save(context.Background(), "u", "s", "k", "ok", time.Minute)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected a plain error without the table, got %v", err)
	}
}
