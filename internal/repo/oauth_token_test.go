package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

func TestTokens_GetMissing(t *testing.T) {
	r := NewTokens(newTestDB(t, true))
	_, ok, err := r.GetToken(context.Background(), "google")
	if ok || err != nil {
		t.Fatalf("GetToken = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestTokens_UpsertKeepsRefreshToken(t *testing.T) {
	ctx := context.Background()
	r := NewTokens(newTestDB(t, true))
	exp := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	if err := r.SaveToken(ctx, domain.OAuthToken{
		Provider: "google", AccessToken: "a1", RefreshToken: "r1", TokenType: "Bearer", Expiry: exp,
	}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := r.SaveToken(ctx, domain.OAuthToken{
		Provider: "google", AccessToken: "a2", TokenType: "Bearer", Expiry: exp.Add(time.Hour),
	}); err != nil {
		t.Fatalf("SaveToken update: %v", err)
	}

	tok, ok, err := r.GetToken(ctx, "google")
	if !ok || err != nil {
		t.Fatalf("GetToken = (ok=%v, err=%v)", ok, err)
	}
	if tok.AccessToken != "a2" || tok.RefreshToken != "r1" || !tok.Expiry.Equal(exp.Add(time.Hour)) {
		t.Fatalf("token = %+v", tok)
	}
}

func TestTokens_DeleteAndValidation(t *testing.T) {
	ctx := context.Background()
	r := NewTokens(newTestDB(t, true))

	if err := r.SaveToken(ctx, domain.OAuthToken{AccessToken: "x"}); err == nil {
		t.Fatal("expected error for missing provider")
	}
	_ = r.SaveToken(ctx, domain.OAuthToken{Provider: "google", AccessToken: "a"})
	if err := r.DeleteToken(ctx, "google"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if _, ok, _ := r.GetToken(ctx, "google"); ok {
		t.Fatal("token still present after delete")
	}
}
