// Package google adapts Gmail and Google Calendar to the assistant's mail
// and calendar contracts. Credentials come from a one-time OAuth consent
// flow and are persisted through a TokenStore; refreshed tokens are written
// back as they are minted.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/services"
)

// Provider is the key OAuth tokens are stored under.
const Provider = "google"

// DefaultScopes covers reading/archiving and sending mail plus calendar access.
var DefaultScopes = []string{gmail.GmailModifyScope, gmail.GmailSendScope, calendar.CalendarScope}

// TokenStore persists the single Google credential.
type TokenStore interface {
	GetToken(ctx context.Context, provider string) (domain.OAuthToken, bool, error)
	SaveToken(ctx context.Context, tok domain.OAuthToken) error
}

// Auth runs the consent flow and hands out authorized HTTP clients.
type Auth struct {
	cfg   *oauth2.Config
	store TokenStore
	log   zerolog.Logger
}

// NewAuth builds an Auth. Empty scopes use DefaultScopes.
func NewAuth(clientID, clientSecret, redirectURL string, scopes []string, store TokenStore, log zerolog.Logger) *Auth {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &Auth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     googleoauth.Endpoint,
		},
		store: store,
		log:   log.With().Str("component", "google_auth").Logger(),
	}
}

// WithEndpoint overrides the OAuth endpoint; tests point it at httptest.
func (a *Auth) WithEndpoint(ep oauth2.Endpoint) *Auth {
	a.cfg.Endpoint = ep
	return a
}

// Configured reports whether client credentials are present.
func (a *Auth) Configured() bool {
	return a.cfg.ClientID != "" && a.cfg.ClientSecret != ""
}

// AuthCodeURL returns the consent URL. Offline access and forced consent
// make Google issue a refresh token every time.
func (a *Auth) AuthCodeURL(state string) string {
	return a.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for a token and persists it.
func (a *Auth) Exchange(ctx context.Context, code string) error {
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: exchange code: %v", services.ErrUnauthorized, err)
	}
	if err := a.store.SaveToken(ctx, toRow(tok)); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	a.log.Info().Bool("refresh_token", tok.RefreshToken != "").Msg("google account authorized")
	return nil
}

// Authorized reports whether a stored credential exists.
func (a *Auth) Authorized(ctx context.Context) bool {
	_, ok, err := a.store.GetToken(ctx, Provider)
	return err == nil && ok
}

// Client returns an HTTP client that signs requests with the stored token,
// refreshing and re-persisting it when needed.
func (a *Auth) Client(ctx context.Context) (*http.Client, error) {
	row, ok, err := a.store.GetToken(ctx, Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: load token: %v", services.ErrCollaborator, err)
	}
	if !ok || row.AccessToken == "" {
		return nil, fmt.Errorf("%w: no google token stored", services.ErrUnauthorized)
	}
	tok := fromRow(row)
	src := &persistingTokenSource{
		src:     a.cfg.TokenSource(context.WithoutCancel(ctx), tok),
		current: tok,
		save: func(t *oauth2.Token) error {
			return a.store.SaveToken(context.WithoutCancel(ctx), toRow(t))
		},
		log: a.log,
	}
	return oauth2.NewClient(ctx, src), nil
}

// persistingTokenSource saves a token whenever its access token changes.
type persistingTokenSource struct {
	mu      sync.Mutex
	src     oauth2.TokenSource
	current *oauth2.Token
	save    func(*oauth2.Token) error
	log     zerolog.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.AccessToken != t.AccessToken {
		if t.RefreshToken == "" && s.current != nil {
			t.RefreshToken = s.current.RefreshToken
		}
		s.current = t
		if err := s.save(t); err != nil {
			s.log.Warn().Err(err).Msg("persist refreshed token")
		}
	}
	return t, nil
}

func toRow(t *oauth2.Token) domain.OAuthToken {
	return domain.OAuthToken{
		Provider:     Provider,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
		UpdatedAt:    time.Now(),
	}
}

func fromRow(r domain.OAuthToken) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry,
	}
}

// classify maps Google API and OAuth failures onto the service taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrUnauthorized) || errors.Is(err, services.ErrCollaborator) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %s: %v", services.ErrUnauthorized, op, err)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %s: %v", services.ErrUnauthorized, op, err)
	}
	return fmt.Errorf("%w: %s: %v", services.ErrCollaborator, op, err)
}

// isNotFound reports a 404/410 from the API.
func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}
