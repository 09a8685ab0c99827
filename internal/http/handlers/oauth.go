package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-agenda-agent/internal/http/middleware"
)

// OAuthStart godoc
// @ID          oauthStart
// @Summary     Start Google consent
// @Tags        OAuth
// @Produce     json
// @Success     200  {object} map[string]string "auth_url"
// @Failure     503  {object} handlers.ErrorResponse "OAuth not configured"
// @Router      /oauth/start [get]
func (h *Handlers) OAuthStart(c *gin.Context) {
	if h.d.OAuth == nil || !h.d.OAuth.Configured() {
		fail(c, http.StatusServiceUnavailable, ErrCodeOAuthNotConfigured, "google oauth is not configured")
		return
	}
	ok(c, http.StatusOK, gin.H{"auth_url": h.d.OAuth.AuthCodeURL(newState())})
}

// OAuthCallback godoc
// @ID          oauthCallback
// @Summary     Finish Google consent
// @Description Exchanges the authorization code and persists the token.
// @Tags        OAuth
// @Produce     json
//
// @Param       code   query  string  true  "Authorization code"
// @Param       error  query  string  false "Consent error from Google"
//
// @Success     200  {object} map[string]string "status: authorized"
// @Failure     400  {object} handlers.ErrorResponse "Missing code or failed exchange"
// @Failure     503  {object} handlers.ErrorResponse "OAuth not configured"
// @Router      /oauth/callback [get]
func (h *Handlers) OAuthCallback(c *gin.Context) {
	if h.d.OAuth == nil || !h.d.OAuth.Configured() {
		fail(c, http.StatusServiceUnavailable, ErrCodeOAuthNotConfigured, "google oauth is not configured")
		return
	}
	if e := c.Query("error"); e != "" {
		fail(c, http.StatusBadRequest, ErrCodeOAuthFailed, "consent denied: "+e)
		return
	}
	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code is required")
		return
	}
	if err := h.d.OAuth.Exchange(c.Request.Context(), code); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("oauth exchange failed")
		fail(c, http.StatusBadRequest, ErrCodeOAuthFailed, "could not exchange authorization code")
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "authorized"})
}

// OAuthStatus godoc
// @ID          oauthStatus
// @Summary     Whether a usable Google token is stored
// @Tags        OAuth
// @Produce     json
// @Success     200  {object} map[string]bool "authorized"
// @Router      /oauth/status [get]
func (h *Handlers) OAuthStatus(c *gin.Context) {
	authorized := h.d.OAuth != nil && h.d.OAuth.Authorized(c.Request.Context())
	ok(c, http.StatusOK, gin.H{"authorized": authorized})
}

func newState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
