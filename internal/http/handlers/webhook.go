package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-agenda-agent/internal/http/middleware"
	"github.com/tbourn/go-agenda-agent/internal/repo"
	"github.com/tbourn/go-agenda-agent/internal/services"
	"github.com/tbourn/go-agenda-agent/internal/sysutil"
)

// IncomingMessage is the gateway's inbound payload. Older bridges send
// from_number instead of from; timestamp may be unix seconds, unix
// milliseconds, or RFC 3339.
type IncomingMessage struct {
	From       string `json:"from"`
	FromNumber string `json:"from_number"`
	Text       string `json:"text"`
	Timestamp  any    `json:"timestamp,omitempty"`
}

// IncomingResponse carries the status token of the processed turn.
type IncomingResponse struct {
	Status string `json:"status"`
}

// PostIncoming godoc
// @ID          postIncoming
// @Summary     Deliver an inbound chat message
// @Description Runs one assistant turn for the owner and returns its status token.
// @Description Supports idempotency via the Idempotency-Key header (same key → same token).
// @Tags        Webhook
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string                    false "Gateway message id"  example(wamid.HBgM)
// @Param       body             body    handlers.IncomingMessage  true  "Inbound message"
//
// @Success     200  {object}  handlers.IncomingResponse  "Status token"
// @Failure     400  {object}  handlers.ErrorResponse     "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse     "Sender rejected"
// @Failure     429  {object}  handlers.ErrorResponse     "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse     "Internal error"
// @Router      /whatsapp/incoming [post]
func (h *Handlers) PostIncoming(c *gin.Context) {
	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)

	var req IncomingMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	from := strings.TrimSpace(sysutil.FirstNonEmpty(req.From, req.FromNumber))
	if from == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from is required")
		return
	}

	userKey, err := h.d.Assistant.Authorize(from)
	if err != nil {
		fail(c, http.StatusForbidden, ErrCodeSenderRejected, "sender is not allowed")
		return
	}

	// Records are scoped by route, matching the middleware's replay lookup.
	scope := c.FullPath()
	idemKey, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && h.d.Idem != nil {
		unlock := h.idem.Lock(userKey + "|" + scope + "|" + idemKey)
		defer unlock()

		if status, err := h.d.Idem.Get(ctx, userKey, scope, idemKey); err == nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, IncomingResponse{Status: status})
			return
		} else if !errors.Is(err, repo.ErrNotFound) {
			lg.Warn().Err(err).Msg("idempotency lookup failed")
		}
	}

	status, err := h.d.Assistant.Handle(ctx, services.InboundMessage{
		From:      from,
		Text:      req.Text,
		Timestamp: parseTimestamp(req.Timestamp, h.d.Now()),
	})
	if errors.Is(err, services.ErrSenderRejected) {
		fail(c, http.StatusForbidden, ErrCodeSenderRejected, "sender is not allowed")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not process message")
		return
	}

	if hasKey && h.d.Idem != nil {
		if err := h.d.Idem.Save(ctx, userKey, scope, idemKey, string(status), h.d.IdemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			lg.Warn().Err(err).Msg("idempotency save failed")
		}
	}
	ok(c, http.StatusOK, IncomingResponse{Status: string(status)})
}

// parseTimestamp interprets the gateway timestamp, falling back to now.
func parseTimestamp(v any, now time.Time) time.Time {
	switch ts := v.(type) {
	case float64:
		return fromUnix(int64(ts), now)
	case string:
		if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return fromUnix(n, now)
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t
		}
	}
	return now
}

func fromUnix(n int64, now time.Time) time.Time {
	switch {
	case n <= 0:
		return now
	case n > 1e12:
		return time.UnixMilli(n)
	default:
		return time.Unix(n, 0)
	}
}
