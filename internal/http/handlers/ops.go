package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/services"
	"github.com/tbourn/go-agenda-agent/internal/utils"
)

const (
	nextEventsWindow = 24 * time.Hour
	nextEventsMax    = 10
)

// EventView is the JSON form of a calendar event.
type EventView struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	AllDay    bool      `json:"all_day"`
	Location  string    `json:"location,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
}

func toView(ev domain.CalendarEvent) EventView {
	return EventView{
		ID:        ev.ID,
		Summary:   ev.Summary,
		Start:     ev.Start.Time,
		End:       ev.End.Time,
		AllDay:    ev.Start.AllDay,
		Location:  ev.Location,
		Attendees: ev.Attendees,
	}
}

// PollGmail godoc
// @ID          pollGmail
// @Summary     Run the inbox poll now
// @Tags        Ops
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200  {object} map[string]any "notified, message_id"
// @Failure     400  {object} handlers.ErrorResponse "Gmail not authorized"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid API key"
// @Failure     502  {object} handlers.ErrorResponse "Upstream failure"
// @Router      /gmail/poll [post]
func (h *Handlers) PollGmail(c *gin.Context) {
	if h.d.Poller == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "inbox poll unavailable")
		return
	}
	id, err := h.d.Poller.PollInbox(c.Request.Context())
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		fail(c, http.StatusBadRequest, ErrCodeGmailNotAuthorized, "gmail is not authorized; visit /oauth/start")
		return
	case err != nil:
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, "inbox poll failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"notified": id != "", "message_id": id})
}

// NextEvents godoc
// @ID          nextEvents
// @Summary     Calendar events in the next 24 hours
// @Tags        Ops
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       limit  query  int  false "Max events"  minimum(1) maximum(50) default(10)
//
// @Success     200  {object} map[string][]handlers.EventView
// @Failure     400  {object} handlers.ErrorResponse "Calendar not authorized"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid API key"
// @Failure     502  {object} handlers.ErrorResponse "Upstream failure"
// @Router      /calendar/next [get]
func (h *Handlers) NextEvents(c *gin.Context) {
	max := utils.Clamp(utils.AtoiDefault(c.Query("limit"), nextEventsMax), 1, 50)
	events, err := h.d.Assistant.UpcomingEvents(c.Request.Context(), nextEventsWindow, max)
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		fail(c, http.StatusBadRequest, ErrCodeCalendarNotAuthorized, "calendar is not authorized; visit /oauth/start")
		return
	case err != nil:
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, "calendar request failed")
		return
	}
	out := make([]EventView, 0, len(events))
	for _, ev := range events {
		out = append(out, toView(ev))
	}
	ok(c, http.StatusOK, gin.H{"events": out})
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete a mail message
// @Tags        Ops
// @Security    ApiKeyAuth
//
// @Param       id  path  string  true  "Gmail message id"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Gmail not authorized"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid API key"
// @Failure     502  {object} handlers.ErrorResponse "Upstream failure"
// @Router      /gmail/messages/{id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id is required")
		return
	}
	if h.d.Mail == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "mail unavailable")
		return
	}
	err := h.d.Mail.Delete(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		fail(c, http.StatusBadRequest, ErrCodeGmailNotAuthorized, "gmail is not authorized; visit /oauth/start")
		return
	case err != nil:
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, "delete failed")
		return
	}
	noContent(c)
}
