package handlers

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/utils"
)

const defaultStatusLimit = 50

// StatusResponse summarises in-memory state for operators.
type StatusResponse struct {
	PendingCount      int                    `json:"pending_count"`
	ConversationCount int                    `json:"conversation_count"`
	Events            []domain.EventLogEntry `json:"events"`
	GeneratedAt       time.Time              `json:"generated_at"`
}

var statusPage = template.Must(template.New("status").Funcs(template.FuncMap{
	"clock": func(t time.Time, loc *time.Location) string { return t.In(loc).Format("2006-01-02 15:04:05") },
}).Parse(`<!doctype html>
<html lang="es"><head><meta charset="utf-8"><title>Asistente: estado</title>
<style>body{font-family:sans-serif;margin:2em}td,th{padding:.2em .8em;text-align:left}</style></head>
<body>
<h1>Estado del asistente</h1>
<p>Correos pendientes: {{.Resp.PendingCount}} · Conversaciones activas: {{.Resp.ConversationCount}}</p>
<table><tr><th>Hora</th><th>Tipo</th><th>Detalle</th></tr>
{{range .Resp.Events}}<tr><td>{{clock .Timestamp $.Loc}}</td><td>{{.Kind}}</td><td>{{.Detail}}</td></tr>
{{else}}<tr><td colspan="3">Sin eventos.</td></tr>
{{end}}</table>
</body></html>`))

// GetStatus godoc
// @ID          getStatus
// @Summary     Assistant status
// @Description Pending email count, active conversations and recent events, most recent first.
// @Description limit defaults to 50 and is capped at the log capacity; format=html renders a page.
// @Tags        Ops
// @Produce     json,html
//
// @Param       limit   query  int     false "Events to return"  minimum(1) default(50)
// @Param       format  query  string  false "Response format"   Enums(json, html)
//
// @Success     200  {object} handlers.StatusResponse
// @Failure     503  {object} handlers.ErrorResponse "State unavailable"
// @Router      /status [get]
func (h *Handlers) GetStatus(c *gin.Context) {
	src := h.d.Status
	if src == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "state unavailable")
		return
	}
	limit := utils.Clamp(utils.AtoiDefault(c.Query("limit"), defaultStatusLimit), 1, src.EventCapacity())

	resp := StatusResponse{
		PendingCount:      src.PendingCount(),
		ConversationCount: src.ConversationCount(),
		Events:            src.Events(limit),
		GeneratedAt:       h.d.Now().UTC(),
	}
	if resp.Events == nil {
		resp.Events = []domain.EventLogEntry{}
	}

	if c.Query("format") == "html" {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := statusPage.Execute(c.Writer, struct {
			Resp StatusResponse
			Loc  *time.Location
		}{resp, h.d.Location}); err != nil {
			_ = c.Error(err)
		}
		return
	}
	ok(c, http.StatusOK, resp)
}
