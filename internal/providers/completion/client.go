// Package completion implements the assistant's natural-language
// collaborator on an OpenAI-compatible chat-completions API.
//
// Every structured call requests a JSON object and decodes it into a typed
// struct right here. Malformed output degrades to a safe default; only
// ParseEvent reports services.ErrUnparseable.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-agenda-agent/internal/services"
)

// Defaults for Options.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  zerolog.Logger
	// Now anchors relative dates in ParseEvent. Defaults to time.Now.
	Now func() time.Time
}

// Client talks to /chat/completions.
type Client struct {
	http  *resty.Client
	model string
	now   func() time.Time
	log   zerolog.Logger
}

// New returns a Client.
func New(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(o.BaseURL, "/")).
		SetTimeout(o.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if o.APIKey != "" {
		hc.SetAuthToken(o.APIKey)
	}
	return &Client{
		http:  hc,
		model: o.Model,
		now:   o.Now,
		log:   o.Logger.With().Str("component", "completion").Logger(),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// complete sends one system+user exchange and returns the first choice.
func (c *Client) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    []message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature: 0.2,
	}
	if jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out chatResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: completion request: %v", services.ErrCollaborator, err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return "", fmt.Errorf("%w: completion api: %s", services.ErrUnauthorized, apiErr.Error.Message)
	case resp.IsError():
		return "", fmt.Errorf("%w: completion api status %d: %s", services.ErrCollaborator, resp.StatusCode(), apiErr.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// completeJSON decodes the model's JSON answer into dst. A decode failure is
// reported as ok=false so callers can substitute defaults.
func (c *Client) completeJSON(ctx context.Context, system, user string, dst any) (bool, error) {
	raw, err := c.complete(ctx, system, user, true)
	if err != nil {
		return false, err
	}
	raw = stripFence(raw)
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.log.Warn().Err(err).Msg("malformed completion output")
		return false, nil
	}
	return true, nil
}

// stripFence removes a ```json ... ``` wrapper some models add.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
