// Package gateway sends chat messages through the HTTP messaging bridge.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/go-agenda-agent/internal/services"
)

// DefaultTimeout bounds a single send.
const DefaultTimeout = 10 * time.Second

type sendRequest struct {
	ToNumber string `json:"to_number"`
	Text     string `json:"text"`
}

type sendResponse struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Client implements services.Gateway. Sends are never retried.
type Client struct {
	http *resty.Client
}

// New returns a Client posting to baseURL + "/send".
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		hc.SetHeader("x-api-key", apiKey)
	}
	return &Client{http: hc}
}

// Send delivers text to the chat address to.
func (c *Client) Send(ctx context.Context, to, text string) error {
	var out sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendRequest{ToNumber: to, Text: text}).
		SetResult(&out).
		SetError(&out).
		Post("/send")
	if err != nil {
		return fmt.Errorf("%w: gateway send: %v", services.ErrCollaborator, err)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: gateway rejected api key", services.ErrUnauthorized)
	case resp.IsError():
		return fmt.Errorf("%w: gateway status %d: %s", services.ErrCollaborator, code, out.Error)
	case out.Error != "":
		return fmt.Errorf("%w: gateway: %s", services.ErrCollaborator, out.Error)
	}
	return nil
}
