// Package handlers implements the HTTP endpoints: the chat webhook, the
// status view, the OAuth consent flow and the operational routes.
//
// Every error response is an ErrorResponse carrying one of the codes below.
// Clients branch on the code, never on the message.
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "sender_rejected",
//	  "message": "sender is not allowed"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeSenderRejected        = "sender_rejected"
	ErrCodeGmailNotAuthorized    = "gmail_not_authorized"
	ErrCodeCalendarNotAuthorized = "calendar_not_authorized"
	ErrCodeOAuthNotConfigured    = "oauth_not_configured"
	ErrCodeOAuthFailed           = "oauth_failed"
	ErrCodeUpstreamFailed        = "upstream_failed"
)
