// Package services implements the assistant's conversational core: the
// email-triage and appointment-booking machines, slot planning, the outbound
// notification path, and the inbound pipeline that ties them together.
//
// This file centralizes the error values shared by the service layer and the
// collaborator adapters. Adapters wrap them with %w; callers match with
// errors.Is and translate them into status tokens or HTTP codes.
package services

import "errors"

var (
	// ErrUnauthorized means a collaborator has no usable credential (no stored
	// OAuth token, revoked grant, invalid API key). It is never retried.
	ErrUnauthorized = errors.New("collaborator not authorized")

	// ErrUnparseable is returned when a natural-language request lacks the
	// fields needed to act on it (e.g. an event without title or start).
	ErrUnparseable = errors.New("request could not be parsed")

	// ErrCollaborator wraps transient transport or API failures from the mail,
	// calendar, completion, or gateway collaborators.
	ErrCollaborator = errors.New("collaborator failure")

	// ErrSenderRejected is returned for inbound messages from a sender other
	// than the configured owner.
	ErrSenderRejected = errors.New("sender not allowed")
)
