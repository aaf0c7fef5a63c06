// Package errs defines the error taxonomy shared by the client packages.
//
// Every failure surfaced by the API client or the workflow orchestrator
// wraps exactly one of these sentinels, so callers classify errors with
// errors.Is instead of string matching.
package errs

import "errors"

var (
	// ErrNetwork means the request could not complete: connection refused,
	// DNS failure, client-side timeout, or an unreadable response body.
	ErrNetwork = errors.New("network failure")

	// ErrServerRejected means the service answered with a non-success
	// status or an explicit error payload field.
	ErrServerRejected = errors.New("server rejected request")

	// ErrValidation means a required local precondition was missing
	// (empty file, empty query, no identity). No request is issued.
	ErrValidation = errors.New("validation failure")

	// ErrCorruptState means a persisted local record could not be parsed.
	// Handled inside the session manager; never surfaced to users.
	ErrCorruptState = errors.New("corrupt local state")

	// ErrInvalidState means an operation was called in a state that does
	// not permit it, e.g. updating the identity with nobody logged in.
	ErrInvalidState = errors.New("invalid state")
)
