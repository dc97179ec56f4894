package types

import "errors"

// Common errors
var (
	// ErrSessionExpired marks an error the server reported as an unknown session
	ErrSessionExpired = errors.New("session expired")

	// ErrRenewalLimitExceeded is returned when session renewal retries run out
	ErrRenewalLimitExceeded = errors.New("session renewal limit exceeded")

	// ErrParseFailure is returned when a response body cannot be decoded
	ErrParseFailure = errors.New("failed to parse response body")

	// ErrEncoding is returned when a request payload cannot be encoded
	ErrEncoding = errors.New("failed to encode request body")

	// ErrTransport is returned when no response was received
	ErrTransport = errors.New("transport error")

	// ErrEmptyResponse is reported by a transport when the server closed the
	// exchange without sending a response
	ErrEmptyResponse = errors.New("empty response")
)
