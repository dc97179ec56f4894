package qbproxy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eshaffer321/qbproxy-go/internal/transport"
	internalTypes "github.com/eshaffer321/qbproxy-go/internal/types"
)

var (
	// ErrSessionExpired matches errors the server reported as an unknown session
	ErrSessionExpired = internalTypes.ErrSessionExpired

	// ErrRenewalLimitExceeded is set on the delivered error once session
	// renewal retries for a request run out
	ErrRenewalLimitExceeded = internalTypes.ErrRenewalLimitExceeded

	// ErrParseFailure is returned when a response body cannot be decoded
	ErrParseFailure = internalTypes.ErrParseFailure

	// ErrEncoding is returned when a request payload cannot be encoded
	ErrEncoding = internalTypes.ErrEncoding

	// ErrTransport is returned when no response was received
	ErrTransport = internalTypes.ErrTransport

	// ErrEmptyResponse is reported by a transport when the server closed the
	// exchange without a response. It is normalized into an empty success.
	ErrEmptyResponse = internalTypes.ErrEmptyResponse

	// ErrNoToken is returned when a session response carries no token
	ErrNoToken = errors.New("no token in session response")
)

const sessionMissingMessage = "session does not exist"

// Error is the normalized failure delivered to callers
type Error struct {
	// Code is the response status, or 0 when no response was received
	Code int `json:"code"`

	// Status is always "error"
	Status string `json:"status"`

	// Message is the raw response body, or the transport error text
	Message string `json:"message"`

	// Detail is the decoded "errors" field of the response body, if any
	Detail interface{} `json:"detail,omitempty"`

	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Code == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Status, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}

	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = transport.StatusDescription(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %d: %s: %v", e.Status, e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s %d: %s", e.Status, e.Code, msg)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches target
func (e *Error) Is(target error) bool {
	if target == ErrSessionExpired {
		return e.sessionExpired()
	}

	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Code == t.Code
}

// sessionExpired reports the server's expired-session signature: a 401
// whose message mentions the missing session
func (e *Error) sessionExpired() bool {
	return e.Code == 401 && strings.Contains(strings.ToLower(e.Message), sessionMissingMessage)
}

// IsSessionExpired checks if err is an expired-session failure
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// IsRetryable checks if error is retryable
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500 || apiErr.Code == 429
	}

	return false
}

// newHTTPError shapes a non-success response. Every field is optional, so
// shaping never fails.
func newHTTPError(status int, body []byte, decoded interface{}) *Error {
	return &Error{
		Code:    status,
		Status:  "error",
		Message: string(body),
		Detail:  errorsField(decoded),
	}
}

func newTransportError(err error) *Error {
	return &Error{
		Status:  "error",
		Message: err.Error(),
		Err:     fmt.Errorf("%w: %w", ErrTransport, err),
	}
}

func newParseError(status int, body []byte, err error) *Error {
	return &Error{
		Code:    status,
		Status:  "error",
		Message: string(body),
		Err:     fmt.Errorf("%w: %w", ErrParseFailure, err),
	}
}

func newEncodingError(err error) *Error {
	return &Error{
		Status:  "error",
		Message: err.Error(),
		Err:     err,
	}
}

func errorsField(decoded interface{}) interface{} {
	m, ok := decoded.(map[string]interface{})
	if !ok {
		return nil
	}
	return m["errors"]
}
