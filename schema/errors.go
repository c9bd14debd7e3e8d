package schema

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmptyPrompt indicates the prompt was empty.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrInvalidVisitor indicates an invalid visitor identifier.
	ErrInvalidVisitor = errors.New("invalid visitor")
	// ErrPasswordRequired indicates the workshop password was missing.
	ErrPasswordRequired = errors.New("password required")
	// ErrInvalidPassword indicates the workshop password did not match.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrPasswordExpired indicates the workshop password has expired.
	ErrPasswordExpired = errors.New("password expired")
	// ErrPasswordDisabled indicates the workshop password was disabled.
	ErrPasswordDisabled = errors.New("password disabled")
	// ErrQuotaExhausted indicates the visitor has no generation uses left.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrTemplateNotFound indicates a requested variant could not be found.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrShareNotFound indicates a share token could not be resolved.
	ErrShareNotFound = errors.New("share not found")
	// ErrSessionCancelled indicates the session was cancelled by the caller.
	ErrSessionCancelled = errors.New("session cancelled")
)

// ErrorKind classifies a session failure independently of its message text,
// so callers can localize and branch without string matching.
type ErrorKind string

const (
	// KindUnauthorized covers bad, expired, or disabled workshop passwords.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindRateLimited covers exhausted per-visitor quota.
	KindRateLimited ErrorKind = "rate_limited"
	// KindValidation covers malformed requests.
	KindValidation ErrorKind = "validation"
	// KindServerFault covers upstream 5xx failures.
	KindServerFault ErrorKind = "server_fault"
	// KindNetwork covers transport failures with no response received.
	KindNetwork ErrorKind = "network"
	// KindProtocol covers well-formed responses whose payload could not be
	// understood where understanding was required.
	KindProtocol ErrorKind = "protocol"
)

// Wire error codes carried in the errorCode field of error events.
const (
	WireCodeInvalidPassword  = "INVALID_PASSWORD"
	WireCodePasswordExpired  = "PASSWORD_EXPIRED"
	WireCodePasswordDisabled = "PASSWORD_DISABLED"
	WireCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	WireCodeInvalidRequest   = "INVALID_REQUEST"
	WireCodeProviderFailed   = "PROVIDER_FAILED"
)

// SessionError is the single terminal error surfaced for a failed session.
type SessionError struct {
	Kind    ErrorKind
	Message string
	// Details carries optional human-readable detail lines from the server.
	Details []string
	// RemainingUses is the quota count reported alongside the error, if any.
	// Nil means the error carried no count.
	RemainingUses *int
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e == nil {
		return "session error"
	}
	if e.Message == "" {
		return fmt.Sprintf("session error: %s", e.Kind)
	}
	return fmt.Sprintf("session error (%s): %s", e.Kind, e.Message)
}

// NewSessionError constructs a SessionError with the given kind and message.
func NewSessionError(kind ErrorKind, message string) *SessionError {
	return &SessionError{Kind: kind, Message: message}
}

// KindFromStatus maps an HTTP status observed before any event to an ErrorKind.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindValidation
	case status >= 500:
		return KindServerFault
	default:
		return KindProtocol
	}
}

// KindFromWireCode maps an errorCode field to an ErrorKind. Unknown codes
// map to KindServerFault so the UI still has a stable bucket to render.
func KindFromWireCode(code string) ErrorKind {
	switch strings.TrimSpace(code) {
	case WireCodeInvalidPassword, WireCodePasswordExpired, WireCodePasswordDisabled:
		return KindUnauthorized
	case WireCodeRateLimited:
		return KindRateLimited
	case WireCodeInvalidRequest:
		return KindValidation
	default:
		return KindServerFault
	}
}

// WireCodeForErr maps gate errors to their wire error codes.
func WireCodeForErr(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPassword), errors.Is(err, ErrPasswordRequired):
		return WireCodeInvalidPassword
	case errors.Is(err, ErrPasswordExpired):
		return WireCodePasswordExpired
	case errors.Is(err, ErrPasswordDisabled):
		return WireCodePasswordDisabled
	case errors.Is(err, ErrQuotaExhausted):
		return WireCodeRateLimited
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrEmptyPrompt), errors.Is(err, ErrInvalidVisitor):
		return WireCodeInvalidRequest
	default:
		return WireCodeProviderFailed
	}
}
