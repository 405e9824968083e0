// Package provider defines the narrow capability interface the facade uses to
// talk to the managed identity provider, and the error taxonomy every
// implementation reports failures with.
package provider

import (
	"context"
	"fmt"

	"github.com/utafrali/authgate/internal/domain"
)

// Client is the set of identity operations the facade delegates. All
// implementations must be safe for concurrent use.
type Client interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	ConfirmSignUp(ctx context.Context, email, code string) error
	AdminAddUserToGroup(ctx context.Context, email, group string) error
	AuthenticateUser(ctx context.Context, email, password string) (*domain.TokenBundle, error)
	AuthenticateRefreshToken(ctx context.Context, refreshToken, email string) (*domain.TokenBundle, error)
	ForgotPassword(ctx context.Context, email string) error
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error
}

// Reason classifies a provider failure.
type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonUserNotFound       Reason = "user_not_found"
	ReasonUserExists         Reason = "user_exists"
	ReasonUserNotConfirmed   Reason = "user_not_confirmed"
	ReasonCodeMismatch       Reason = "code_mismatch"
	ReasonCodeExpired        Reason = "code_expired"
	ReasonInvalidPassword    Reason = "invalid_password"
	ReasonInvalidParameter   Reason = "invalid_parameter"
	ReasonThrottled          Reason = "throttled"
	ReasonUnavailable        Reason = "unavailable"
	ReasonUnknown            Reason = "unknown"
)

// Sentinels for errors.Is matching against *Error by reason.
var (
	ErrInvalidCredentials = &Error{Reason: ReasonInvalidCredentials}
	ErrUserNotFound       = &Error{Reason: ReasonUserNotFound}
	ErrUserExists         = &Error{Reason: ReasonUserExists}
	ErrUserNotConfirmed   = &Error{Reason: ReasonUserNotConfirmed}
	ErrCodeMismatch       = &Error{Reason: ReasonCodeMismatch}
	ErrCodeExpired        = &Error{Reason: ReasonCodeExpired}
	ErrInvalidPassword    = &Error{Reason: ReasonInvalidPassword}
	ErrInvalidParameter   = &Error{Reason: ReasonInvalidParameter}
	ErrThrottled          = &Error{Reason: ReasonThrottled}
	ErrUnavailable        = &Error{Reason: ReasonUnavailable}
	ErrUnknown            = &Error{Reason: ReasonUnknown}
)

// Error is the failure type returned by every Client method.
type Error struct {
	// Op is the provider operation that failed, e.g. "SignUp".
	Op     string
	Reason Reason
	// Message is the provider's human-readable explanation. It may be shown
	// to callers for rejections but never for unavailable/unknown faults.
	Message string
	Err     error
}

// NewError builds an *Error.
func NewError(op string, reason Reason, message string, err error) *Error {
	return &Error{Op: op, Reason: reason, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}
