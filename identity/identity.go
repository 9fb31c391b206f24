// Package identity defines the identity provider Octave signs users in with,
// and ships a Firebase-backed and an in-memory implementation.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// Identity is a read-only snapshot of an authenticated user.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Listener receives session changes. A nil identity means nobody is signed in.
type Listener func(*Identity)

// Subscriber is the session-change half of a Provider.
type Subscriber interface {
	// Subscribe registers fn and returns a function that removes it.
	// fn is called once the provider knows the current session, then on
	// every change, always from a goroutine other than the caller's.
	Subscribe(fn Listener) (unsubscribe func())
}

// Provider authenticates credentials and issues identities.
type Provider interface {
	Subscriber
	VerifyCredentials(ctx context.Context, email, password string) (*Identity, error)
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)
	SetProfileAttributes(ctx context.Context, id *Identity, name, photoURL string) error
	// SignInWithFederatedProvider signs in through an external provider
	// (Google). The result is also reported to subscribers.
	SignInWithFederatedProvider(ctx context.Context) (*Identity, error)
}

// Provider error codes, in the form Firebase clients report them.
const (
	CodeEmailExists          = "auth/email-already-in-use"
	CodeUserNotFound         = "auth/user-not-found"
	CodeWrongPassword        = "auth/wrong-password"
	CodeInvalidEmail         = "auth/invalid-email"
	CodeWeakPassword         = "auth/weak-password"
	CodeUserDisabled         = "auth/user-disabled"
	CodeTooManyRequests      = "auth/too-many-requests"
	CodeOperationNotAllowed  = "auth/operation-not-allowed"
	CodeInvalidToken         = "auth/invalid-user-token"
	CodeNetworkRequestFailed = "auth/network-request-failed"
	CodeInternal             = "auth/internal-error"
)

// Error is a rejection reported by the identity provider. Message is meant
// to be shown to the user as-is.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a provider error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsError reports whether err carries a provider error.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
