package backend

import (
	"errors"
	"fmt"
)

// Kind classifies failures of chat operations.
type Kind int

const (
	// KindServer is a non-2xx response with a body.
	KindServer Kind = iota
	// KindAuth is a 401/403 response or a missing credential. Always ends the session.
	KindAuth
	// KindValidation is a client-side rejection that never reached the network.
	KindValidation
	// KindTransport is a request that got no response (network failure or timeout).
	KindTransport
	// KindNotFound is a 404. Callers decide whether it means "empty" or "create".
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindNotFound:
		return "not_found"
	}
	return "server"
}

// Error is the error type returned by the backend client and the chat services.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoCredential is returned when no bearer credential can be read.
var ErrNoCredential = &Error{Kind: KindAuth, Message: "no bearer credential"}

// NewValidationError builds a client-side rejection.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: "request failed", Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func isKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

func IsAuth(err error) bool       { return isKind(err, KindAuth) }
func IsNotFound(err error) bool   { return isKind(err, KindNotFound) }
func IsValidation(err error) bool { return isKind(err, KindValidation) }
func IsTransport(err error) bool  { return isKind(err, KindTransport) }

// UserMessage returns the message suitable for showing to the user.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
