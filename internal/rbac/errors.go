package rbac

import (
	"errors"

	"github.com/auditdesk/auditdesk/internal/platform/httpx"
)

// Kind distinguishes authorization failures.
type Kind string

const (
	// KindUnauthenticated means no valid session; the caller must sign in.
	KindUnauthenticated Kind = "unauthenticated"
	// KindForbidden means the session's role lacks the requirement.
	KindForbidden Kind = "forbidden"
)

var (
	// ErrUnauthenticated matches any unauthenticated *Error.
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	// ErrForbidden matches any forbidden *Error.
	ErrForbidden = &Error{Kind: KindForbidden}
)

// Error is the structured enforcement failure. Action is kept for logging
// only and never appears in Error().
type Error struct {
	Kind   Kind
	Action string
}

func (e *Error) Error() string {
	return "rbac: " + string(e.Kind)
}

// Is matches on Kind so errors.Is(err, ErrForbidden) works for any action.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// Unwrap exposes the transport sentinel used by httpx.RespondError.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindUnauthenticated:
		return httpx.ErrUnauthorized
	case KindForbidden:
		return httpx.ErrForbidden
	default:
		return nil
	}
}

// KindOf returns the failure kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
