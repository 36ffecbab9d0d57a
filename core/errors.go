package core

import (
	"errors"
	"fmt"
)

// Kind classifies authentication pipeline failures. Every error crossing a
// *Logic boundary carries exactly one kind; the orchestrators convert kinds
// into Actions and nothing else escapes to the host framework.
type Kind int

const (
	// KindConfig marks a misconfiguration: unknown client or authorizer
	// name, missing required client property, client used uninitialized.
	// Fatal, never retried.
	KindConfig Kind = iota
	// KindNoCredentials is the control signal for an indirect callback
	// that arrived without extractable credentials (user cancelled).
	KindNoCredentials
	// KindStateMismatch marks a missing or mismatched state-binding token
	// on callback, kept distinct from generic validation failures so
	// forgery attempts stand out in logs.
	KindStateMismatch
	// KindValidation marks credentials the authenticator rejected.
	KindValidation
	// KindAuthorization marks a profile that failed an authorizer check.
	KindAuthorization
	// KindUpstreamTimeout marks an identity-provider call that exceeded
	// its configured timeout.
	KindUpstreamTimeout
	// KindUpstreamUnavailable marks a transport-level failure talking to
	// the identity provider.
	KindUpstreamUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindNoCredentials:
		return "no_credentials"
	case KindStateMismatch:
		return "state_mismatch"
	case KindValidation:
		return "credentials_validation"
	case KindAuthorization:
		return "authorization"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	}
	return "unknown"
}

// AuthError is the pipeline error type.
type AuthError struct {
	kind Kind
	msg  string
	err  error
}

func (e *AuthError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *AuthError) Unwrap() error { return e.err }

// Kind returns the error classification.
func (e *AuthError) Kind() Kind { return e.kind }

// NewError builds an AuthError of the given kind.
func NewError(kind Kind, msg string) *AuthError {
	return &AuthError{kind: kind, msg: msg}
}

// WrapError builds an AuthError of the given kind around a cause.
func WrapError(kind Kind, msg string, err error) *AuthError {
	return &AuthError{kind: kind, msg: msg, err: err}
}

// KindOf extracts the kind of err, defaulting to KindValidation for errors
// produced outside the pipeline.
func KindOf(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.kind
	}
	return KindValidation
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.kind == kind
}
