package consultation

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by the repository when a row does not exist.
var ErrNotFound = errors.New("not found")

// Kind classifies engine failures.
type Kind string

const (
	KindProviderUnavailable Kind = "provider_unavailable"
	KindMalformedOutput     Kind = "malformed_output"
	KindCallerError         Kind = "caller_error"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
)

// Caller error reasons.
const (
	ReasonEmptyText        = "empty_text"
	ReasonMissingUser      = "missing_user_id"
	ReasonSessionInactive  = "session_inactive"
	ReasonAssessmentClosed = "assessment_complete"
	ReasonReportTooEarly   = "insufficient_transcript"
	ReasonNoSymptoms       = "missing_symptoms"
)

// Error is a typed engine failure. Callers branch on Kind.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func callerError(reason string) error {
	return &Error{Kind: KindCallerError, Reason: reason}
}

func notFound(what string, err error) error {
	return &Error{Kind: KindNotFound, Reason: what, Err: err}
}
