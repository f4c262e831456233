package main

import (
	"errors"
	"fmt"
)

// errCanceled is returned by interactive prompts when the user backs out
var errCanceled = errors.New("canceled")

// MissingCredentialsError names the credential that could not be found
type MissingCredentialsError struct {
	Field  string
	Reason string
}

func (e *MissingCredentialsError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("missing credentials: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("missing credentials: %s is not set", e.Field)
}

const reasonBlockedAddress = "blocked address"

// InvalidURLError is returned for URLs rejected before or while connecting
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid URL %q: %s", RedactURL(e.URL), e.Reason)
}

// ExtractionError wraps a failure while fetching or extracting an article
type ExtractionError struct {
	URL  string
	Step string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s) for %s: %v", e.Step, RedactURL(e.URL), e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AuthError means the SMTP server rejected the sender credentials
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("smtp authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SendError covers every non-authentication delivery failure
type SendError struct {
	Stage string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("smtp %s failed: %v", e.Stage, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// classifyError maps a pipeline error to its outcome kind. Untyped errors
// fall back to the kind of the step that produced them.
func classifyError(err error, fallback OutcomeKind) OutcomeKind {
	var (
		missing    *MissingCredentialsError
		invalid    *InvalidURLError
		extraction *ExtractionError
		auth       *AuthError
		send       *SendError
	)
	switch {
	case err == nil:
		return OutcomeSent
	case errors.Is(err, errCanceled):
		return OutcomeCanceled
	case errors.As(err, &invalid):
		return OutcomeInvalidURL
	case errors.As(err, &missing):
		return OutcomeMissingCredentials
	case errors.As(err, &auth):
		return OutcomeAuthFailed
	case errors.As(err, &send):
		return OutcomeSendFailed
	case errors.As(err, &extraction):
		return OutcomeExtractionFailed
	default:
		return fallback
	}
}
