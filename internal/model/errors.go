package model

import (
	"errors"
	"fmt"
)

// ErrorKind names why a provider step did not produce facts. Kinds are
// values, not exceptions: adapters report them inside ProviderResult.
type ErrorKind string

const (
	KindNone                      ErrorKind = ""
	KindNoDetailLink              ErrorKind = "no_detail_link"
	KindNoSitekeyFound            ErrorKind = "no_sitekey_found"
	KindCaptchaTimeout            ErrorKind = "captcha_timeout"
	KindCaptchaSolveFailed        ErrorKind = "captcha_solve_failed"
	KindNoNameMatch               ErrorKind = "no_name_match"
	KindDistanceGuardrailExceeded ErrorKind = "distance_guardrail_exceeded"
	KindProviderTransportError    ErrorKind = "provider_transport_error"
	KindParseError                ErrorKind = "parse_error"
	KindNoResults                 ErrorKind = "no_results"
	KindSkipped                   ErrorKind = "skipped"
	KindPanic                     ErrorKind = "panic"
)

// KindError attaches an ErrorKind to an underlying error.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// WithKind wraps err with kind. A nil err still yields a non-nil error so
// callers can report a bare kind.
func WithKind(kind ErrorKind, err error) error {
	return &KindError{Kind: kind, Err: err}
}

// ErrorKindOf extracts the ErrorKind from err's chain, falling back to
// fallback when none is attached.
func ErrorKindOf(err error, fallback ErrorKind) ErrorKind {
	if err == nil {
		return KindNone
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return fallback
}
