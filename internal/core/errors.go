package core

import (
	"errors"
	"fmt"
)

// Kind tags a TTSError with its taxonomy member from SPEC_FULL §4.3/§7.
type Kind int

const (
	// KindInternal marks an invariant violation; never retried, never
	// suppressed.
	KindInternal Kind = iota
	KindAuthentication
	KindNetwork
	KindQuota
	KindVoice
	KindFormat
	KindDependency
	KindProvider
	KindBadOption
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindNetwork:
		return "network"
	case KindQuota:
		return "quota"
	case KindVoice:
		return "voice"
	case KindFormat:
		return "format"
	case KindDependency:
		return "dependency"
	case KindProvider:
		return "provider"
	case KindBadOption:
		return "bad_option"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error is the single exported error type carrying every taxonomy member
// named in SPEC_FULL §4.3 and §7. It wraps an optional cause so that
// errors.Is/errors.As compose normally across provider and orchestrator
// boundaries.
type Error struct {
	Kind        Kind
	Message     string
	Provider    string
	Suggestions []string
	Retriable   bool
	cause       error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is a *Error with the same Kind, letting
// callers write errors.Is(err, core.KindQuota) via the sentinel wrappers
// below instead of type-asserting Kind by hand.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == other.Kind
}

func newError(kind Kind, provider, message string, cause error, retriable bool) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Provider:  provider,
		cause:     cause,
		Retriable: retriable,
	}
}

// NewAuthenticationError builds a non-retriable AuthenticationError.
func NewAuthenticationError(provider, message string, cause error) *Error {
	return newError(KindAuthentication, provider, message, cause, false)
}

// NewNetworkError builds a retriable NetworkError (connectivity, DNS, TLS).
func NewNetworkError(provider, message string, cause error) *Error {
	return newError(KindNetwork, provider, message, cause, true)
}

// NewQuotaError builds a non-retriable QuotaError (429/402/billing).
func NewQuotaError(provider, message string, cause error) *Error {
	return newError(KindQuota, provider, message, cause, false)
}

// NewVoiceError builds a non-retriable VoiceError with a suggestion list of
// nearest-match voice names.
func NewVoiceError(provider, message string, suggestions []string) *Error {
	e := newError(KindVoice, provider, message, nil, false)
	e.Suggestions = suggestions

	return e
}

// NewFormatError builds a non-retriable FormatError (unsupported container).
func NewFormatError(provider, message string) *Error {
	return newError(KindFormat, provider, message, nil, false)
}

// NewDependencyError builds a non-retriable DependencyError (missing
// external tool or library).
func NewDependencyError(provider, message string, cause error) *Error {
	return newError(KindDependency, provider, message, cause, false)
}

// NewProviderError builds a ProviderError; retriable marks whether the
// upstream failure (typically 5xx) is worth retrying per §4.16.
func NewProviderError(provider, message string, cause error, retriable bool) *Error {
	return newError(KindProvider, provider, message, cause, retriable)
}

// NewBadOptionError builds a non-retriable BadOption error with a
// suggestion list of nearest-match option names.
func NewBadOptionError(message string, suggestions []string) *Error {
	e := newError(KindBadOption, "", message, nil, false)
	e.Suggestions = suggestions

	return e
}

// NewCancelledError builds the error propagated when a synthesis is
// cancelled at a suspension point.
func NewCancelledError(message string, cause error) *Error {
	return newError(KindCancelled, "", message, cause, false)
}

// NewInternalError builds an error for an invariant violation. Internal
// errors are never retried and never suppressed.
func NewInternalError(message string, cause error) *Error {
	return newError(KindInternal, "", message, cause, false)
}

// AsError reports whether err is (or wraps) a *Error and returns it.
func AsError(err error) (*Error, bool) {
	var e *Error

	ok := errors.As(err, &e)

	return e, ok
}

// IsRetriable reports whether err is a taxonomy error marked retriable.
func IsRetriable(err error) bool {
	e, ok := AsError(err)

	return ok && e.Retriable
}

// httpStatusBand groups the status-code ranges SPEC_FULL §6 maps to
// taxonomy members, mirroring the dispatch table in
// original_source/tts_cli/exceptions.py's map_http_error.
const (
	statusUnauthorized        = 401
	statusForbidden           = 403
	statusPaymentRequired     = 402
	statusTooManyRequests     = 429
	statusConflict            = 409
	statusServerErrorRangeLo  = 500
	statusServerErrorRangeHi  = 599
	maxErrorMessageLen        = 512
)

// MapHTTPStatus is the single point mapping a provider's HTTP response to a
// taxonomy member, shared by the OpenAI, ElevenLabs, and Google providers
// (SPEC_FULL §6, §4.3).
func MapHTTPStatus(provider string, status int, body string) *Error {
	message := truncate(body, maxErrorMessageLen)

	switch {
	case status == statusUnauthorized || status == statusForbidden:
		return NewAuthenticationError(provider, message, nil)
	case status == statusTooManyRequests || status == statusPaymentRequired || status == statusConflict:
		return NewQuotaError(provider, message, nil)
	case status >= statusServerErrorRangeLo && status <= statusServerErrorRangeHi:
		return NewProviderError(provider, message, nil, true)
	default:
		return NewProviderError(provider, message, nil, false)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max]
}
