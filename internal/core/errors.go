package core

import "errors"

// Sentinel errors. Wrap these with NewFrameworkError at the point of
// failure so callers can test with errors.Is while still carrying
// operation-specific context.
var (
	ErrMalformedIdentifier  = errors.New("malformed run identifier")
	ErrUnparseableJSON      = errors.New("unparseable posts JSON")
	ErrInvalidPostsContent  = errors.New("invalid posts content field")
	ErrInvalidAIResponse    = errors.New("invalid AI response")
	ErrUnknownField         = errors.New("unknown field name")
	ErrTableUnreachable     = errors.New("candidate table unreachable")
	ErrViewNotFound         = errors.New("view not found")
	ErrCircuitBreakerOpen   = errors.New("circuit breaker is open")
	ErrModelTimeout         = errors.New("model invocation timed out")
	ErrSafetyBlocked        = errors.New("model blocked the prompt")
	ErrEmptyCandidates      = errors.New("model returned no candidates")
	ErrGlobalFailure        = errors.New("global failure: registry or tracking store unreachable")
	ErrContextCanceled      = errors.New("operation canceled")
)

// Kind enumerates broad categories of FrameworkError for programmatic
// handling independent of the exact sentinel.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindUnavailable    Kind = "unavailable"
	KindTimeout        Kind = "timeout"
	KindState          Kind = "state"
	KindConfiguration  Kind = "configuration"
)

// FrameworkError carries operation context around a sentinel error.
type FrameworkError struct {
	Op      string
	Kind    Kind
	ID      string
	Message string
	Err     error
}

func (e *FrameworkError) Error() string {
	if e.Message != "" {
		return e.Op + ": " + e.Message
	}
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op
}

func (e *FrameworkError) Unwrap() error { return e.Err }

// NewFrameworkError builds a FrameworkError wrapping err with operation
// context. op should be "package.Function" style.
func NewFrameworkError(op string, kind Kind, id string, err error) *FrameworkError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &FrameworkError{Op: op, Kind: kind, ID: id, Message: msg, Err: err}
}

// IsRetryable reports whether err represents a transient condition worth
// retrying (timeouts, unavailable stores), as opposed to a validation or
// not-found error that will never succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelTimeout) || errors.Is(err, ErrTableUnreachable) {
		return true
	}
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe.Kind == KindTimeout || fe.Kind == KindUnavailable
	}
	return false
}

// IsNotFound reports whether err indicates a missing record/view.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrViewNotFound) {
		return true
	}
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe.Kind == KindNotFound
	}
	return false
}

// IsConfigurationError reports whether err is a configuration problem that
// should never count toward a circuit breaker's failure budget.
func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe.Kind == KindConfiguration
	}
	return false
}

// IsUnknownField reports whether err represents a tenant-store "unknown
// field name" condition that enables the tolerant-update retry.
func IsUnknownField(err error) bool {
	return errors.Is(err, ErrUnknownField)
}
