package resolver

import (
	"errors"
	"net/http"

	"github.com/txn2/drs-resolver/pkg/upstream"
)

// ErrMissingCredential is returned when a signed URL needs a fence token the
// broker did not provide.
var ErrMissingCredential = errors.New("missing credential")

// Kind classifies a resolution failure.
type Kind int

// Failure kinds.
const (
	KindClient Kind = iota + 1
	KindMissingCredential
	KindUpstream
	KindPolicy
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client_error"
	case KindMissingCredential:
		return "missing_credential"
	case KindUpstream:
		return "upstream_failure"
	case KindPolicy:
		return "policy_failure"
	default:
		return "unknown"
	}
}

// Error is a failed resolution. Description names the failing step and is
// prefixed to the underlying cause in the message.
type Error struct {
	Kind        Kind
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Description
	}
	detail := e.Err.Error()
	if ue, ok := e.Err.(*upstream.Error); ok {
		detail = ue.Detail()
	}
	if e.Description == "" {
		return detail
	}
	return e.Description + " " + detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps err to the HTTP status a caller should see. Client and
// credential failures are 400; upstream failures keep the upstream status
// when it is an error status, else 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var re *Error
	if errors.As(err, &re) && re.Kind == KindClient {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrMissingCredential) {
		return http.StatusBadRequest
	}
	if code := upstream.StatusCode(err); code >= 400 && code <= 599 {
		return code
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of err, or 0 if err is not a resolution error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

func clientError(err error) error {
	return &Error{Kind: KindClient, Err: err}
}

func upstreamError(description string, err error) error {
	return &Error{Kind: KindUpstream, Description: description, Err: err}
}
