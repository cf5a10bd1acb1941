package completion

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAuth        = errors.New("completion: authentication failed")
	ErrRateLimited = errors.New("completion: rate limit exceeded")
)

// UpstreamError is a non-success answer from the completion endpoint.
type UpstreamError struct {
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return e.Detail
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Detail)
}

// TransportError wraps failures that never produced an upstream response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "completion transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Kind is the coarse error class handed to the HTTP boundary.
type Kind string

const (
	KindNone        Kind = ""
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream"
	KindTransport   Kind = "transport"
	KindCanceled    Kind = "canceled"
	KindUnknown     Kind = "unknown"
)

// Classify maps an error returned by a Gateway to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var upstream *UpstreamError
	var transport *TransportError
	switch {
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.As(err, &upstream):
		return KindUpstream
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &transport):
		return KindTransport
	default:
		return KindUnknown
	}
}
