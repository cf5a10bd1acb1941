package reliability

// Class groups upstream HTTP status codes by how the caller should react.
type Class string

const (
	ClassOK          Class = "ok"
	ClassAuth        Class = "auth"
	ClassRateLimited Class = "rate_limited"
	ClassUpstream    Class = "upstream"
)

// ClassifyHTTPStatus maps an upstream response status to a failure class.
func ClassifyHTTPStatus(code int) Class {
	switch {
	case code >= 200 && code < 300:
		return ClassOK
	case code == 401:
		return ClassAuth
	case code == 429:
		return ClassRateLimited
	default:
		return ClassUpstream
	}
}

// IsRetryableHTTPStatus reports whether a client may reasonably try again later.
// Nothing in the request path retries on its own; this only feeds error payloads.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
