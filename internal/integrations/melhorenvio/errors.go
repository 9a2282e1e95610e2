package melhorenvio

import "fmt"

// UnauthorizedError is a second consecutive 401 after a forced token
// re-validation. Not retried further: a third attempt would just loop on a
// genuinely invalid grant.
type UnauthorizedError struct {
	Body string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("provider rejected token twice (HTTP 401): %s", e.Body)
}

// UpstreamUnavailableError means the server-error retries were exhausted.
// The caller may retry later.
type UpstreamUnavailableError struct {
	Status int
	Body   string
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable after retries (HTTP %d): %s", e.Status, e.Body)
}

// UpstreamRejectedError is any 4xx other than 401: the request itself is
// defective, so retrying would not help.
type UpstreamRejectedError struct {
	Status int
	Body   string
}

func (e *UpstreamRejectedError) Error() string {
	return fmt.Sprintf("provider rejected request (HTTP %d): %s", e.Status, e.Body)
}
