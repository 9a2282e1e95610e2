package tokens

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotAuthorized means no credential is on file for the account. There is
// nothing to retry: an operator has to run the OAuth flow.
var ErrNotAuthorized = errors.New("no credential on file; run the OAuth authorization flow first")

// RefreshFailedError means the provider rejected our refresh token. The
// stored grant is considered exhausted until the account re-authorizes.
type RefreshFailedError struct {
	Status int
	Body   string
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh rejected (HTTP %d): %s", e.Status, e.Body)
}

// ExchangeFailedError means the authorization code was invalid or expired.
type ExchangeFailedError struct {
	Status int
	Body   string
}

func (e *ExchangeFailedError) Error() string {
	return fmt.Sprintf("authorization code exchange rejected (HTTP %d): %s", e.Status, e.Body)
}
