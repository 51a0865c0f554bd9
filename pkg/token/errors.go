package token

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means the client id or signing key needed to build
	// client assertions is missing.
	ErrNotConfigured = errors.New("revolut client credentials are not configured")

	// ErrNoToken means a company has never been authorized and no bootstrap
	// credentials are configured.
	ErrNoToken = errors.New("no token stored for company")

	// ErrNoRefreshToken means the stored entry has no refresh credential,
	// typically a static bootstrap token.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// RefreshError reports a failed token refresh exchange. Status is the HTTP
// status code from the token endpoint, or 0 for transport-level failures.
type RefreshError struct {
	Status  int
	Message string
}

func (e *RefreshError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("token refresh failed: %s", e.Message)
	}
	return fmt.Sprintf("token refresh failed (HTTP %d): %s", e.Status, e.Message)
}
