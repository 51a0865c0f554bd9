package token

import "time"

// Entry holds the token state for one company. Timestamps are Unix seconds
// so the entry serializes to a flat JSON object in the durable tier.
type Entry struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	UpdatedAt    int64  `json:"updated_at"`
	Warning      string `json:"warning,omitempty"`
}

// IsExpiring returns true if the access token is expired or will expire
// within the refresh buffer. An entry with no expiry is always expiring.
func (e *Entry) IsExpiring(buffer time.Duration) bool {
	if e == nil || e.AccessToken == "" || e.ExpiresAt == 0 {
		return true
	}
	return time.Now().Unix() >= e.ExpiresAt-int64(buffer.Seconds())
}

// TTL returns the remaining lifetime of the access token, or zero if the
// token has already expired.
func (e *Entry) TTL() time.Duration {
	if e == nil || e.ExpiresAt == 0 {
		return 0
	}
	remaining := time.Until(time.Unix(e.ExpiresAt, 0))
	if remaining < 0 {
		return 0
	}
	return remaining
}
