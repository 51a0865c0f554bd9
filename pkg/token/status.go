package token

import "time"

// Status is the diagnostic view of one company's token, safe to expose on
// health endpoints: it never carries the refresh token and only the access
// token's metadata.
type Status struct {
	Company          string `json:"company"`
	HasToken         bool   `json:"has_token"`
	HasRefreshToken  bool   `json:"has_refresh_token"`
	Expiring         bool   `json:"expiring"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
	Warning          string `json:"warning,omitempty"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

// TokenStatus returns diagnostics for one company. Reads the memory tier
// only; no network calls.
func (m *Manager) TokenStatus(company string) Status {
	entry := m.store.Peek(company)
	if entry == nil {
		return Status{Company: company, Expiring: true}
	}

	st := Status{
		Company:          company,
		HasToken:         entry.AccessToken != "",
		HasRefreshToken:  entry.RefreshToken != "",
		Expiring:         entry.IsExpiring(m.cfg.RefreshBuffer),
		ExpiresInSeconds: int64(entry.TTL().Seconds()),
		Warning:          entry.Warning,
	}
	if entry.UpdatedAt != 0 {
		st.UpdatedAt = time.Unix(entry.UpdatedAt, 0).UTC().Format(time.RFC3339)
	}
	return st
}

// AllTokenStatuses returns diagnostics for every company in the memory
// tier, sorted by company id.
func (m *Manager) AllTokenStatuses() []Status {
	companies := m.store.Companies()
	statuses := make([]Status, 0, len(companies))
	for _, id := range companies {
		statuses = append(statuses, m.TokenStatus(id))
	}
	return statuses
}
