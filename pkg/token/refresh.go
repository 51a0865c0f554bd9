package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// refreshTimeout bounds the whole token exchange, including connection
// setup and body read.
const refreshTimeout = 10 * time.Second

type refreshRequest struct {
	GrantType           string `json:"grant_type"`
	RefreshToken        string `json:"refresh_token"`
	ClientID            string `json:"client_id"`
	ClientAssertionType string `json:"client_assertion_type"`
	ClientAssertion     string `json:"client_assertion,omitempty"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// refresh exchanges the stored refresh token for a new token pair and
// persists the result. On any failure the stored entry is left untouched
// and a typed error is returned for the caller to decide fallback policy.
//
// Callers must route through the single-flight group; refresh itself does
// not deduplicate.
func (m *Manager) refresh(ctx context.Context, company string) (*Entry, error) {
	current := m.store.Get(ctx, company)
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("%w: company %s", ErrNoRefreshToken, company)
	}

	slog.Info("refreshing token", "company", company)

	body := refreshRequest{
		GrantType:           "refresh_token",
		RefreshToken:        current.RefreshToken,
		ClientID:            m.cfg.ClientID,
		ClientAssertionType: clientAssertionType,
	}

	// A missing signer is non-fatal: some sandbox configurations accept
	// refresh without a client assertion.
	if m.signer != nil {
		assertion, err := m.signer.Assertion(time.Now())
		if err != nil {
			slog.Warn("client assertion generation failed, continuing without", "company", company, "error", err)
		} else {
			body.ClientAssertion = assertion
		}
	} else {
		slog.Warn("no assertion signer configured, refreshing without client assertion", "company", company)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling refresh request: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodPost, m.cfg.TokenURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &RefreshError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RefreshError{Status: resp.StatusCode, Message: "reading refresh response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RefreshError{Status: resp.StatusCode, Message: string(respBody)}
	}

	var tr refreshResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, &RefreshError{Status: resp.StatusCode, Message: "parsing refresh response: " + err.Error()}
	}
	if tr.AccessToken == "" {
		return nil, &RefreshError{Status: resp.StatusCode, Message: "empty access token in refresh response"}
	}

	// Keep the old refresh token when the server does not rotate it.
	rt := tr.RefreshToken
	if rt == "" {
		rt = current.RefreshToken
	}

	ttl := m.cfg.DefaultTokenTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	now := time.Now()
	entry := &Entry{
		AccessToken:  tr.AccessToken,
		RefreshToken: rt,
		ExpiresAt:    now.Add(ttl).Unix(),
		UpdatedAt:    now.Unix(),
	}
	m.store.Set(ctx, company, entry)

	slog.Info("token refreshed", "company", company, "expires_in", ttl.Round(time.Second))
	return entry, nil
}
