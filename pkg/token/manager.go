// Package token owns the OAuth2 access-token lifecycle for the Revolut
// Business API across multiple tenant companies: proactive refresh before
// the 40-minute expiry, stale-with-warning degradation when refresh fails,
// and recovery from the durable tier after a restart.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hypervisual/banklink/pkg/config"
)

// Source says where a granted access token came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceRefreshed Source = "refreshed"
	SourceBootstrap Source = "bootstrap"
	SourceStale     Source = "stale"
	SourceForced    Source = "forced"
)

// Grant is the result of a token request. Warning is non-empty only when
// the token is being served stale after a failed refresh.
type Grant struct {
	AccessToken string `json:"access_token"`
	Source      Source `json:"source"`
	Warning     string `json:"warning,omitempty"`
}

// Data seeds or overwrites a company's token out of band, typically after
// an OAuth2 authorization completed elsewhere. Exactly one of ExpiresAt
// (Unix seconds) and ExpiresIn (seconds) is usually set; when both are
// absent the default TTL applies.
type Data struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// Manager is the public token lifecycle API. It is safe for use from
// concurrent request handlers; refreshes for a given company are collapsed
// into one outbound call via the single-flight group.
type Manager struct {
	cfg    config.Config
	store  *Store
	signer *Signer
	client *http.Client
	group  singleflight.Group
}

// NewManager creates a Manager over the given store. A signer is built from
// the config when client credentials are present; without one the manager
// still works, issuing refresh requests with no client assertion.
func NewManager(cfg config.Config, st *Store) *Manager {
	signer, err := NewSigner(cfg)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			slog.Warn("client assertion signing disabled", "reason", err)
		} else {
			slog.Error("client assertion signer unavailable", "error", err)
		}
		signer = nil
	}

	return &Manager{
		cfg:    cfg,
		store:  st,
		signer: signer,
		client: &http.Client{Timeout: refreshTimeout},
	}
}

// GetValidToken returns a usable access token for the company, refreshing
// it first if it is inside the refresh buffer. A failed refresh degrades to
// the last good token with a warning; the only errors callers see are for
// companies that were never authorized at all.
func (m *Manager) GetValidToken(ctx context.Context, company string) (Grant, error) {
	entry := m.store.Get(ctx, company)

	if entry == nil {
		bootstrapped, err := m.bootstrap(ctx, company)
		if err != nil {
			return Grant{}, err
		}
		return Grant{AccessToken: bootstrapped.AccessToken, Source: SourceBootstrap}, nil
	}

	if !entry.IsExpiring(m.cfg.RefreshBuffer) {
		return Grant{AccessToken: entry.AccessToken, Source: SourceCache}, nil
	}

	fresh, err := m.singleFlightRefresh(ctx, company)
	if err == nil {
		return Grant{AccessToken: fresh.AccessToken, Source: SourceRefreshed}, nil
	}

	// Serve the last good token rather than failing the caller's request.
	slog.Warn("refresh failed, serving stale token", "company", company, "error", err)
	entry.Warning = fmt.Sprintf("refresh failed: %v", err)
	m.store.Set(ctx, company, entry)

	return Grant{AccessToken: entry.AccessToken, Source: SourceStale, Warning: entry.Warning}, nil
}

// ForceRefresh refreshes unconditionally, regardless of expiry state, and
// propagates failure. Callers use it after an upstream 401, where silently
// returning the same stale token would be wrong.
func (m *Manager) ForceRefresh(ctx context.Context, company string) (Grant, error) {
	entry, err := m.singleFlightRefresh(ctx, company)
	if err != nil {
		return Grant{}, err
	}
	return Grant{AccessToken: entry.AccessToken, Source: SourceForced}, nil
}

// StoreToken seeds or overwrites the company's token entry. Last write
// wins; a seed racing an in-flight refresh costs at most one extra refresh
// cycle later.
func (m *Manager) StoreToken(ctx context.Context, company string, data Data) error {
	if data.AccessToken == "" {
		return errors.New("access token is required")
	}

	now := time.Now()
	expiresAt := data.ExpiresAt
	if expiresAt == 0 {
		ttl := m.cfg.DefaultTokenTTL
		if data.ExpiresIn > 0 {
			ttl = time.Duration(data.ExpiresIn) * time.Second
		}
		expiresAt = now.Add(ttl).Unix()
	}

	entry := &Entry{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		ExpiresAt:    expiresAt,
		UpdatedAt:    now.Unix(),
	}
	m.store.Set(ctx, company, entry)

	slog.Info("token stored", "company", company,
		"expires_in", time.Until(time.Unix(expiresAt, 0)).Round(time.Minute))
	return nil
}

// IsTokenExpiring reports whether the company's token is absent, expired,
// or inside the refresh buffer. Pure read on the memory tier; no I/O.
func (m *Manager) IsTokenExpiring(company string) bool {
	return m.store.Peek(company).IsExpiring(m.cfg.RefreshBuffer)
}

// bootstrap seeds an entry from statically configured credentials, used the
// first time a company is seen in a process with no durable record.
func (m *Manager) bootstrap(ctx context.Context, company string) (*Entry, error) {
	if m.cfg.BootstrapAccessToken == "" {
		return nil, fmt.Errorf("%w: %s (authorize via Revolut OAuth2 first)", ErrNoToken, company)
	}

	now := time.Now()
	entry := &Entry{
		AccessToken:  m.cfg.BootstrapAccessToken,
		RefreshToken: m.cfg.BootstrapRefreshToken,
		ExpiresAt:    now.Add(m.cfg.DefaultTokenTTL).Unix(),
		UpdatedAt:    now.Unix(),
	}
	m.store.Set(ctx, company, entry)

	slog.Info("token bootstrapped from static credentials", "company", company)
	return entry, nil
}

// singleFlightRefresh collapses concurrent refreshes for one company into a
// single outbound exchange whose result every waiter observes. Different
// companies refresh independently.
func (m *Manager) singleFlightRefresh(ctx context.Context, company string) (*Entry, error) {
	v, err, _ := m.group.Do(company, func() (any, error) {
		return m.refresh(ctx, company)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}
