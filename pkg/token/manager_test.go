package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hypervisual/banklink/pkg/config"
)

func testConfig(tokenEndpoint string) config.Config {
	return config.Config{
		ClientID:        "test-client",
		RefreshBuffer:   5 * time.Minute,
		DefaultTokenTTL: 40 * time.Minute,
		TokenEndpoint:   tokenEndpoint,
	}
}

// tokenEndpoint is a mock refresh endpoint counting outbound calls.
func tokenEndpoint(t *testing.T, calls *atomic.Int64, status int, delay time.Duration) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(delay)

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding refresh request: %v", err)
		}
		if req["grant_type"] != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", req["grant_type"])
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "bearer",
			"expires_in":    2400,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func seed(t *testing.T, m *Manager, company string, expiresIn time.Duration) {
	t.Helper()
	err := m.StoreToken(context.Background(), company, Data{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(expiresIn).Unix(),
	})
	if err != nil {
		t.Fatalf("StoreToken() error = %v", err)
	}
}

func TestGetValidToken_NoTokenNoBootstrap(t *testing.T) {
	m := NewManager(testConfig(""), NewStore(nil))

	if !m.IsTokenExpiring("never-stored") {
		t.Error("IsTokenExpiring() = false for unknown company, want true")
	}

	_, err := m.GetValidToken(context.Background(), "never-stored")
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("GetValidToken() error = %v, want ErrNoToken", err)
	}
}

func TestGetValidToken_Bootstrap(t *testing.T) {
	cfg := testConfig("")
	cfg.BootstrapAccessToken = "boot-access"
	cfg.BootstrapRefreshToken = "boot-refresh"
	m := NewManager(cfg, NewStore(nil))

	grant, err := m.GetValidToken(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetValidToken() error = %v", err)
	}
	if grant.AccessToken != "boot-access" || grant.Source != SourceBootstrap {
		t.Errorf("grant = %+v, want boot-access/bootstrap", grant)
	}

	// The bootstrapped entry is now cached.
	grant, err = m.GetValidToken(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetValidToken() error = %v", err)
	}
	if grant.Source != SourceCache {
		t.Errorf("second grant source = %q, want cache", grant.Source)
	}
}

func TestGetValidToken_FreshCacheHit(t *testing.T) {
	var calls atomic.Int64
	server := tokenEndpoint(t, &calls, http.StatusOK, 0)
	m := NewManager(testConfig(server.URL), NewStore(nil))

	seed(t, m, "t1", 40*time.Minute)

	grant, err := m.GetValidToken(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetValidToken() error = %v", err)
	}
	if grant.AccessToken != "A1" || grant.Source != SourceCache {
		t.Errorf("grant = %+v, want A1/cache", grant)
	}
	if calls.Load() != 0 {
		t.Errorf("outbound calls = %d, want 0", calls.Load())
	}
}

func TestGetValidToken_RefreshesExpiring(t *testing.T) {
	var calls atomic.Int64
	server := tokenEndpoint(t, &calls, http.StatusOK, 0)
	m := NewManager(testConfig(server.URL), NewStore(nil))

	// 240s remaining, inside the 300s buffer.
	seed(t, m, "t1", 240*time.Second)

	grant, err := m.GetValidToken(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetValidToken() error = %v", err)
	}
	if grant.AccessToken != "new-access" || grant.Source != SourceRefreshed {
		t.Errorf("grant = %+v, want new-access/refreshed", grant)
	}
	if calls.Load() != 1 {
		t.Errorf("outbound calls = %d, want 1", calls.Load())
	}

	// The rotated refresh token was stored.
	entry := m.store.Peek("t1")
	if entry == nil || entry.RefreshToken != "new-refresh" {
		t.Errorf("stored entry = %+v, want refresh token new-refresh", entry)
	}
	if entry.Warning != "" {
		t.Errorf("stored entry warning = %q, want empty after success", entry.Warning)
	}
}

func TestGetValidToken_SingleFlight(t *testing.T) {
	var calls atomic.Int64
	server := tokenEndpoint(t, &calls, http.StatusOK, 100*time.Millisecond)
	m := NewManager(testConfig(server.URL), NewStore(nil))

	seed(t, m, "t1", 240*time.Second)

	const goroutines = 10
	var wg sync.WaitGroup
	grants := make([]Grant, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			grants[i], errs[i] = m.GetValidToken(context.Background(), "t1")
		}()
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if grants[i].AccessToken != "new-access" {
			t.Errorf("caller %d access token = %q, want new-access", i, grants[i].AccessToken)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("outbound calls = %d, want exactly 1", calls.Load())
	}
}

func TestGetValidToken_StaleFallback(t *testing.T) {
	var calls atomic.Int64
	server := tokenEndpoint(t, &calls, http.StatusInternalServerError, 0)
	m := NewManager(testConfig(server.URL), NewStore(nil))

	seed(t, m, "t1", 240*time.Second)

	grant, err := m.GetValidToken(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetValidToken() error = %v, want stale fallback instead", err)
	}
	if grant.AccessToken != "A1" || grant.Source != SourceStale {
		t.Errorf("grant = %+v, want A1/stale", grant)
	}
	if grant.Warning == "" {
		t.Error("grant warning is empty, want refresh failure annotation")
	}

	// The warning was persisted on the entry.
	entry := m.store.Peek("t1")
	if entry == nil || entry.Warning == "" {
		t.Errorf("stored entry = %+v, want persisted warning", entry)
	}

	// STALE_WITH_WARNING is not terminal: the next call retries the refresh.
	_, err = m.GetValidToken(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetValidToken() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("outbound calls = %d, want 2 (one per attempt)", calls.Load())
	}
}

func TestForceRefresh_BypassesFreshness(t *testing.T) {
	var calls atomic.Int64
	server := tokenEndpoint(t, &calls, http.StatusOK, 0)
	m := NewManager(testConfig(server.URL), NewStore(nil))

	// Fresh entry, nowhere near the buffer.
	seed(t, m, "t1", 40*time.Minute)

	grant, err := m.ForceRefresh(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if grant.AccessToken != "new-access" || grant.Source != SourceForced {
		t.Errorf("grant = %+v, want new-access/forced", grant)
	}
	if calls.Load() != 1 {
		t.Errorf("outbound calls = %d, want exactly 1", calls.Load())
	}
}

func TestForceRefresh_PropagatesFailure(t *testing.T) {
	var calls atomic.Int64
	server := tokenEndpoint(t, &calls, http.StatusBadGateway, 0)
	m := NewManager(testConfig(server.URL), NewStore(nil))

	seed(t, m, "t1", 40*time.Minute)

	_, err := m.ForceRefresh(context.Background(), "t1")
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("ForceRefresh() error = %v, want *RefreshError", err)
	}
	if refreshErr.Status != http.StatusBadGateway {
		t.Errorf("RefreshError.Status = %d, want 502", refreshErr.Status)
	}
}

func TestForceRefresh_NoRefreshToken(t *testing.T) {
	m := NewManager(testConfig(""), NewStore(nil))

	err := m.StoreToken(context.Background(), "t1", Data{AccessToken: "static-only"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.ForceRefresh(context.Background(), "t1")
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("ForceRefresh() error = %v, want ErrNoRefreshToken", err)
	}
}

func TestRefresh_KeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "new-access",
			"expires_in":   2400,
			// No refresh_token in the response.
		})
	}))
	defer server.Close()

	m := NewManager(testConfig(server.URL), NewStore(nil))
	seed(t, m, "t1", 240*time.Second)

	if _, err := m.ForceRefresh(context.Background(), "t1"); err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}

	entry := m.store.Peek("t1")
	if entry == nil || entry.RefreshToken != "R1" {
		t.Errorf("stored entry = %+v, want old refresh token R1 kept", entry)
	}
}

func TestStoreToken_Validation(t *testing.T) {
	m := NewManager(testConfig(""), NewStore(nil))

	if err := m.StoreToken(context.Background(), "t1", Data{}); err == nil {
		t.Error("StoreToken() with empty access token = nil error, want error")
	}
}

func TestStoreToken_DefaultTTL(t *testing.T) {
	m := NewManager(testConfig(""), NewStore(nil))

	if err := m.StoreToken(context.Background(), "t1", Data{AccessToken: "A1"}); err != nil {
		t.Fatal(err)
	}

	entry := m.store.Peek("t1")
	want := time.Now().Add(40 * time.Minute).Unix()
	if entry.ExpiresAt < want-5 || entry.ExpiresAt > want+5 {
		t.Errorf("ExpiresAt = %d, want ~%d (default 40m TTL)", entry.ExpiresAt, want)
	}
}

func TestTokenStatus(t *testing.T) {
	m := NewManager(testConfig(""), NewStore(nil))

	st := m.TokenStatus("unknown")
	if st.HasToken || !st.Expiring {
		t.Errorf("status for unknown company = %+v, want no token, expiring", st)
	}

	seed(t, m, "t1", 30*time.Minute)
	st = m.TokenStatus("t1")
	if !st.HasToken || !st.HasRefreshToken || st.Expiring {
		t.Errorf("status = %+v, want token present, refreshable, not expiring", st)
	}
	if st.ExpiresInSeconds < 29*60 || st.ExpiresInSeconds > 30*60 {
		t.Errorf("ExpiresInSeconds = %d, want ~1800", st.ExpiresInSeconds)
	}

	seed(t, m, "t2", 30*time.Minute)
	all := m.AllTokenStatuses()
	if len(all) != 2 || all[0].Company != "t1" || all[1].Company != "t2" {
		t.Errorf("AllTokenStatuses() = %+v, want t1 and t2 in order", all)
	}
}
