// Package revolut is a thin client for the Revolut Business API that sources
// its bearer credentials from the token manager.
package revolut

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hypervisual/banklink/pkg/config"
	"github.com/hypervisual/banklink/pkg/token"
)

const requestTimeout = 15 * time.Second

// Client calls the Business API on behalf of a tenant company. On a 401 it
// forces one token refresh and retries the request once before giving up.
type Client struct {
	base   string
	tokens *token.Manager
	client *http.Client
}

// APIError reports a non-2xx response from the Business API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("revolut api error (HTTP %d): %s", e.Status, e.Body)
}

// New creates a Client using the environment selected by the config.
func New(cfg config.Config, tokens *token.Manager) *Client {
	return &Client{
		base:   cfg.APIBaseURL(),
		tokens: tokens,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Account is a Revolut business account.
type Account struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
	State    string  `json:"state"`
	Public   bool    `json:"public"`
}

// Leg is one side of a transaction.
type Leg struct {
	AccountID   string  `json:"account_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description,omitempty"`
}

// Transaction is a Revolut business transaction.
type Transaction struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	State     string `json:"state"`
	Reference string `json:"reference,omitempty"`
	CreatedAt string `json:"created_at"`
	Legs      []Leg  `json:"legs"`
}

// Counterparty is a payment counterparty.
type Counterparty struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// Accounts lists the company's accounts.
func (c *Client) Accounts(ctx context.Context, company string) ([]Account, error) {
	var accounts []Account
	if err := c.get(ctx, company, "/accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// TransactionsOptions narrows a transaction listing.
type TransactionsOptions struct {
	From  time.Time
	To    time.Time
	Count int
}

// Transactions lists the company's transactions, newest first.
func (c *Client) Transactions(ctx context.Context, company string, opts TransactionsOptions) ([]Transaction, error) {
	q := url.Values{}
	if !opts.From.IsZero() {
		q.Set("from", opts.From.UTC().Format(time.RFC3339))
	}
	if !opts.To.IsZero() {
		q.Set("to", opts.To.UTC().Format(time.RFC3339))
	}
	if opts.Count > 0 {
		q.Set("count", fmt.Sprint(opts.Count))
	}

	var transactions []Transaction
	if err := c.get(ctx, company, "/transactions", q, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

// Counterparties lists the company's counterparties.
func (c *Client) Counterparties(ctx context.Context, company string) ([]Counterparty, error) {
	var counterparties []Counterparty
	if err := c.get(ctx, company, "/counterparties", nil, &counterparties); err != nil {
		return nil, err
	}
	return counterparties, nil
}

func (c *Client) get(ctx context.Context, company, path string, query url.Values, out any) error {
	grant, err := c.tokens.GetValidToken(ctx, company)
	if err != nil {
		return fmt.Errorf("obtaining access token: %w", err)
	}
	if grant.Warning != "" {
		slog.Warn("using stale token for api call", "company", company, "warning", grant.Warning)
	}

	body, status, err := c.do(ctx, path, query, grant.AccessToken)
	if err != nil {
		return err
	}

	// An expired or revoked credential surfaces as a 401; refresh once and
	// retry once.
	if status == http.StatusUnauthorized {
		slog.Info("got 401 from revolut, forcing token refresh", "company", company)
		forced, err := c.tokens.ForceRefresh(ctx, company)
		if err != nil {
			return fmt.Errorf("refresh after 401: %w", err)
		}
		body, status, err = c.do(ctx, path, query, forced.AccessToken)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return &APIError{Status: status, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values, accessToken string) ([]byte, int, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading %s response: %w", path, err)
	}
	return body, resp.StatusCode, nil
}
