package token

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hypervisual/banklink/pkg/config"
)

// assertionLifetime is deliberately short: the assertion authenticates a
// single token request and must not be replayable beyond it.
const assertionLifetime = 60 * time.Second

// assertionAudience is fixed by Revolut for both sandbox and production.
const assertionAudience = "https://revolut.com"

// Signer builds RS256 client assertions used as the client_assertion field
// of token refresh requests. Key material is loaded once at construction;
// signing itself performs no I/O.
type Signer struct {
	clientID string
	key      *rsa.PrivateKey
}

// NewSigner creates a Signer from the configured client id and private key.
// The key may be inline PEM or a path to a PEM file; the file is read here,
// not per signature. Returns ErrNotConfigured when either the client id or
// the key is missing.
func NewSigner(cfg config.Config) (*Signer, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client id", ErrNotConfigured)
	}

	pem := []byte(cfg.PrivateKeyPEM)
	if len(pem) == 0 && cfg.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key file: %w", err)
		}
		pem = data
	}
	if len(pem) == 0 {
		return nil, fmt.Errorf("%w: missing private key", ErrNotConfigured)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return &Signer{clientID: cfg.ClientID, key: key}, nil
}

// Assertion returns a signed client assertion valid for 60 seconds from now.
func (s *Signer) Assertion(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    s.clientID,
		Subject:   s.clientID,
		Audience:  jwt.ClaimStrings{assertionAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing client assertion: %w", err)
	}
	return signed, nil
}
