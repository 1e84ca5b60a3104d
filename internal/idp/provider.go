package idp

import (
	"context"
	"fmt"
	"time"
)

// AuthResult is the outcome of a successful code exchange.
// Identity fields come from the id_token returned alongside the access token.
type AuthResult struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresAt    time.Time

	Subject  string
	TenantID string
	Name     string
	Email    string
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier (e.g., "azure").
	Type() string

	// AuthURL generates the authorization URL for the OAuth flow.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for an access token and identity.
	// Failures are returned as *AuthExchangeError.
	ExchangeCode(ctx context.Context, code string) (*AuthResult, error)
}

// AuthExchangeError reports a failed authorization code exchange
type AuthExchangeError struct {
	Provider string
	Err      error
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("%s code exchange failed: %v", e.Provider, e.Err)
}

func (e *AuthExchangeError) Unwrap() error {
	return e.Err
}
