package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrTokenExpired     = errors.New("token expired")
)

// TokenSigner produces HMAC-signed JSON tokens with optional expiry.
// It backs the OAuth state parameter and the session cookie value.
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenSigner creates a new token signer. A zero ttl disables expiry.
func NewTokenSigner(signingKey []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

type signedPayload struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
}

// Sign marshals v, wraps it with the expiry and returns "<payload>.<signature>"
func (ts *TokenSigner) Sign(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	payload := signedPayload{Data: data}
	if ts.ttl > 0 {
		payload.ExpiresAt = ts.now().Add(ts.ttl)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token data: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return encoded + "." + SignData(encoded, ts.signingKey), nil
}

// Verify checks the signature and expiry, then unmarshals the payload into v
func (ts *TokenSigner) Verify(token string, v any) error {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || signature == "" {
		return ErrMalformedToken
	}

	if !ValidateSignedData(encoded, signature, ts.signingKey) {
		return ErrInvalidSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var payload signedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !payload.ExpiresAt.IsZero() && ts.now().After(payload.ExpiresAt) {
		return ErrTokenExpired
	}

	if err := json.Unmarshal(payload.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal token data: %w", err)
	}
	return nil
}
