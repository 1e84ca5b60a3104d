// Package session holds the per-browser login state: the Graph access token
// and the identity shown back to the user.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session doesn't exist or has expired
var ErrSessionNotFound = errors.New("session not found")

// Session is created by a successful callback, read by send_mail and removed by disconnect.
type Session struct {
	ID          string    `json:"id"`
	AccessToken string    `json:"access_token"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the session lifetime has elapsed at now
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// HasToken reports whether the session carries an access token
func (s *Session) HasToken() bool {
	return s != nil && s.AccessToken != ""
}

// Store persists sessions by ID. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns ErrSessionNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (*Session, error)
	// Set creates or replaces the session. It expires at sess.ExpiresAt.
	Set(ctx context.Context, sess *Session) error
	// Delete removes the session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, id string) error
}

// AuthorizationState is signed into the OAuth state parameter
type AuthorizationState struct {
	Nonce string `json:"nonce"`
}
