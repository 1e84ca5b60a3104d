// Package storage provides session.Store backends.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dgellow/mailrelay/internal/crypto"
	"github.com/dgellow/mailrelay/internal/session"
)

// Sweeper removes expired sessions from stores that don't expire entries themselves
type Sweeper interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// sessionRecord is the at-rest form of a session in shared stores.
// The access token is encrypted; identity fields are kept for display.
type sessionRecord struct {
	ID             string    `json:"id" firestore:"id"`
	EncryptedToken string    `json:"token" firestore:"token"`
	Name           string    `json:"name" firestore:"name"`
	Email          string    `json:"email" firestore:"email"`
	CreatedAt      time.Time `json:"created_at" firestore:"created_at"`
	ExpiresAt      time.Time `json:"expires_at" firestore:"expires_at"`
}

func sealSession(enc crypto.Encryptor, sess *session.Session) (*sessionRecord, error) {
	token, err := enc.Encrypt(sess.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}
	return &sessionRecord{
		ID:             sess.ID,
		EncryptedToken: token,
		Name:           sess.Name,
		Email:          sess.Email,
		CreatedAt:      sess.CreatedAt,
		ExpiresAt:      sess.ExpiresAt,
	}, nil
}

func (r *sessionRecord) open(enc crypto.Encryptor) (*session.Session, error) {
	token, err := enc.Decrypt(r.EncryptedToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting access token: %w", err)
	}
	return &session.Session{
		ID:          r.ID,
		AccessToken: token,
		Name:        r.Name,
		Email:       r.Email,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}, nil
}
