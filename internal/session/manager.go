package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/mailrelay/internal/cookie"
	"github.com/dgellow/mailrelay/internal/crypto"
	"github.com/dgellow/mailrelay/internal/log"
)

// Manager binds sessions in a Store to the browser through a signed cookie
// that carries only the session ID.
type Manager struct {
	store  Store
	signer *crypto.TokenSigner
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewManager creates a manager. key signs the session cookie; secureCookies
// is false only in development mode.
func NewManager(store Store, key []byte, ttl time.Duration, secureCookies bool) *Manager {
	return &Manager{
		store:  store,
		signer: crypto.NewTokenSigner(key, ttl),
		ttl:    ttl,
		secure: secureCookies,
		now:    time.Now,
	}
}

// Load returns the session referenced by the request cookie.
// A missing, tampered or expired cookie yields ErrSessionNotFound.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	id, err := m.sessionID(r)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	sess, err := m.store.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if sess.IsExpired(m.now()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Start stores a new session with the given token and identity and sets the cookie.
// Any session the browser already had is removed first.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, r *http.Request, accessToken, name, email string) (*Session, error) {
	if oldID, err := m.sessionID(r); err == nil {
		if err := m.store.Delete(ctx, oldID); err != nil {
			log.LogWarnWithFields("session", "Failed to delete previous session", log.ContextFields(ctx, map[string]any{
				"error": err.Error(),
			}))
		}
	}

	id, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := m.now()
	sess := &Session{
		ID:          id,
		AccessToken: accessToken,
		Name:        name,
		Email:       email,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.Set(ctx, sess); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	value, err := m.signer.Sign(id)
	if err != nil {
		return nil, fmt.Errorf("signing session cookie: %w", err)
	}
	cookie.SetSession(w, value, m.ttl, m.secure)

	log.LogInfoWithFields("session", "Session started", log.ContextFields(ctx, map[string]any{
		"has_token": accessToken != "",
		"ttl":       m.ttl.String(),
	}))
	return sess, nil
}

// Destroy removes the session from the store and clears the cookie.
// The cookie is cleared even when the store delete fails.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	cookie.ClearSession(w)

	id, err := m.sessionID(r)
	if err != nil {
		return nil
	}
	if err := m.store.Delete(r.Context(), id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	log.LogInfoWithFields("session", "Session destroyed", log.ContextFields(r.Context(), nil))
	return nil
}

func (m *Manager) sessionID(r *http.Request) (string, error) {
	value, err := cookie.GetSession(r)
	if err != nil {
		return "", err
	}
	var id string
	if err := m.signer.Verify(value, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("empty session id")
	}
	return id, nil
}
