package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/mailrelay/internal/cookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu        sync.Mutex
	sessions  map[string]Session
	deleteErr error
}

func newMapStore() *mapStore {
	return &mapStore{sessions: make(map[string]Session)}
}

func (s *mapStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *mapStore) Set(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *mapStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.sessions, id)
	return nil
}

func (s *mapStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

var testKey = []byte(strings.Repeat("k", 32))

// requestWithCookies replays the cookies set on rec into a new request
func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			req.AddCookie(c)
		}
	}
	return req
}

func TestManager_StartAndLoad(t *testing.T) {
	store := newMapStore()
	m := NewManager(store, testKey, time.Hour, true)

	rec := httptest.NewRecorder()
	sess, err := m.Start(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/callback", nil), "access-token", "Jane Doe", "jane@contoso.com")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookie.SessionCookie, cookies[0].Name)
	assert.NotContains(t, cookies[0].Value, "access-token")

	loaded, err := m.Load(requestWithCookies(rec))
	require.NoError(t, err)
	assert.Equal(t, "access-token", loaded.AccessToken)
	assert.Equal(t, "Jane Doe", loaded.Name)
	assert.Equal(t, "jane@contoso.com", loaded.Email)
	assert.True(t, loaded.HasToken())
}

func TestManager_LoadMissingOrTampered(t *testing.T) {
	m := NewManager(newMapStore(), testKey, time.Hour, true)

	_, err := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: "forged.value"})
	_, err = m.Load(req)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// a cookie signed with another key is rejected
	other := NewManager(newMapStore(), []byte(strings.Repeat("z", 32)), time.Hour, true)
	rec := httptest.NewRecorder()
	_, err = other.Start(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), "tok", "n", "e")
	require.NoError(t, err)
	_, err = m.Load(requestWithCookies(rec))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_LoadExpired(t *testing.T) {
	store := newMapStore()
	m := NewManager(store, testKey, time.Hour, true)

	rec := httptest.NewRecorder()
	_, err := m.Start(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), "tok", "n", "e")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.Load(requestWithCookies(rec))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_StartReplacesPreviousSession(t *testing.T) {
	store := newMapStore()
	m := NewManager(store, testKey, time.Hour, true)

	first := httptest.NewRecorder()
	_, err := m.Start(context.Background(), first, httptest.NewRequest(http.MethodGet, "/", nil), "tok-1", "n", "e")
	require.NoError(t, err)
	require.Equal(t, 1, store.len())

	second := httptest.NewRecorder()
	_, err = m.Start(context.Background(), second, requestWithCookies(first), "tok-2", "n", "e")
	require.NoError(t, err)
	assert.Equal(t, 1, store.len())

	loaded, err := m.Load(requestWithCookies(second))
	require.NoError(t, err)
	assert.Equal(t, "tok-2", loaded.AccessToken)
}

func TestManager_Destroy(t *testing.T) {
	store := newMapStore()
	m := NewManager(store, testKey, time.Hour, true)

	rec := httptest.NewRecorder()
	_, err := m.Start(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), "tok", "n", "e")
	require.NoError(t, err)

	req := requestWithCookies(rec)
	out := httptest.NewRecorder()
	require.NoError(t, m.Destroy(out, req))
	assert.Equal(t, 0, store.len())

	cleared := out.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	_, err = m.Load(req)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// no cookie: still clears and succeeds
	require.NoError(t, m.Destroy(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestManager_DestroyStoreError(t *testing.T) {
	store := newMapStore()
	m := NewManager(store, testKey, time.Hour, true)

	rec := httptest.NewRecorder()
	_, err := m.Start(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), "tok", "n", "e")
	require.NoError(t, err)

	store.deleteErr = errors.New("backend down")
	out := httptest.NewRecorder()
	err = m.Destroy(out, requestWithCookies(rec))
	require.Error(t, err)
	require.Len(t, out.Result().Cookies(), 1, "cookie is cleared even when the store fails")
}

func TestSessionIsExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Session{}).IsExpired(now))
	assert.False(t, (&Session{ExpiresAt: now.Add(time.Minute)}).IsExpired(now))
	assert.True(t, (&Session{ExpiresAt: now}).IsExpired(now))

	var nilSession *Session
	assert.False(t, nilSession.HasToken())
}

func TestManager_CookieSecureFlag(t *testing.T) {
	for _, secure := range []bool{true, false} {
		m := NewManager(newMapStore(), testKey, time.Hour, secure)
		rec := httptest.NewRecorder()
		_, err := m.Start(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), "tok", "n", "e")
		require.NoError(t, err)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, secure, cookies[0].Secure)
	}
}
