package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/mailrelay/internal/log"
)

// Cookie names used by mailrelay
const (
	SessionCookie = "mailrelay_session"
	StateCookie   = "mailrelay_oauth_state"
)

// StateMaxAge bounds how long a login round trip through the identity provider may take.
const StateMaxAge = 10 * time.Minute

// SetSession sets the session cookie with appropriate security settings.
// secure is false only in development mode.
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// SetState stores the login nonce until the provider redirects back.
// SameSite must be Lax: the callback is a cross-site top-level navigation.
func SetState(w http.ResponseWriter, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(StateMaxAge.Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// ClearSession removes the session cookie
func ClearSession(w http.ResponseWriter) {
	Clear(w, SessionCookie)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// ClearState removes the login state cookie
func ClearState(w http.ResponseWriter) {
	Clear(w, StateCookie)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	return Get(r, SessionCookie)
}

// GetState retrieves the login state cookie value
func GetState(r *http.Request) (string, error) {
	return Get(r, StateCookie)
}
