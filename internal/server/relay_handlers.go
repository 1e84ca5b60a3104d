package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/mailrelay/internal/cookie"
	"github.com/dgellow/mailrelay/internal/crypto"
	"github.com/dgellow/mailrelay/internal/emailutil"
	"github.com/dgellow/mailrelay/internal/graph"
	"github.com/dgellow/mailrelay/internal/idp"
	"github.com/dgellow/mailrelay/internal/log"
	"github.com/dgellow/mailrelay/internal/session"
	"github.com/dgellow/mailrelay/internal/urlutil"
)

const (
	// outboundTimeout bounds the code exchange and the Graph call
	outboundTimeout = 30 * time.Second
	stateTTL        = cookie.StateMaxAge
	maxFormBytes    = 16 << 10
)

// MailSender sends a prepared message with the user's access token
type MailSender interface {
	SendMail(ctx context.Context, accessToken string, msg graph.MailRequest) error
}

// MailRenderer produces the HTML mail body for a display name
type MailRenderer interface {
	Render(name string) (string, error)
}

// RelayConfig carries the settings the handlers need from config.Config
type RelayConfig struct {
	// BaseURL is the application root. Empty derives it from the request.
	BaseURL        string
	LogoutEndpoint string
	MailSubject    string
	// StateKey signs the OAuth state parameter
	StateKey []byte
	// SecureCookies is false only in development mode
	SecureCookies bool
}

// RelayHandlers implements login, callback, send_mail and disconnect
type RelayHandlers struct {
	provider   idp.Provider
	sessions   *session.Manager
	mailer     MailSender
	renderer   MailRenderer
	cfg        RelayConfig
	stateToken *crypto.TokenSigner
}

// NewRelayHandlers creates relay handlers with dependency injection
func NewRelayHandlers(
	provider idp.Provider,
	sessions *session.Manager,
	mailer MailSender,
	renderer MailRenderer,
	cfg RelayConfig,
) *RelayHandlers {
	return &RelayHandlers{
		provider:   provider,
		sessions:   sessions,
		mailer:     mailer,
		renderer:   renderer,
		cfg:        cfg,
		stateToken: crypto.NewTokenSigner(cfg.StateKey, stateTTL),
	}
}

// Home renders the landing page
func (h *RelayHandlers) Home(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{}
	if sess, err := h.sessions.Load(r); err == nil {
		data.SignedIn = true
		data.Name = sess.Name
	}
	renderPage(w, r, http.StatusOK, homePageTemplate, "home.html", data)
}

// Login redirects the browser to the identity provider
func (h *RelayHandlers) Login(w http.ResponseWriter, r *http.Request) {
	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogErrorWithFields("relay", "Failed to generate login nonce", log.ContextFields(r.Context(), map[string]any{
			"error": err.Error(),
		}))
		renderError(w, r, http.StatusInternalServerError, "Could not start sign-in. Please try again.")
		return
	}

	state, err := h.stateToken.Sign(session.AuthorizationState{Nonce: nonce})
	if err != nil {
		log.LogErrorWithFields("relay", "Failed to sign login state", log.ContextFields(r.Context(), map[string]any{
			"error": err.Error(),
		}))
		renderError(w, r, http.StatusInternalServerError, "Could not start sign-in. Please try again.")
		return
	}

	cookie.SetState(w, nonce, h.cfg.SecureCookies)
	log.LogDebugWithFields("relay", "Redirecting to identity provider", log.ContextFields(r.Context(), map[string]any{
		"provider": h.provider.Type(),
	}))
	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// Callback completes the authorization code flow and starts the session
func (h *RelayHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		log.LogWarnWithFields("relay", "Identity provider returned an error", log.ContextFields(ctx, map[string]any{
			"error":       providerErr,
			"description": q.Get("error_description"),
		}))
		cookie.ClearState(w)
		renderError(w, r, http.StatusBadRequest, "Sign-in was not completed: "+providerErr)
		return
	}

	if err := h.verifyState(r, q.Get("state")); err != nil {
		log.LogWarnWithFields("relay", "Rejected callback state", log.ContextFields(ctx, map[string]any{
			"error": err.Error(),
		}))
		cookie.ClearState(w)
		renderError(w, r, http.StatusBadRequest, "The sign-in request is invalid or has expired. Please sign in again.")
		return
	}
	cookie.ClearState(w)

	code := q.Get("code")
	if code == "" {
		renderError(w, r, http.StatusBadRequest, "Missing authorization code.")
		return
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()

	result, err := h.provider.ExchangeCode(exchangeCtx, code)
	if err != nil {
		var exchangeErr *idp.AuthExchangeError
		fields := map[string]any{"error": err.Error()}
		if errors.As(err, &exchangeErr) {
			fields["provider"] = exchangeErr.Provider
		}
		log.LogErrorWithFields("relay", "Authorization code exchange failed", log.ContextFields(ctx, fields))
		renderError(w, r, http.StatusInternalServerError, "Sign-in failed while exchanging the authorization code.")
		return
	}

	sess, err := h.sessions.Start(ctx, w, r, result.AccessToken, result.Name, result.Email)
	if err != nil {
		log.LogErrorWithFields("relay", "Failed to start session", log.ContextFields(ctx, map[string]any{
			"error": err.Error(),
		}))
		renderError(w, r, http.StatusInternalServerError, "Could not save your session. Please try again.")
		return
	}

	log.LogInfoWithFields("relay", "User signed in", log.ContextFields(ctx, map[string]any{
		"provider":  h.provider.Type(),
		"has_name":  sess.Name != "",
		"has_email": sess.Email != "",
	}))

	renderPage(w, r, http.StatusOK, callbackPageTemplate, "callback.html", CallbackPageData{
		SignedIn: true,
		Name:     sess.Name,
		Email:    sess.Email,
	})
}

// SendMail sends the welcome mail to specified_email and re-renders the callback view
func (h *RelayHandlers) SendMail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		renderError(w, r, http.StatusBadRequest, "Invalid form submission.")
		return
	}
	recipient := strings.TrimSpace(r.PostForm.Get("specified_email"))

	sess, err := h.sessions.Load(r)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		log.LogErrorWithFields("relay", "Failed to load session", log.ContextFields(ctx, map[string]any{
			"error": err.Error(),
		}))
		renderError(w, r, http.StatusInternalServerError, "Could not read your session.")
		return
	}

	page := CallbackPageData{
		Email:     recipient,
		Recipient: recipient,
	}

	if !sess.HasToken() {
		log.LogWarnWithFields("relay", "send_mail without a signed-in session", log.ContextFields(ctx, nil))
		page.Flash = (&graph.MailSendError{
			StatusCode: http.StatusUnauthorized,
			Reason:     http.StatusText(http.StatusUnauthorized),
		}).Error()
		renderPage(w, r, http.StatusOK, callbackPageTemplate, "callback.html", page)
		return
	}
	page.SignedIn = true
	page.Name = sess.Name

	addr, ok := emailutil.ParseRecipient(recipient)
	if !ok {
		page.Flash = "Please enter a valid recipient email address."
		renderPage(w, r, http.StatusOK, callbackPageTemplate, "callback.html", page)
		return
	}

	body, err := h.renderer.Render(sess.Name)
	if err != nil {
		log.LogErrorWithFields("relay", "Failed to render mail body", log.ContextFields(ctx, map[string]any{
			"error": err.Error(),
		}))
		renderError(w, r, http.StatusInternalServerError, "Could not prepare the mail.")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()

	err = h.mailer.SendMail(sendCtx, sess.AccessToken, graph.NewMailRequest(h.cfg.MailSubject, body, addr))
	var sendErr *graph.MailSendError
	switch {
	case err == nil:
		page.MailSent = true
		log.LogInfoWithFields("relay", "Mail sent", log.ContextFields(ctx, map[string]any{
			"recipient_domain": emailutil.Domain(addr),
		}))
	case errors.As(err, &sendErr):
		page.Flash = sendErr.Error()
		log.LogWarnWithFields("relay", "Mail rejected", log.ContextFields(ctx, map[string]any{
			"status":     sendErr.StatusCode,
			"graph_code": sendErr.Code,
		}))
	default:
		log.LogErrorWithFields("relay", "Mail request failed", log.ContextFields(ctx, map[string]any{
			"error": err.Error(),
		}))
		renderError(w, r, http.StatusBadGateway, "Could not reach the mail service.")
		return
	}

	renderPage(w, r, http.StatusOK, callbackPageTemplate, "callback.html", page)
}

// Disconnect clears the session and signs the user out at the identity provider
func (h *RelayHandlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(w, r); err != nil {
		log.LogWarnWithFields("relay", "Failed to delete session", log.ContextFields(r.Context(), map[string]any{
			"error": err.Error(),
		}))
	}

	root, err := h.rootURL(r)
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, "Invalid application URL.")
		return
	}
	logoutURL, err := urlutil.LogoutURL(h.cfg.LogoutEndpoint, root)
	if err != nil {
		log.LogErrorWithFields("relay", "Invalid logout endpoint", log.ContextFields(r.Context(), map[string]any{
			"error": err.Error(),
		}))
		renderError(w, r, http.StatusInternalServerError, "Invalid logout endpoint.")
		return
	}

	log.LogInfoWithFields("relay", "User disconnected", log.ContextFields(r.Context(), nil))
	http.Redirect(w, r, logoutURL, http.StatusFound)
}

func (h *RelayHandlers) verifyState(r *http.Request, state string) error {
	if state == "" {
		return errors.New("missing state parameter")
	}
	var authState session.AuthorizationState
	if err := h.stateToken.Verify(state, &authState); err != nil {
		return fmt.Errorf("verifying state: %w", err)
	}
	nonce, err := cookie.GetState(r)
	if err != nil {
		return errors.New("missing state cookie")
	}
	if authState.Nonce == "" || subtle.ConstantTimeCompare([]byte(nonce), []byte(authState.Nonce)) != 1 {
		return errors.New("state does not match this browser")
	}
	return nil
}

// rootURL is BaseURL when configured, otherwise scheme and host of the request
func (h *RelayHandlers) rootURL(r *http.Request) (string, error) {
	if h.cfg.BaseURL != "" {
		return urlutil.RootURL(h.cfg.BaseURL)
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return urlutil.RootURL(scheme + "://" + r.Host)
}
