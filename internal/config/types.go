package config

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dgellow/mailrelay/internal/envutil"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// SessionStoreKind selects the session store backend
type SessionStoreKind string

const (
	SessionStoreMemory    SessionStoreKind = "memory"
	SessionStoreRedis     SessionStoreKind = "redis"
	SessionStoreFirestore SessionStoreKind = "firestore"
)

// Defaults for the Azure AD v1 endpoints and Microsoft Graph
const (
	DefaultAuthorityHost = "login.windows.net"
	DefaultGraphResource = "https://graph.microsoft.com"
	DefaultSendMailPath  = "/beta/me/sendmail"
	DefaultMailSubject   = "Welcome to Office 365 development with Ruby"
)

// Config is built once at startup and injected into every component.
type Config struct {
	Env  string `env:"MAILRELAY_ENV"`
	Addr string `env:"ADDR" envDefault:":3000" validate:"required"`

	// BaseURL is the application root used for the post-logout redirect.
	// When empty it is derived from each request.
	BaseURL string `env:"BASE_URL" validate:"omitempty,url"`

	// Identity provider
	Tenant         string `env:"TENANT" validate:"required"`
	ClientID       string `env:"CLIENT_ID" validate:"required"`
	ClientSecret   Secret `env:"CLIENT_SECRET" validate:"required"`
	ReplyURL       string `env:"REPLY_URL" validate:"required,url"`
	LogoutEndpoint string `env:"LOGOUT_ENDPOINT" validate:"required,url"`
	AuthorityHost  string `env:"AUTHORITY_HOST" envDefault:"login.windows.net" validate:"required"`

	// Microsoft Graph
	GraphResource string `env:"GRAPH_RESOURCE" envDefault:"https://graph.microsoft.com" validate:"required,url"`
	SendMailPath  string `env:"SENDMAIL_PATH" envDefault:"/beta/me/sendmail" validate:"required,startswith=/"`

	// Mail content
	MailSubject      string `env:"MAIL_SUBJECT" envDefault:"Welcome to Office 365 development with Ruby" validate:"required"`
	MailTemplatePath string `env:"MAIL_TEMPLATE_PATH" validate:"omitempty,file"`

	// Sessions
	SessionStore           SessionStoreKind `env:"SESSION_STORE" envDefault:"memory" validate:"oneof=memory redis firestore"`
	SessionKey             Secret           `env:"SESSION_KEY" validate:"omitempty,len=32"`
	SessionTTL             time.Duration    `env:"SESSION_TTL" envDefault:"24h" validate:"gt=0"`
	SessionCleanupInterval time.Duration    `env:"SESSION_CLEANUP_INTERVAL" envDefault:"10m" validate:"gt=0"`

	RedisURL Secret `env:"REDIS_URL" validate:"required_if=SessionStore redis"`

	GCPProject          string `env:"GCP_PROJECT" validate:"required_if=SessionStore firestore"`
	FirestoreDatabase   string `env:"FIRESTORE_DATABASE" envDefault:"(default)"`
	FirestoreCollection string `env:"FIRESTORE_COLLECTION" envDefault:"mailrelay_sessions" validate:"required"`

	// set by Load when SESSION_KEY is empty
	sessionKeyGenerated bool
}

// AuthorityURL returns the identity provider base URL.
// A bare host gets an https scheme; a full URL is kept as is.
func (c Config) AuthorityURL() string {
	host := strings.TrimRight(c.AuthorityHost, "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// IsDev reports whether MAILRELAY_ENV selects development mode
func (c Config) IsDev() bool {
	return envutil.IsDev(c.Env)
}

// SecureCookies reports whether cookies must carry the Secure attribute
func (c Config) SecureCookies() bool {
	return !c.IsDev()
}

// SessionKeyGenerated reports whether the session key was generated at startup
func (c Config) SessionKeyGenerated() bool {
	return c.sessionKeyGenerated
}
