package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVars() map[string]string {
	return map[string]string{
		"TENANT":          "contoso.onmicrosoft.com",
		"CLIENT_ID":       "11111111-2222-3333-4444-555555555555",
		"CLIENT_SECRET":   "client-secret-value",
		"REPLY_URL":       "http://localhost:3000/callback",
		"LOGOUT_ENDPOINT": "https://login.windows.net/common/oauth2/logout",
		"SESSION_KEY":     strings.Repeat("s", 32),
		"BASE_URL":        "http://localhost:3000",
	}
}

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(validVars())
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, DefaultAuthorityHost, cfg.AuthorityHost)
	assert.Equal(t, DefaultGraphResource, cfg.GraphResource)
	assert.Equal(t, DefaultSendMailPath, cfg.SendMailPath)
	assert.Equal(t, DefaultMailSubject, cfg.MailSubject)
	assert.Equal(t, SessionStoreMemory, cfg.SessionStore)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Minute, cfg.SessionCleanupInterval)
	assert.Equal(t, "(default)", cfg.FirestoreDatabase)
	assert.Equal(t, "mailrelay_sessions", cfg.FirestoreCollection)
	assert.Equal(t, Secret("client-secret-value"), cfg.ClientSecret)
	assert.False(t, cfg.SessionKeyGenerated())
}

func TestLoadFromGeneratesSessionKey(t *testing.T) {
	vars := validVars()
	delete(vars, "SESSION_KEY")

	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	assert.Len(t, string(cfg.SessionKey), 32)
	assert.True(t, cfg.SessionKeyGenerated())
}

func TestLoadFromErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(map[string]string)
		wantPath string
	}{
		{
			name:     "missing tenant",
			mutate:   func(v map[string]string) { delete(v, "TENANT") },
			wantPath: "TENANT",
		},
		{
			name:     "missing client secret",
			mutate:   func(v map[string]string) { delete(v, "CLIENT_SECRET") },
			wantPath: "CLIENT_SECRET",
		},
		{
			name:     "reply url not a url",
			mutate:   func(v map[string]string) { v["REPLY_URL"] = "callback" },
			wantPath: "REPLY_URL",
		},
		{
			name:     "reply url without path",
			mutate:   func(v map[string]string) { v["REPLY_URL"] = "http://localhost:3000" },
			wantPath: "REPLY_URL",
		},
		{
			name:     "reply url on login route",
			mutate:   func(v map[string]string) { v["REPLY_URL"] = "http://localhost:3000/login" },
			wantPath: "REPLY_URL",
		},
		{
			name:     "reply url on send_mail route",
			mutate:   func(v map[string]string) { v["REPLY_URL"] = "http://localhost:3000/send_mail" },
			wantPath: "REPLY_URL",
		},
		{
			name:     "reply url on disconnect route",
			mutate:   func(v map[string]string) { v["REPLY_URL"] = "http://localhost:3000/disconnect" },
			wantPath: "REPLY_URL",
		},
		{
			name:     "reply url on health route",
			mutate:   func(v map[string]string) { v["REPLY_URL"] = "http://localhost:3000/health" },
			wantPath: "REPLY_URL",
		},
		{
			name:     "reply url with wildcard",
			mutate:   func(v map[string]string) { v["REPLY_URL"] = "http://localhost:3000/{x}" },
			wantPath: "REPLY_URL",
		},
		{
			name:     "reply url with trailing wildcard",
			mutate:   func(v map[string]string) { v["REPLY_URL"] = "http://localhost:3000/auth/{rest...}" },
			wantPath: "REPLY_URL",
		},
		{
			name:     "plain http reply url on public host",
			mutate:   func(v map[string]string) { v["REPLY_URL"] = "http://relay.example.com/callback" },
			wantPath: "REPLY_URL",
		},
		{
			name:     "missing logout endpoint",
			mutate:   func(v map[string]string) { delete(v, "LOGOUT_ENDPOINT") },
			wantPath: "LOGOUT_ENDPOINT",
		},
		{
			name:     "short session key",
			mutate:   func(v map[string]string) { v["SESSION_KEY"] = "short" },
			wantPath: "SESSION_KEY",
		},
		{
			name:     "unknown session store",
			mutate:   func(v map[string]string) { v["SESSION_STORE"] = "postgres" },
			wantPath: "SESSION_STORE",
		},
		{
			name:     "redis without url",
			mutate:   func(v map[string]string) { v["SESSION_STORE"] = "redis" },
			wantPath: "REDIS_URL",
		},
		{
			name:     "firestore without project",
			mutate:   func(v map[string]string) { v["SESSION_STORE"] = "firestore" },
			wantPath: "GCP_PROJECT",
		},
		{
			name:     "template file missing",
			mutate:   func(v map[string]string) { v["MAIL_TEMPLATE_PATH"] = "/does/not/exist.html" },
			wantPath: "MAIL_TEMPLATE_PATH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := validVars()
			tt.mutate(vars)

			_, err := LoadFrom(vars)
			require.Error(t, err)

			var result *ValidationResult
			require.True(t, errors.As(err, &result), "expected *ValidationResult, got %T", err)

			var paths []string
			for _, e := range result.Errors {
				paths = append(paths, e.Path)
			}
			assert.Contains(t, paths, tt.wantPath)
		})
	}
}

func TestParseError(t *testing.T) {
	vars := validVars()
	vars["SESSION_TTL"] = "one day"

	_, err := LoadFrom(vars)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidateMessagesUseVariableNames(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	require.NoError(t, err)

	result, err := Validate(cfg)
	require.NoError(t, err)
	require.False(t, result.IsValid())

	var messages []string
	for _, e := range result.Errors {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "TENANT is a required field")
	assert.Contains(t, result.Error(), "CLIENT_ID is a required field")
}

func TestValidateWarnings(t *testing.T) {
	vars := validVars()
	delete(vars, "SESSION_KEY")
	delete(vars, "BASE_URL")
	vars["REPLY_URL"] = "http://relay.example.com/callback"
	vars["MAILRELAY_ENV"] = "dev"

	cfg, err := Parse(vars)
	require.NoError(t, err)
	result, err := Validate(cfg)
	require.NoError(t, err)
	assert.True(t, result.IsValid())

	var paths []string
	for _, w := range result.Warnings {
		paths = append(paths, w.Path)
	}
	assert.ElementsMatch(t, []string{"SESSION_KEY", "BASE_URL", "REPLY_URL"}, paths)
}

func TestReplyURLAccepted(t *testing.T) {
	for _, reply := range []string{
		"http://localhost:3000/callback",
		"http://127.0.0.1:3000/auth/reply",
		"https://relay.contoso.com/callback",
		"https://relay.contoso.com/login/callback",
	} {
		t.Run(reply, func(t *testing.T) {
			vars := validVars()
			vars["REPLY_URL"] = reply
			_, err := LoadFrom(vars)
			assert.NoError(t, err)
		})
	}
}

func TestPlainHTTPReplyURLMessage(t *testing.T) {
	vars := validVars()
	vars["REPLY_URL"] = "http://relay.example.com/callback"

	_, err := LoadFrom(vars)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign-in will fail")
}

func TestSecureCookies(t *testing.T) {
	assert.True(t, Config{}.SecureCookies())
	assert.True(t, Config{Env: "production"}.SecureCookies())
	assert.False(t, Config{Env: "dev"}.SecureCookies())
	assert.True(t, Config{Env: "development"}.IsDev())
}

func TestAuthorityURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{host: "login.windows.net", want: "https://login.windows.net"},
		{host: "http://127.0.0.1:8080/", want: "http://127.0.0.1:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, Config{AuthorityHost: tt.host}.AuthorityURL())
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.env")
	require.NoError(t, os.WriteFile(path, []byte("MAILRELAY_TEST_ENV_FILE_VAR=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MAILRELAY_TEST_ENV_FILE_VAR") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("MAILRELAY_TEST_ENV_FILE_VAR"))

	err := LoadEnvFile(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name   string
		secret Secret
		want   string
	}{
		{name: "non-empty secret", secret: Secret("super-secret-password"), want: "***"},
		{name: "empty secret", secret: Secret(""), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.secret.String())
			assert.Equal(t, "value: "+tt.want, fmt.Sprintf("value: %s", tt.secret))
			if tt.secret != "" {
				assert.NotContains(t, fmt.Sprintf("%v", tt.secret), string(tt.secret))
			}
		})
	}
}

func TestSecretJSONMarshal(t *testing.T) {
	cfg := struct {
		ClientID     string `json:"clientId"`
		ClientSecret Secret `json:"clientSecret"`
		RedisURL     Secret `json:"redisUrl"`
	}{
		ClientID:     "app",
		ClientSecret: Secret("super-secret-password"),
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"clientId":"app","clientSecret":"***","redisUrl":""}`, string(data))
}
