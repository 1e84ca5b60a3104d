package urlutil

import (
	"net/url"
	"strings"
)

// EscapeComponent percent-encodes s for use as a single query value.
// Unlike url.QueryEscape, spaces become %20, so the result is valid in any URL component.
func EscapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// LogoutURL returns endpoint with post_logout_redirect_uri set to the escaped redirect.
// Existing query parameters on endpoint are kept.
func LogoutURL(endpoint, redirect string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	param := "post_logout_redirect_uri=" + EscapeComponent(redirect)
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}
	return u.String(), nil
}
