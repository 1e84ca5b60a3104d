package emailutil

import (
	"net/mail"
	"strings"
)

// ParseRecipient trims raw and checks it is a single bare address
// such as jane@contoso.com. Display names and address lists are rejected.
func ParseRecipient(raw string) (string, bool) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Name != "" || parsed.Address != addr {
		return "", false
	}
	if at := strings.LastIndexByte(addr, '@'); at <= 0 || at == len(addr)-1 {
		return "", false
	}
	return addr, true
}

// Domain returns the part after the last @, or "" when there is none
func Domain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return email[at+1:]
}
