package envutil

import "strings"

// IsDev reports whether env (MAILRELAY_ENV) selects development mode,
// where security requirements can be relaxed for local testing
func IsDev(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "development" || env == "dev"
}
