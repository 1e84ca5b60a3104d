package server

import (
	"net/http"

	"github.com/dgellow/mailrelay/internal/log"
)

// NewRelayMux routes the relay endpoints. callbackPath is the path of the registered reply URL.
func NewRelayMux(h *RelayHandlers, callbackPath string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /health", NewHealthHandler())
	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /login", h.Login)
	mux.HandleFunc("GET "+callbackPath, h.Callback)
	mux.HandleFunc("POST /send_mail", h.SendMail)
	mux.HandleFunc("GET /disconnect", h.Disconnect)

	log.LogDebugWithFields("server", "Routes registered", map[string]any{
		"callback": callbackPath,
	})
	return mux
}

// NewRelayHandler wraps the relay routes in the standard middleware chain.
// Correlation IDs are assigned first so request logs and panics carry them.
func NewRelayHandler(h *RelayHandlers, callbackPath string) http.Handler {
	return ChainMiddleware(NewRelayMux(h, callbackPath),
		NewRecoverMiddleware("relay"),
		NewLoggerMiddleware("relay"),
		NewCorrelationIDMiddleware(),
	)
}
