package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/dgellow/mailrelay/internal/log"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	homePageTemplate     = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/home.html"))
	callbackPageTemplate = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/callback.html"))
	errorPageTemplate    = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/error.html"))
)

// HomePageData represents the data for the landing page
type HomePageData struct {
	SignedIn bool
	Name     string
}

// CallbackPageData represents the data for the signed-in page with the send-mail form.
// Email pre-fills the recipient field.
type CallbackPageData struct {
	SignedIn  bool
	Name      string
	Email     string
	Recipient string
	MailSent  bool
	Flash     string
}

// ErrorPageData represents the data for the error page
type ErrorPageData struct {
	Status        int
	Title         string
	Message       string
	CorrelationID string
}

// renderPage executes tmpl into a buffer first so a template failure
// can still produce a clean 500.
func renderPage(w http.ResponseWriter, r *http.Request, status int, tmpl *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.LogErrorWithFields("server", "Failed to render page", log.ContextFields(r.Context(), map[string]any{
			"template": name,
			"error":    err.Error(),
		}))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	setPageHeaders(w.Header())
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError renders the generic error page. message is shown to the user
// and must not carry tokens or upstream bodies.
func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	renderPage(w, r, status, errorPageTemplate, "error.html", ErrorPageData{
		Status:        status,
		Title:         http.StatusText(status),
		Message:       message,
		CorrelationID: log.CorrelationID(r.Context()),
	})
}
