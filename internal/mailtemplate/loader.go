// Package mailtemplate loads the HTML body sent by the relay and fills in the recipient greeting.
package mailtemplate

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dgellow/mailrelay/internal/log"
	"golang.org/x/sync/singleflight"
)

// Placeholder is replaced with the signed-in user's display name
const Placeholder = "{given_name}"

//go:embed templates/MailTemplate.html
var defaultTemplate string

// Loader reads the mail template once and caches it.
// Concurrent first loads share a single read.
type Loader struct {
	path string

	group  singleflight.Group
	mu     sync.RWMutex
	cached *string
}

// NewLoader returns a loader for the template at path.
// An empty path uses the embedded default template.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Template returns the raw template text
func (l *Loader) Template() (string, error) {
	l.mu.RLock()
	cached := l.cached
	l.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	v, err, _ := l.group.Do("template", func() (any, error) {
		text, err := l.read()
		if err != nil {
			return "", err
		}
		l.mu.Lock()
		l.cached = &text
		l.mu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (l *Loader) read() (string, error) {
	if l.path == "" {
		return defaultTemplate, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return "", fmt.Errorf("reading mail template: %w", err)
	}
	if !strings.Contains(string(data), Placeholder) {
		log.LogWarnWithFields("mailtemplate", "Mail template has no greeting placeholder", map[string]any{
			"path":        l.path,
			"placeholder": Placeholder,
		})
	}
	log.LogDebugWithFields("mailtemplate", "Mail template loaded", map[string]any{
		"path":  l.path,
		"bytes": len(data),
	})
	return string(data), nil
}

// Render returns the template with the first placeholder replaced by name.
// The name is inserted verbatim; later placeholders are left untouched.
func (l *Loader) Render(name string) (string, error) {
	text, err := l.Template()
	if err != nil {
		return "", err
	}
	return Render(text, name), nil
}

// Render replaces the first placeholder in text with name
func Render(text, name string) string {
	return strings.Replace(text, Placeholder, name, 1)
}
