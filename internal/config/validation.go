package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue. Path is the environment variable name.
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// Error implements error so an invalid result can be returned directly
func (v *ValidationResult) Error() string {
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		msgs = append(msgs, e.Message)
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

type structValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newStructValidator() (*structValidator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their environment variable name
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("env"), ",")
		if name == "" {
			return f.Name
		}
		return name
	})

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	enTrans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, errors.New("translator not found")
	}
	if err := enTranslations.RegisterDefaultTranslations(validate, enTrans); err != nil {
		return nil, fmt.Errorf("registering translations: %w", err)
	}

	return &structValidator{validate: validate, translator: enTrans}, nil
}

// Validate checks cfg and returns every problem found.
// The returned error is only set when validation itself could not run.
func Validate(cfg Config) (*ValidationResult, error) {
	sv, err := newStructValidator()
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{}

	if err := sv.validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		for _, fe := range fieldErrs {
			result.Errors = append(result.Errors, ValidationError{
				Path:    fe.Field(),
				Message: fe.Translate(sv.translator),
			})
		}
	}

	checkReplyURL(cfg, result)
	checkWarnings(cfg, result)

	return result, nil
}

// reservedPaths are served by the relay itself and cannot be the callback
var reservedPaths = []string{"/", "/login", "/send_mail", "/disconnect", "/health"}

func checkReplyURL(cfg Config, result *ValidationResult) {
	if cfg.ReplyURL == "" {
		return
	}
	u, err := url.Parse(cfg.ReplyURL)
	if err != nil {
		return
	}
	switch {
	case u.Path == "" || u.Path == "/":
		result.Errors = append(result.Errors, ValidationError{
			Path:    "REPLY_URL",
			Message: "REPLY_URL must include the callback path, e.g. http://localhost:3000/callback",
		})
	case slices.Contains(reservedPaths, u.Path):
		result.Errors = append(result.Errors, ValidationError{
			Path:    "REPLY_URL",
			Message: fmt.Sprintf("REPLY_URL path %s is already used by the relay; choose another callback path, e.g. /callback", u.Path),
		})
	case strings.ContainsAny(u.Path, "{}"):
		result.Errors = append(result.Errors, ValidationError{
			Path:    "REPLY_URL",
			Message: "REPLY_URL path must not contain { or }",
		})
	}

	// Secure cookies are never sent back over plain http, so the state check
	// would reject every callback.
	if u.Scheme == "http" && !isLocalURL(cfg.ReplyURL) {
		if cfg.IsDev() {
			result.Warnings = append(result.Warnings, ValidationError{
				Path:    "REPLY_URL",
				Message: "REPLY_URL uses plain http on a non-local host; only acceptable in development",
			})
		} else {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "REPLY_URL",
				Message: "REPLY_URL uses plain http on a non-local host; sign-in will fail because secure cookies are not returned over http (use https or set MAILRELAY_ENV=dev)",
			})
		}
	}
}

func checkWarnings(cfg Config, result *ValidationResult) {
	if cfg.SessionKey == "" {
		result.Warnings = append(result.Warnings, ValidationError{
			Path:    "SESSION_KEY",
			Message: "SESSION_KEY is not set; a random key will be generated and sessions will not survive a restart",
		})
	}
	if cfg.BaseURL == "" {
		result.Warnings = append(result.Warnings, ValidationError{
			Path:    "BASE_URL",
			Message: "BASE_URL is not set; the logout redirect will be derived from the request host",
		})
	}
}

func isLocalURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
