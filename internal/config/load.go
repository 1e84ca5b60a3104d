package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/dgellow/mailrelay/internal/crypto"
	"github.com/dgellow/mailrelay/internal/log"
	"github.com/joho/godotenv"
)

// LoadEnvFile loads variables from a dotenv file into the process environment.
// Variables already set in the environment win. An empty path tries ".env"
// and silently ignores a missing file.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Load parses and validates configuration from the process environment
func Load() (Config, error) {
	return LoadFrom(Environ())
}

// LoadFrom parses and validates configuration from the given variables
func LoadFrom(vars map[string]string) (Config, error) {
	cfg, err := Parse(vars)
	if err != nil {
		return Config{}, err
	}

	result, err := Validate(cfg)
	if err != nil {
		return Config{}, err
	}
	if !result.IsValid() {
		return Config{}, result
	}
	for _, w := range result.Warnings {
		log.LogWarnWithFields("config", w.Message, map[string]any{
			"variable": w.Path,
		})
	}

	if cfg.SessionKey == "" {
		key, err := crypto.GenerateKey(32)
		if err != nil {
			return Config{}, fmt.Errorf("generating session key: %w", err)
		}
		cfg.SessionKey = Secret(key)
		cfg.sessionKeyGenerated = true
	}

	log.LogInfoWithFields("config", "Configuration loaded", map[string]any{
		"addr":          cfg.Addr,
		"authority":     cfg.AuthorityHost,
		"tenant":        cfg.Tenant,
		"sessionStore":  cfg.SessionStore,
		"sessionTTL":    cfg.SessionTTL.String(),
		"customMailTpl": cfg.MailTemplatePath != "",
	})

	return cfg, nil
}

// Parse maps the variables onto Config, applying defaults, without validating
func Parse(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Environ returns the process environment as a map
func Environ() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			vars[k] = v
		}
	}
	return vars
}
