package internal

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/mailrelay/internal/config"
	"github.com/dgellow/mailrelay/internal/crypto"
	"github.com/dgellow/mailrelay/internal/graph"
	"github.com/dgellow/mailrelay/internal/idp"
	"github.com/dgellow/mailrelay/internal/log"
	"github.com/dgellow/mailrelay/internal/mailtemplate"
	"github.com/dgellow/mailrelay/internal/server"
	"github.com/dgellow/mailrelay/internal/session"
	"github.com/dgellow/mailrelay/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// MailRelay represents the complete login and mail relay application
type MailRelay struct {
	config     config.Config
	httpServer *server.HTTPServer
	cleanup    *storage.CleanupManager
	closers    []io.Closer
}

// NewMailRelay creates the application with all dependencies built
func NewMailRelay(ctx context.Context, cfg config.Config) (*MailRelay, error) {
	log.LogInfoWithFields("mailrelay", "Building mail relay application", map[string]any{
		"addr":                cfg.Addr,
		"sessionStore":        cfg.SessionStore,
		"sessionKeyGenerated": cfg.SessionKeyGenerated(),
		"secureCookies":       cfg.SecureCookies(),
	})
	if cfg.SessionKeyGenerated() && cfg.SessionStore != config.SessionStoreMemory {
		log.LogWarnWithFields("mailrelay", "Shared session store with a generated SESSION_KEY; other instances cannot read these sessions", map[string]any{
			"sessionStore": cfg.SessionStore,
		})
	}

	replyURL, err := url.Parse(cfg.ReplyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid reply URL: %w", err)
	}

	master := []byte(cfg.SessionKey)
	cookieKey, err := crypto.DeriveKey(master, crypto.PurposeCookieSigning)
	if err != nil {
		return nil, err
	}
	stateKey, err := crypto.DeriveKey(master, crypto.PurposeStateSigning)
	if err != nil {
		return nil, err
	}
	atRestKey, err := crypto.DeriveKey(master, crypto.PurposeAtRest)
	if err != nil {
		return nil, err
	}
	encryptor, err := crypto.NewEncryptor(atRestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create session encryptor: %w", err)
	}

	app := &MailRelay{config: cfg}

	store, sweeper, err := app.setupStorage(ctx, encryptor)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}
	if sweeper != nil {
		app.cleanup = storage.NewCleanupManager(sweeper, cfg.SessionCleanupInterval)
	}

	provider, err := idp.NewAzureProvider(idp.AzureConfig{
		AuthorityURL: cfg.AuthorityURL(),
		Tenant:       cfg.Tenant,
		ClientID:     cfg.ClientID,
		ClientSecret: string(cfg.ClientSecret),
		RedirectURI:  cfg.ReplyURL,
		Resource:     cfg.GraphResource,
	})
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to setup identity provider: %w", err)
	}

	mailer, err := graph.NewClient(cfg.GraphResource, cfg.SendMailPath, nil)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to setup graph client: %w", err)
	}

	templates := mailtemplate.NewLoader(cfg.MailTemplatePath)
	if _, err := templates.Template(); err != nil {
		app.close()
		return nil, fmt.Errorf("failed to load mail template: %w", err)
	}

	handlers := server.NewRelayHandlers(
		provider,
		session.NewManager(store, cookieKey, cfg.SessionTTL, cfg.SecureCookies()),
		mailer,
		templates,
		server.RelayConfig{
			BaseURL:        cfg.BaseURL,
			LogoutEndpoint: cfg.LogoutEndpoint,
			MailSubject:    cfg.MailSubject,
			StateKey:       stateKey,
			SecureCookies:  cfg.SecureCookies(),
		},
	)

	app.httpServer = server.NewHTTPServer(server.NewRelayHandler(handlers, replyURL.Path), cfg.Addr)

	log.LogInfoWithFields("mailrelay", "Mail relay application built", map[string]any{
		"provider":     provider.Type(),
		"callbackPath": replyURL.Path,
		"graph":        mailer.Endpoint(),
	})
	return app, nil
}

// Run serves until SIGINT, SIGTERM or a server error, then shuts down gracefully
func (m *MailRelay) Run() error {
	log.LogInfoWithFields("mailrelay", "Starting mail relay", map[string]any{
		"addr": m.config.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := m.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if m.cleanup != nil {
		m.cleanup.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var shutdownReason string
	var runErr error
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("mailrelay", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		runErr = err
		log.LogErrorWithFields("mailrelay", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("mailrelay", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := m.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("mailrelay", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		runErr = err
	}

	if m.cleanup != nil {
		m.cleanup.Stop()
	}
	m.close()

	log.LogInfoWithFields("mailrelay", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return runErr
}

func (m *MailRelay) close() {
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			log.LogWarnWithFields("mailrelay", "Failed to close storage client", map[string]any{
				"error": err.Error(),
			})
		}
	}
	m.closers = nil
}

// setupStorage returns the configured session store and, for backends
// without native expiry, the sweeper that removes expired sessions.
func (m *MailRelay) setupStorage(ctx context.Context, encryptor crypto.Encryptor) (session.Store, storage.Sweeper, error) {
	cfg := m.config
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client, err := storage.NewRedisClient(ctx, string(cfg.RedisURL))
		if err != nil {
			return nil, nil, err
		}
		m.closers = append(m.closers, client)
		store, err := storage.NewRedisStore(client, encryptor)
		if err != nil {
			return nil, nil, err
		}
		log.LogInfoWithFields("mailrelay", "Using Redis session store", nil)
		// redis expires keys itself
		return store, nil, nil

	case config.SessionStoreFirestore:
		store, err := storage.NewFirestoreStore(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection, encryptor)
		if err != nil {
			return nil, nil, err
		}
		m.closers = append(m.closers, store)
		log.LogInfoWithFields("mailrelay", "Using Firestore session store", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		return store, store, nil

	case config.SessionStoreMemory, "":
		log.LogInfoWithFields("mailrelay", "Using in-memory session store", nil)
		store := storage.NewMemoryStore()
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("unsupported session store: %s", cfg.SessionStore)
	}
}
