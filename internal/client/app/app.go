// Package app wires the client daemon together: configuration, key
// derivation, the local store (with its in-memory fallback), the remote
// API client, the auth token supplier, the event bus, and the sync
// engine. It owns process lifecycle and graceful shutdown.
package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/authtoken"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/config"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/remote"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/store"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/sync"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/cryptox"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/eventbus"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/filex"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/keyring"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/logging"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/shared"
)

const saltSize = 16

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type App struct {
	config *config.Config
	logger logging.Logger
	keys   *keyring.Keyring
	store  *store.Store
	bus    *eventbus.Bus
	engine *sync.Engine
	tokens *authtoken.Supplier
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	key, err := deriveKey(c)
	if err != nil {
		return nil, fmt.Errorf("key derivation error: %w", err)
	}
	keys := keyring.New(key)

	st, err := store.Open(ctx, c.DatabaseDSN, keys, logger)
	if err != nil {
		if !errors.Is(err, common.ErrStoreUnavailable) {
			return nil, err
		}
		// Chats created now last only until the process exits.
		logger.Warn(ctx, "persistent store unavailable, falling back to session storage", "error", err.Error())
		st = store.OpenSession(keys, logger)
	}

	apiClient := remote.NewClient(c.ServerEndpointAddr, logger)

	tokens := authtoken.NewSupplier()
	if c.UserID != "" {
		tokens.SetSource(remote.NewTokenSource(apiClient, c.UserID))
	}

	bus := eventbus.New(logger)

	engine := sync.New(st, apiClient, tokens, bus, logger, sync.Options{
		ChatInterval:    c.ChatSyncInterval,
		ProfileInterval: c.ProfileSyncInterval,
		RetryDelay:      c.RetryDelay,
		DeletionGrace:   c.DeletionGrace,
		DeletionTTL:     c.DeletionTTL,
		ChatsPerPage:    c.ChatsPerPage,
	})

	return &App{
		config: c,
		logger: logger,
		keys:   keys,
		store:  st,
		bus:    bus,
		engine: engine,
		tokens: tokens,
	}, nil
}

// deriveKey resolves the encryption key for the local store. A secret
// file takes precedence; otherwise the user is prompted for a passphrase
// which is stretched with a salt persisted next to the database.
func deriveKey(c *config.Config) ([]byte, error) {
	if c.SecretFile != "" {
		secret, err := os.ReadFile(c.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("reading secret file: %w", err)
		}
		return cryptox.DeriveKeyFromSecret(bytes.TrimSpace(secret))
	}

	fmt.Fprint(os.Stdout, "Enter passphrase: ")
	passphrase, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	defer shared.WipeByteArray(passphrase)

	salt, err := filex.ReadOrCreate(c.DatabaseDSN+".salt", func() ([]byte, error) {
		s := make([]byte, saltSize)
		if _, err := rand.Read(s); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving salt: %w", err)
	}

	return cryptox.DeriveKeyFromPassphrase(passphrase, salt), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// logBusEvents subscribes logging observers so sync outcomes surface in
// the daemon output even with no UI attached.
func (app *App) logBusEvents(ctx context.Context) {
	app.bus.On(eventbus.EventIDChange, func(e eventbus.Event) {
		if ev, ok := e.(eventbus.IDChange); ok {
			app.logger.Info(ctx, "chat id remapped", "from", ev.From, "to", ev.To)
		}
	})
	app.bus.On(eventbus.EventChatDeleted, func(e eventbus.Event) {
		if ev, ok := e.(eventbus.ChatDeleted); ok {
			app.logger.Info(ctx, "chat deleted", "id", ev.ChatID)
		}
	})
	app.bus.On(eventbus.EventReloadRequired, func(eventbus.Event) {
		app.logger.Debug(ctx, "reload requested")
	})
}

// Bus exposes the event bus for UI-layer subscribers.
func (app *App) Bus() *eventbus.Bus { return app.bus }

// Engine exposes the sync engine for chat create/update/delete calls.
func (app *App) Engine() *sync.Engine { return app.engine }

// Store exposes the local chat store.
func (app *App) Store() *store.Store { return app.store }

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"server", app.config.ServerEndpointAddr,
		"signedIn", app.tokens.SignedIn(),
		"degradedStore", app.store.Degraded())

	app.initSignalHandler(cancelFunc)
	app.logBusEvents(ctx)

	app.engine.Start(ctx)
	app.engine.Wait()

	app.logger.Info(ctx, "Shutting down...")

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
	app.keys.Clear()
	app.bus.Clear()
}
