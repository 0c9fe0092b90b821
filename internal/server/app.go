// Package server initializes and runs the chat sync server.
// It opens the database, applies migrations, and serves the HTTP API
// until the process receives a termination signal.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/logging"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/api"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/config"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/storage"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler *api.Handler
	closeDB func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	db, err := storage.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repo := storage.NewPostgresRepository(db)
	h := api.NewHandler(repo, logger, []byte(c.SecretKey), c.TokenValidityDuration)

	return &App{config: c, logger: logger, handler: h, closeDB: db.Close}, nil
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

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	router := api.NewRouter(app.handler, api.RouterOptions{
		SecretKey:      []byte(app.config.SecretKey),
		RateLimitRPS:   app.config.RateLimitRPS,
		RateLimitBurst: app.config.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: router,
	}

	go func() {
		app.logger.Info(ctx, "Listening", "addr", app.config.EndpointAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	app.logger.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, err.Error())
	}

	if err := app.closeDB(); err != nil {
		app.logger.Error(shutdownCtx, err.Error())
	}
}
