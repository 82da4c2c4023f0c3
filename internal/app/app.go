// Package app wires configuration, persistence, session, and runtime into a
// runnable agent.
package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roombot/internal/bot"
	"github.com/vovakirdan/roombot/internal/config"
	"github.com/vovakirdan/roombot/internal/log"
	"github.com/vovakirdan/roombot/internal/session"
	"github.com/vovakirdan/roombot/internal/status"
	"github.com/vovakirdan/roombot/internal/store"
	"github.com/vovakirdan/roombot/internal/store/sqlite"
	"github.com/vovakirdan/roombot/internal/transport/ws"
)

// App owns the process-lifetime resources.
type App struct {
	logger          *zerolog.Logger
	shutdownTimeout time.Duration
	bot             *bot.Bot
	store           store.LogStore
	status          *stdhttp.Server
}

// New constructs the application with the provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authClient := session.NewHTTPAuthClient(cfg.AuthBaseURL, log.Component(logger, "auth"))
	dialer := &ws.Dialer{URL: cfg.ChatURL, Log: log.Component(logger, "transport")}
	sess := session.New(authClient, dialer, session.Config{
		Username:  cfg.Username,
		Password:  cfg.Password,
		AuthToken: cfg.AuthToken,
		Room:      cfg.Room,
		Color:     cfg.Color,
	}, log.Component(logger, "session"))

	b := bot.New(cfg, sess, st, nil, log.Component(logger, "bot"))

	var statusSrv *stdhttp.Server
	if cfg.StatusAddr != "" {
		statusSrv = status.NewServer(cfg.StatusAddr, b, log.Component(logger, "status"))
	}

	return &App{
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
		bot:             b,
		store:           st,
		status:          statusSrv,
	}, nil
}

// Run starts the status server and the agent loop, blocking until context
// cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	botErr := make(chan error, 1)
	go func() {
		botErr <- a.bot.Run(ctx)
	}()

	statusErr := make(chan error, 1)
	if a.status != nil {
		go func() {
			if err := a.status.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
				statusErr <- err
				return
			}
			statusErr <- nil
		}()
	}

	select {
	case err := <-botErr:
		a.shutdownStatus()
		a.cleanup()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case err := <-statusErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		a.shutdownStatus()
		err := <-botErr
		a.cleanup()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func (a *App) shutdownStatus() {
	if a.status == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.logger.Info().Msg("shutting down status server")
	if err := a.status.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("status server shutdown")
	}
}

// cleanup closes the database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close store")
		} else {
			a.logger.Info().Msg("store closed")
		}
	}
}
