package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kalambet/reelchat/internal/backend"
	"github.com/kalambet/reelchat/internal/config"
	"github.com/kalambet/reelchat/internal/logging"
	"github.com/kalambet/reelchat/internal/session"
)

// app bundles what every backend-facing command needs.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	session *session.Store
	client  *backend.Client
}

var errNotSignedIn = errors.New("not signed in: run `reelchat login` first")

var newApp = func() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(os.Stderr, cfg.Log.Level)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	store, err := session.Open(cfg.SessionPath(), cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	if versions, err := store.AppliedMigrations(); err == nil {
		logger.Debug("session opened", "path", logging.SanitizePath(cfg.SessionPath()), "schema", versions)
	}

	client, err := backend.New(cfg.API.BaseURL, cfg.API.Timeout, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, session: store, client: client}, nil
}

func (a *app) Close() error {
	return a.session.Close()
}

// requireToken fails fast when there is no live session, before any request
// is sent.
func (a *app) requireToken() error {
	token, err := a.session.Token()
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	if token == "" {
		return errNotSignedIn
	}
	return nil
}

// errorText turns command errors into the short line printed on exit.
func errorText(err error) string {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return "session expired or invalid: run `reelchat login` again"
	case errors.Is(err, errNotSignedIn):
		return err.Error()
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
