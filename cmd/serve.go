package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nknaian/musicorg/internal/repositories"
	"github.com/nknaian/musicorg/internal/server"
	"github.com/nknaian/musicorg/internal/services"
	"github.com/nknaian/musicorg/internal/session"
	"github.com/nknaian/musicorg/internal/shared"
	"github.com/nknaian/musicorg/internal/web"
	"github.com/urfave/cli/v3"
)

const pruneInterval = time.Hour

// Serve wires the database, Spotify service, sessions and web handlers together and serves
// until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}
	applyOverrides(cmd, config)
	if err := config.Validate(); err != nil {
		return err
	}

	level, err := shared.ParseLogLevel(config.Log.Level)
	if err != nil {
		return err
	}
	shared.SetLogLevel(r.logger, level)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := shared.OpenDatabase(ctx, config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	reporter, err := shared.NewReporter(config.Sentry, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize error reporting: %w", err)
	}
	defer reporter.Flush(2 * time.Second)

	spotify, err := services.NewSpotifyService(config.Credentials.Spotify, config.Remote, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create spotify service: %w", err)
	}

	sessionStore := repositories.NewSessionRepository(db)
	sessions := session.NewManager(sessionStore, config.Server.SessionSecret, config.Server.SessionTTL.Duration,
		config.Server.SecureCookies, r.logger)

	app, err := web.New(web.Options{
		Provider:  spotify,
		Sessions:  sessions,
		Users:     repositories.NewUserRepository(db),
		Logger:    r.logger,
		Reporter:  reporter,
		PublicURL: config.Server.PublicURL,
	})
	if err != nil {
		return fmt.Errorf("failed to build web app: %w", err)
	}

	srv := server.New(server.Options{
		Addr:     config.Server.Addr(),
		Logger:   r.logger,
		Reporter: reporter,
		DB:       db,
		Handlers: []server.Handler{app},
	})

	go r.pruneSessions(ctx, sessionStore, pruneInterval)

	r.logger.Info("starting albumcollections", "service", spotify.Name(), "addr", config.Server.Addr(), "database", config.Database.Path,
		"error_reporting", reporter.Enabled())
	return srv.ListenAndServe(ctx)
}

// pruneSessions deletes expired sessions every interval until ctx is done.
func (r *Runner) pruneSessions(ctx context.Context, store *repositories.SessionRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			n, err := store.DeleteExpired(ctx, t)
			if err != nil {
				r.logger.Warn("failed to prune sessions", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("pruned expired sessions", "count", n)
			}
		}
	}
}
