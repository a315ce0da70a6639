package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nknaian/musicorg/internal/repositories"
	"github.com/nknaian/musicorg/internal/shared"
	"github.com/urfave/cli/v3"
)

type pruneResult struct {
	Removed   int64 `json:"removed"`
	Remaining int   `json:"remaining"`
}

// SessionsPrune deletes every session whose expiry has passed.
func (r *Runner) SessionsPrune(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	db, err := shared.OpenDatabase(ctx, config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store := repositories.NewSessionRepository(db)
	removed, err := store.DeleteExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to prune sessions: %w", err)
	}
	remaining, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}

	r.logger.Info("pruned sessions", "removed", removed, "remaining", remaining)

	if cmd.Bool("json") {
		return r.writeJSON(pruneResult{Removed: removed, Remaining: remaining}, false)
	}
	return r.writePlain("Removed %d expired sessions, %d remaining.\n", removed, remaining)
}
