package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nknaian/musicorg/internal/models"
	"github.com/nknaian/musicorg/internal/shared"
)

// UserRepository persists [models.User] rows keyed by Spotify user id.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Get retrieves a user by Spotify id.
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, display_name, playback_playlist_id, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	var (
		user     models.User
		playlist sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.DisplayName, &playlist, &user.CreatedAt, &user.UpdatedAt)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user.PlaybackPlaylistID = playlist.String
	return &user, nil
}

// Upsert records a login, creating the user on first sight and refreshing the display name otherwise.
func (r *UserRepository) Upsert(ctx context.Context, id, displayName string) error {
	if id == "" {
		return fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	ts := now()
	query := `
		INSERT INTO users (id, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, id, displayName, ts, ts); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// PlaybackPlaylistID returns the recorded playback playlist id, or "" when none is recorded.
func (r *UserRepository) PlaybackPlaylistID(ctx context.Context, userID string) (string, error) {
	user, err := r.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.PlaybackPlaylistID, nil
}

// SetPlaybackPlaylistID replaces the recorded playback playlist id. An empty id clears it.
func (r *UserRepository) SetPlaybackPlaylistID(ctx context.Context, userID, playlistID string) error {
	query := `
		UPDATE users
		SET playback_playlist_id = ?, updated_at = ?
		WHERE id = ?
	`

	value := sql.NullString{String: playlistID, Valid: playlistID != ""}
	result, err := r.db.ExecContext(ctx, query, value, now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update playback playlist: %w", err)
	}
	return expectRows(result, fmt.Errorf("%w: %s", shared.ErrUserNotFound, userID))
}
