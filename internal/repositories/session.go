package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nknaian/musicorg/internal/shared"
)

// SessionRecord is the stored form of a web session. Data is an opaque JSON document.
type SessionRecord struct {
	ID        string
	Data      string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at t.
func (r *SessionRecord) Expired(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// SessionRepository persists [SessionRecord] rows.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get returns an unexpired session by id, or [shared.ErrSessionNotFound].
func (r *SessionRepository) Get(ctx context.Context, id string) (*SessionRecord, error) {
	query := `
		SELECT id, data, created_at, updated_at, expires_at
		FROM sessions
		WHERE id = ?
	`

	var rec SessionRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if rec.Expired(now()) {
		return nil, fmt.Errorf("%w: %s expired", shared.ErrSessionNotFound, id)
	}
	return &rec, nil
}

// Save inserts or replaces the session data and expiry.
func (r *SessionRepository) Save(ctx context.Context, rec *SessionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: session id", shared.ErrMissingArgument)
	}

	ts := now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = ts
	}
	rec.UpdatedAt = ts

	query := `
		INSERT INTO sessions (id, data, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.Data, rec.CreatedAt.UTC(), rec.UpdatedAt, rec.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes every session that expired before t and returns how many were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, t time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", t.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// Count returns the number of stored sessions, expired or not.
func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}
