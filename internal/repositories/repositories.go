package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// expectRows reports notFound when a write touched no rows.
func expectRows(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isNoRows reports whether err is [sql.ErrNoRows].
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
