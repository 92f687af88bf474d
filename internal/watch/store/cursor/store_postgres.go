// Package cursor persists the per-org audit fetch cursor. The cursor only
// advances after a successful fetch, so a failed tick loses nothing: the next
// tick re-fetches the same range.
package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists cursors across restarts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the stored cursor for orgID, or the zero time when the org has
// never been polled.
func (s *PostgresStore) Get(ctx context.Context, orgID string) (time.Time, error) {
	var cursor time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor_at FROM audit_cursors WHERE org_id = $1`, orgID,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read cursor for org %s: %w", orgID, err)
	}
	return cursor, nil
}

// Set advances the cursor for orgID.
func (s *PostgresStore) Set(ctx context.Context, orgID string, cursor time.Time) error {
	query := `
		INSERT INTO audit_cursors (org_id, cursor_at, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (org_id) DO UPDATE SET
			cursor_at = EXCLUDED.cursor_at,
			updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, orgID, cursor); err != nil {
		return fmt.Errorf("store cursor for org %s: %w", orgID, err)
	}
	return nil
}
