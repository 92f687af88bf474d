// Package history records dispatched notification payloads for audit and
// operator review. Writes here are advisory: a history failure never blocks
// or retries a dispatch.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"driftwatch/internal/watch/models"
)

// PostgresStore persists notification history rows.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Record inserts one dispatched payload with its publish outcome.
func (s *PostgresStore) Record(ctx context.Context, payload models.NotificationPayload, published bool, publishErr string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	query := `
		INSERT INTO notifications (id, org_id, category, subject, risk, change_count, published, publish_error, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		payload.OrgID,
		payload.Category,
		payload.Subject,
		payload.Risk,
		payload.ChangeCount,
		published,
		publishErr,
		body,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert notification history: %w", err)
	}
	return nil
}
