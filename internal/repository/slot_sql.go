package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLSlot stores the payload as one row of kindrid_slots. It works against
// postgres and sqlite; placeholders are rebound per driver.
type SQLSlot struct {
	db   *sqlx.DB
	name string
	now  func() time.Time
}

// NewSQLSlot constructs the slot.
func NewSQLSlot(db *sqlx.DB, name string) *SQLSlot {
	return &SQLSlot{db: db, name: name, now: time.Now}
}

// EnsureSchema creates the slot table when missing.
func (s *SQLSlot) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS kindrid_slots (
	name TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`
	if s.db.DriverName() == "postgres" {
		query = `CREATE TABLE IF NOT EXISTS kindrid_slots (
	name TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create kindrid_slots: %w", err)
	}
	return nil
}

// Read implements Slot.
func (s *SQLSlot) Read(ctx context.Context) ([]byte, error) {
	query := s.db.Rebind(`SELECT payload FROM kindrid_slots WHERE name = ?`)
	var payload []byte
	if err := s.db.GetContext(ctx, &payload, query, s.name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read slot %s: %w", s.name, err)
	}
	return payload, nil
}

// Write implements Slot.
func (s *SQLSlot) Write(ctx context.Context, payload []byte) error {
	query := s.db.Rebind(`INSERT INTO kindrid_slots (name, payload, updated_at) VALUES (?, ?, ?)
	ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, s.name, string(payload), s.now().UTC()); err != nil {
		return fmt.Errorf("write slot %s: %w", s.name, err)
	}
	return nil
}
