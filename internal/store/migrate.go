package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS guard_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		client_key TEXT NOT NULL,
		category TEXT,
		violation TEXT,
		reputation INTEGER NOT NULL DEFAULT 0,
		block_ms INTEGER NOT NULL DEFAULT 0,
		occurred_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_guard_events_client ON guard_events(client_key, occurred_at);`,
	`CREATE INDEX IF NOT EXISTS idx_guard_events_time ON guard_events(occurred_at);`,
	`CREATE INDEX IF NOT EXISTS idx_guard_events_kind ON guard_events(kind, occurred_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
