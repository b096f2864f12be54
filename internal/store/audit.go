package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// AuditEvent is one persisted engine event.
type AuditEvent struct {
	ID         int64         `json:"id"`
	Kind       string        `json:"kind"`
	ClientKey  string        `json:"client_key"`
	Category   string        `json:"category,omitempty"`
	Violation  string        `json:"violation,omitempty"`
	Reputation int           `json:"reputation"`
	Block      time.Duration `json:"block_duration,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// InsertEvent appends one engine event to the audit trail.
func (s *Store) InsertEvent(ctx context.Context, ev guard.Event) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := strings.TrimSpace(ev.ClientKey)
	if key == "" {
		return errors.New("event client key is required")
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO guard_events (kind, client_key, category, violation, reputation, block_ms, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(ev.Kind), key, string(ev.Category), string(ev.Violation),
		ev.Reputation, ev.Duration.Milliseconds(), at.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

// RecentEvents returns the newest events first, up to limit.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	return s.queryEvents(ctx, `
		SELECT id, kind, client_key, category, violation, reputation, block_ms, occurred_at
		FROM guard_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, normalizeLimit(limit))
}

// ClientEvents returns the newest events for one client, up to limit.
func (s *Store) ClientEvents(ctx context.Context, clientKey string, limit int) ([]AuditEvent, error) {
	key := strings.TrimSpace(clientKey)
	if key == "" {
		return nil, errors.New("client key is required")
	}

	return s.queryEvents(ctx, `
		SELECT id, kind, client_key, category, violation, reputation, block_ms, occurred_at
		FROM guard_events
		WHERE client_key = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, key, normalizeLimit(limit))
}

// CountsByKind aggregates events since the given time, keyed by event kind.
func (s *Store) CountsByKind(ctx context.Context, since time.Time) (map[string]int, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM guard_events
		WHERE occurred_at >= ?
		GROUP BY kind
	`, since.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("count audit events: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	counts := make(map[string]int)
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan audit counts: %w", err)
		}
		counts[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan audit counts: %w", err)
	}

	return counts, nil
}

// PruneBefore deletes events older than the cutoff and reports how many rows
// went away.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM guard_events WHERE occurred_at < ?`, cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return deleted, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]AuditEvent, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var events []AuditEvent
	for rows.Next() {
		var (
			ev        AuditEvent
			category  sql.NullString
			violation sql.NullString
			blockMS   int64
			occurred  int64
		)
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.ClientKey, &category, &violation,
			&ev.Reputation, &blockMS, &occurred); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Category = category.String
		ev.Violation = violation.String
		ev.Block = time.Duration(blockMS) * time.Millisecond
		ev.OccurredAt = time.Unix(occurred, 0).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan audit event: %w", err)
	}

	return events, nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
