// Package sqlite persists the ledger event log in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/louisbranch/credrank/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/credrank/internal/platform/timeouts"
	"github.com/louisbranch/credrank/internal/services/cred/domain/ledger"
	"github.com/louisbranch/credrank/internal/services/cred/storage/sqlite/migrations"
)

// ErrSequenceConflict indicates an append that does not continue the stored log.
var ErrSequenceConflict = errors.New("ledger event sequence conflict")

// Store persists ledger events in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cleanPath, timeouts.StoreBusy.Milliseconds())
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// LastSeq returns the sequence number of the newest stored event, or 0.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var seq int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return uint64(seq), nil
}

// Append stores events in one transaction. The first event must follow the
// newest stored event and the rest must be consecutive.
func (s *Store) Append(ctx context.Context, events ...ledger.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_events`).Scan(&last); err != nil {
		return fmt.Errorf("read last seq: %w", err)
	}
	storedAt := s.now().UTC().UnixMilli()
	for i, e := range events {
		want := uint64(last) + uint64(i) + 1
		if e.Seq != want {
			return fmt.Errorf("%w: event seq %d, want %d", ErrSequenceConflict, e.Seq, want)
		}
		if strings.TrimSpace(string(e.Type)) == "" {
			return fmt.Errorf("event %d: type is required", e.Seq)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_events (seq, event_type, timestamp_ms, payload, stored_at) VALUES (?, ?, ?, ?, ?)`,
			int64(e.Seq),
			string(e.Type),
			e.TimestampMs,
			string(e.Payload),
			storedAt,
		); err != nil {
			if isSeqConflict(err) {
				return fmt.Errorf("%w: event seq %d already stored", ErrSequenceConflict, e.Seq)
			}
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events with seq greater than afterSeq, in
// order. A limit of zero or less returns every remaining event.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]ledger.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	query := `SELECT seq, event_type, timestamp_ms, payload FROM ledger_events WHERE seq > ? ORDER BY seq`
	args := []any{int64(afterSeq)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			seq       int64
			eventType string
			ts        int64
			payload   string
		)
		if err := rows.Scan(&seq, &eventType, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ledger.Event{
			Seq:         uint64(seq),
			Type:        ledger.EventType(eventType),
			TimestampMs: ts,
			Payload:     []byte(payload),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LoadLedger replays every stored event into a ledger.
func (s *Store) LoadLedger(ctx context.Context, opts ...ledger.Option) (*ledger.Ledger, error) {
	events, err := s.ListEvents(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	return ledger.Replay(events, opts...)
}

func isSeqConflict(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
