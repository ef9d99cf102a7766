// Package storage persists queued write records across process restarts. It
// is the source of truth of the sync subsystem: a record returned from Put is
// guaranteed to be on disk.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record statuses. A record is "pending" until a sync pass picks it up,
// "syncing" while an attempt is in flight, and "failed" once the attempt cap
// is exhausted or the remote rejected it permanently.
const (
	StatusPending = "pending"
	StatusSyncing = "syncing"
	StatusFailed  = "failed"
)

// MaxAttempts is the per-record attempt cap. Past it the record is parked as
// failed until the user asks for a retry.
const MaxAttempts = 5

// QueuedWrite is one durably recorded write intent.
type QueuedWrite struct {
	ID           string
	BatchID      string
	Op           string
	Collection   string
	Payload      []byte
	EnqueuedAt   time.Time
	AttemptCount int
	LastError    string
	Status       string
	// NextAttemptAt is zero when the record is due immediately.
	NextAttemptAt time.Time
}

// QueueStore is the durable key-value store for queued writes, backed by a
// single SQLite database file.
type QueueStore struct {
	db *sql.DB
}

// Open opens (or creates) the queue database and runs migrations. The
// connection is configured with synchronous=FULL so that every committed
// write is flushed to stable storage before the statement returns; that
// flush is what lets Put acknowledge durability to its caller.
func Open(dbPath string) (*QueueStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?%s", dbPath, durabilityParams)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &QueueStore{db: db}, nil
}

const durabilityParams = "_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"

func runMigrations(dbPath string) error {
	// Separate connection so migration locking cannot interfere with the
	// store's own connection pool.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func (s *QueueStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put inserts or replaces a record. The commit is synchronous: when Put
// returns nil the record has reached disk and survives an immediate kill.
func (s *QueueStore) Put(ctx context.Context, rec QueuedWrite) error {
	var next any
	if !rec.NextAttemptAt.IsZero() {
		next = rec.NextAttemptAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO queued_writes
			(id, batch_id, op_type, target_collection, payload,
			 enqueued_at, attempt_count, last_error, status, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BatchID, rec.Op, rec.Collection, rec.Payload,
		rec.EnqueuedAt.UTC(), rec.AttemptCount, rec.LastError, rec.Status, next)
	if err != nil {
		return fmt.Errorf("put queued write %s: %w", rec.ID, err)
	}
	return nil
}

// GetAll returns every record in enqueue order.
func (s *QueueStore) GetAll(ctx context.Context) ([]QueuedWrite, error) {
	return s.query(ctx, `
		SELECT id, batch_id, op_type, target_collection, payload,
		       enqueued_at, attempt_count, last_error, status, next_attempt_at
		FROM queued_writes ORDER BY rowid`)
}

// GetByStatus returns records with the given status in enqueue order.
func (s *QueueStore) GetByStatus(ctx context.Context, status string) ([]QueuedWrite, error) {
	return s.query(ctx, `
		SELECT id, batch_id, op_type, target_collection, payload,
		       enqueued_at, attempt_count, last_error, status, next_attempt_at
		FROM queued_writes WHERE status = ? ORDER BY rowid`, status)
}

func (s *QueueStore) query(ctx context.Context, q string, args ...any) ([]QueuedWrite, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query queued writes: %w", err)
	}
	defer rows.Close()

	var out []QueuedWrite
	for rows.Next() {
		var rec QueuedWrite
		var next sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.BatchID, &rec.Op, &rec.Collection, &rec.Payload,
			&rec.EnqueuedAt, &rec.AttemptCount, &rec.LastError, &rec.Status, &next); err != nil {
			return nil, fmt.Errorf("scan queued write: %w", err)
		}
		if next.Valid {
			rec.NextAttemptAt = next.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Remove deletes a record. Called only after a confirmed remote success or an
// explicit purge of failed entries.
func (s *QueueStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_writes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove queued write %s: %w", id, err)
	}
	return nil
}

// MarkSyncing flags a record as having an attempt in flight.
func (s *QueueStore) MarkSyncing(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE queued_writes SET status = ? WHERE id = ?`, StatusSyncing, id); err != nil {
		return fmt.Errorf("mark syncing %s: %w", id, err)
	}
	return nil
}

// MarkRetry records a failed attempt and schedules the next one.
func (s *QueueStore) MarkRetry(ctx context.Context, id string, attemptCount int, lastError string, nextAttemptAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE queued_writes
		SET status = ?, attempt_count = ?, last_error = ?, next_attempt_at = ?
		WHERE id = ?`,
		StatusPending, attemptCount, lastError, nextAttemptAt.UTC(), id); err != nil {
		return fmt.Errorf("mark retry %s: %w", id, err)
	}
	return nil
}

// MarkFailed parks a record past the attempt cap (or permanently rejected).
func (s *QueueStore) MarkFailed(ctx context.Context, id string, attemptCount int, lastError string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE queued_writes
		SET status = ?, attempt_count = ?, last_error = ?, next_attempt_at = NULL
		WHERE id = ?`,
		StatusFailed, attemptCount, lastError, id); err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// ResetFailed returns all failed records to pending with a fresh attempt
// budget. Backs the user-initiated retry.
func (s *QueueStore) ResetFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queued_writes
		SET status = ?, attempt_count = 0, next_attempt_at = NULL
		WHERE status = ?`, StatusPending, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("reset failed records: %w", err)
	}
	return res.RowsAffected()
}

// ResetStaleSyncing returns records stuck in syncing back to pending. Run at
// startup to recover from a crash mid-pass.
func (s *QueueStore) ResetStaleSyncing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queued_writes SET status = ? WHERE status = ?`,
		StatusPending, StatusSyncing)
	if err != nil {
		return 0, fmt.Errorf("reset stale syncing records: %w", err)
	}
	return res.RowsAffected()
}

// PurgeFailed removes all failed records. Backs the user-facing dismiss.
func (s *QueueStore) PurgeFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM queued_writes WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("purge failed records: %w", err)
	}
	return res.RowsAffected()
}

// Counts returns the number of records per status.
func (s *QueueStore) Counts(ctx context.Context) (pending, syncing, failed int, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM queued_writes GROUP BY status`)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count queued writes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, 0, fmt.Errorf("scan count: %w", err)
		}
		switch status {
		case StatusPending:
			pending = n
		case StatusSyncing:
			syncing = n
		case StatusFailed:
			failed = n
		}
	}
	return pending, syncing, failed, rows.Err()
}
