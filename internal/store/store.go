// Package store persists rendered lessons and their timing tables in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/go-lesson-audio/internal/assemble"
)

// ErrNotFound is returned by LoadTiming for an unknown job.
var ErrNotFound = errors.New("render not found")

// Render is one persisted lesson part.
type Render struct {
	JobID           string                 `json:"jobId"`
	LessonID        string                 `json:"lessonId"`
	Part            int                    `json:"part"`
	AudioURL        string                 `json:"audioUrl"`
	DurationSeconds float64                `json:"durationSeconds"`
	Timing          []assemble.TimingEntry `json:"timing"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// Store wraps a SQLite database.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open creates the database file and schema when missing. ":memory:" opens a
// private in-memory database.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := "file::memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log.With(slog.String("component", "store")), clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS renders (
    job_id TEXT PRIMARY KEY,
    lesson_id TEXT NOT NULL,
    part INTEGER NOT NULL,
    audio_url TEXT NOT NULL,
    duration_seconds REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS timings (
    job_id TEXT NOT NULL,
    unit_index INTEGER NOT NULL,
    start_ms INTEGER NOT NULL,
    end_ms INTEGER NOT NULL,
    PRIMARY KEY (job_id, unit_index),
    FOREIGN KEY(job_id) REFERENCES renders(job_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_renders_lesson ON renders(lesson_id, part);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveTiming writes a render and its timing rows in one transaction,
// replacing any previous rows for the same job.
func (s *Store) SaveTiming(ctx context.Context, r Render) (err error) {
	if r.JobID == "" {
		return errors.New("job id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM timings WHERE job_id = ?`, r.JobID); err != nil {
		return fmt.Errorf("clear timing: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO renders(job_id, lesson_id, part, audio_url, duration_seconds, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET lesson_id=excluded.lesson_id, part=excluded.part,
		   audio_url=excluded.audio_url, duration_seconds=excluded.duration_seconds`,
		r.JobID, r.LessonID, r.Part, r.AudioURL, r.DurationSeconds, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert render: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO timings(job_id, unit_index, start_ms, end_ms) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare timing: %w", err)
	}
	defer stmt.Close()
	for _, e := range r.Timing {
		if _, err = stmt.ExecContext(ctx, r.JobID, e.UnitIndex, e.StartMs, e.EndMs); err != nil {
			return fmt.Errorf("insert timing for unit %d: %w", e.UnitIndex, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.DebugContext(ctx, "timing saved", slog.String("job_id", r.JobID), slog.Int("entries", len(r.Timing)))
	return nil
}

// LoadTiming returns a render with its timing rows ordered by unit index.
func (s *Store) LoadTiming(ctx context.Context, jobID string) (Render, error) {
	r := Render{JobID: jobID}
	err := s.db.QueryRowContext(ctx,
		`SELECT lesson_id, part, audio_url, duration_seconds, created_at FROM renders WHERE job_id = ?`, jobID).
		Scan(&r.LessonID, &r.Part, &r.AudioURL, &r.DurationSeconds, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Render{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return Render{}, fmt.Errorf("load render: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT unit_index, start_ms, end_ms FROM timings WHERE job_id = ? ORDER BY unit_index`, jobID)
	if err != nil {
		return Render{}, fmt.Errorf("load timing: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e assemble.TimingEntry
		if err := rows.Scan(&e.UnitIndex, &e.StartMs, &e.EndMs); err != nil {
			return Render{}, err
		}
		r.Timing = append(r.Timing, e)
	}
	return r, rows.Err()
}

// ListByLesson returns the job ids rendered for a lesson, by part.
func (s *Store) ListByLesson(ctx context.Context, lessonID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id FROM renders WHERE lesson_id = ? ORDER BY part, created_at`, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
