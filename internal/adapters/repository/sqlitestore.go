package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/pkg/metrics"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const profileSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id               INTEGER PRIMARY KEY,
	seq                   INTEGER NOT NULL,
	category              TEXT    NOT NULL,
	accuracy_rate         REAL    NOT NULL,
	learning_speed        REAL    NOT NULL,
	study_frequency       REAL    NOT NULL,
	consistency           REAL    NOT NULL,
	difficulty_preference REAL    NOT NULL,
	time_per_lesson       REAL    NOT NULL,
	completion_rate       REAL    NOT NULL,
	streak_length         REAL    NOT NULL,
	xp_earned             REAL    NOT NULL,
	updated_at            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS profiles_seq ON profiles(seq);
`

const upsertProfile = `
INSERT INTO profiles (user_id, seq, category, accuracy_rate, learning_speed, study_frequency,
	consistency, difficulty_preference, time_per_lesson, completion_rate, streak_length, xp_earned, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	category = excluded.category,
	accuracy_rate = excluded.accuracy_rate,
	learning_speed = excluded.learning_speed,
	study_frequency = excluded.study_frequency,
	consistency = excluded.consistency,
	difficulty_preference = excluded.difficulty_preference,
	time_per_lesson = excluded.time_per_lesson,
	completion_rate = excluded.completion_rate,
	streak_length = excluded.streak_length,
	xp_earned = excluded.xp_earned,
	updated_at = excluded.updated_at`

// SQLiteStore persists profiles to a SQLite file and serves reads from an
// embedded MemoryStore loaded at open. Writes hit the database first and
// only then the memory copy.
type SQLiteStore struct {
	db  *sql.DB
	mem *MemoryStore
	seq int64
}

// OpenSQLite opens (or creates) the database at path and loads every stored
// profile in original insertion order.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, profileSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema creation failed: %w", err)
	}

	s := &SQLiteStore{db: db, mem: NewMemoryStore(ctx, opts...)}
	if err := s.load(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, seq, category, accuracy_rate, learning_speed, study_frequency, consistency,
			difficulty_preference, time_per_lesson, completion_rate, streak_length, xp_earned
		FROM profiles ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	var vs []features.FeatureVector
	for rows.Next() {
		var (
			v   features.FeatureVector
			seq int64
			cat string
		)
		if err := rows.Scan(&v.UserID, &seq, &cat,
			&v.AccuracyRate, &v.LearningSpeed, &v.StudyFrequency, &v.Consistency,
			&v.DifficultyPreference, &v.TimePerLesson, &v.CompletionRate, &v.StreakLength, &v.XPEarned,
		); err != nil {
			return fmt.Errorf("scan profile: %w", err)
		}
		if v.Category, err = features.ParseCategory(cat); err != nil {
			return fmt.Errorf("profile %d: %w", v.UserID, err)
		}
		vs = append(vs, v)
		s.seq = max(s.seq, seq)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	return s.mem.Replace(ctx, vs)
}

func execUpsert(ctx context.Context, tx *sql.Tx, v features.FeatureVector, seq int64) error {
	_, err := tx.ExecContext(ctx, upsertProfile,
		v.UserID, seq, v.Category.String(),
		v.AccuracyRate, v.LearningSpeed, v.StudyFrequency, v.Consistency,
		v.DifficultyPreference, v.TimePerLesson, v.CompletionRate, v.StreakLength, v.XPEarned,
		time.Now().UnixMilli(),
	)
	return err
}

// Upsert implements Store.Upsert.
func (s *SQLiteStore) Upsert(ctx context.Context, v features.FeatureVector) (created bool, err error) {
	if err := v.ValidateProfile(); err != nil {
		return false, fmt.Errorf("upsert: %w", err)
	}

	start := time.Now()
	defer func() {
		if err != nil {
			metrics.RecordErrorLatency("repository", "sqlite_write", metrics.Since(start))
		}
	}()

	// Hold the memory lock across the write so database and memory order agree.
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if s.mem.closed {
		return false, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := execUpsert(ctx, tx, v, s.seq+1); err != nil {
		return false, fmt.Errorf("upsert profile %d: %w", v.UserID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	created = s.mem.put(v)
	if created {
		s.seq++
	}
	s.mem.version++
	metrics.RecordStoreWriteLatency(metrics.Since(start))
	return created, nil
}

// Replace implements Store.Replace.
func (s *SQLiteStore) Replace(ctx context.Context, vs []features.FeatureVector) error {
	for i, v := range vs {
		if err := v.ValidateProfile(); err != nil {
			return fmt.Errorf("replace: profile %d: %w", i, err)
		}
	}

	start := time.Now()
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if s.mem.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.replaceTx(ctx, tx, vs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.mem.reset(vs)
	s.seq = int64(len(vs))
	metrics.RecordStoreWriteLatency(metrics.Since(start))
	return nil
}

func (s *SQLiteStore) replaceTx(ctx context.Context, tx *sql.Tx, vs []features.FeatureVector) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM profiles"); err != nil {
		return fmt.Errorf("clear profiles: %w", err)
	}
	for i, v := range vs {
		if err := execUpsert(ctx, tx, v, int64(i+1)); err != nil {
			return fmt.Errorf("insert profile %d: %w", v.UserID, err)
		}
	}
	return nil
}

// Get implements Store.Get.
func (s *SQLiteStore) Get(ctx context.Context, userID int64) (features.FeatureVector, error) {
	return s.mem.Get(ctx, userID)
}

// Snapshot implements Store.Snapshot.
func (s *SQLiteStore) Snapshot(ctx context.Context) Snapshot {
	return s.mem.Snapshot(ctx)
}

// Count implements Store.Count.
func (s *SQLiteStore) Count(ctx context.Context) int {
	return s.mem.Count(ctx)
}

// Close stops background work and closes the database.
func (s *SQLiteStore) Close() error {
	return errors.Join(s.mem.Close(), s.db.Close())
}
