// Package sqlite keeps practice results in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"speakwell/internal/domain"
	"speakwell/internal/progress"
)

const schema = `
	CREATE TABLE IF NOT EXISTS exercise_results (
		id TEXT PRIMARY KEY,
		userId TEXT NOT NULL,
		exerciseType TEXT NOT NULL,
		exerciseText TEXT NOT NULL,
		transcription TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL,
		accuracy REAL NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		issues TEXT NOT NULL DEFAULT '[]',
		timestamp REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exercise_results_user_time
		ON exercise_results (userId, timestamp DESC);

	CREATE TABLE IF NOT EXISTS user_stats (
		userId TEXT PRIMARY KEY,
		totalSessions INTEGER NOT NULL,
		averageScore REAL NOT NULL,
		speechIssues TEXT NOT NULL DEFAULT '[]',
		lastPractice REAL
	);
`

// Store implements ports.ProgressStore on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "speakwell", "progress.sqlite")
	}
	return "speakwell.sqlite"
}

// Open opens or creates the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveExerciseResult stores one result and folds it into the user's stats in a single transaction.
func (s *Store) SaveExerciseResult(ctx context.Context, userID string, record domain.ExerciseRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}
	issues, err := json.Marshal(nonNil(record.Issues))
	if err != nil {
		return fmt.Errorf("encode issues: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exercise_results
			(id, userId, exerciseType, exerciseText, transcription, score, accuracy, feedback, issues, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, userID, progress.ExerciseType(record), record.ExerciseText, record.Transcript,
		record.Score, record.Accuracy, record.Feedback, string(issues), unixFromTime(record.Timestamp)); err != nil {
		return fmt.Errorf("insert exercise result: %w", err)
	}

	prev, err := scanStats(tx.QueryRowContext(ctx, statsQuery, userID))
	if err != nil {
		return err
	}
	next := progress.UpdateStats(prev, record, record.Timestamp)
	speechIssues, err := json.Marshal(nonNil(next.SpeechIssues))
	if err != nil {
		return fmt.Errorf("encode speech issues: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_stats (userId, totalSessions, averageScore, speechIssues, lastPractice)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(userId) DO UPDATE SET
			totalSessions = excluded.totalSessions,
			averageScore = excluded.averageScore,
			speechIssues = excluded.speechIssues,
			lastPractice = excluded.lastPractice
	`, userID, next.TotalSessions, next.AverageScore, string(speechIssues), unixFromTime(next.LastPractice)); err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// History returns the most recent results, newest first.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]domain.ExerciseRecord, error) {
	if limit <= 0 {
		limit = progress.DefaultHistoryLimit
	}
	return s.recent(ctx, userID, limit)
}

func (s *Store) WeakAreas(ctx context.Context, userID string) ([]domain.WeakArea, error) {
	records, err := s.recent(ctx, userID, progress.WeakAreaWindow)
	if err != nil {
		return nil, err
	}
	return progress.WeakAreas(records), nil
}

func (s *Store) Progress(ctx context.Context, userID string, days int) ([]domain.DailyProgress, error) {
	records, err := s.recent(ctx, userID, progress.ProgressWindow)
	if err != nil {
		return nil, err
	}
	return progress.Daily(records, days, s.now()), nil
}

// Stats returns the running summary. A user without results gets zero stats.
func (s *Store) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	return scanStats(s.db.QueryRowContext(ctx, statsQuery, userID))
}

func (s *Store) recent(ctx context.Context, userID string, limit int) ([]domain.ExerciseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exerciseType, exerciseText, transcription, score, accuracy, feedback, issues, timestamp
		FROM exercise_results
		WHERE userId = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query exercise results: %w", err)
	}
	defer rows.Close()

	var records []domain.ExerciseRecord
	for rows.Next() {
		var r domain.ExerciseRecord
		var issues string
		var ts float64
		if err := rows.Scan(&r.ID, &r.ExerciseType, &r.ExerciseText, &r.Transcript,
			&r.Score, &r.Accuracy, &r.Feedback, &issues, &ts); err != nil {
			return nil, fmt.Errorf("scan exercise result: %w", err)
		}
		if err := json.Unmarshal([]byte(issues), &r.Issues); err != nil {
			return nil, fmt.Errorf("decode issues of %s: %w", r.ID, err)
		}
		r.Timestamp = timeFromUnix(ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

const statsQuery = `
	SELECT totalSessions, averageScore, speechIssues, lastPractice
	FROM user_stats
	WHERE userId = ?
`

func scanStats(row *sql.Row) (domain.UserStats, error) {
	var stats domain.UserStats
	var issues string
	var lastPractice sql.NullFloat64
	if err := row.Scan(&stats.TotalSessions, &stats.AverageScore, &issues, &lastPractice); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserStats{}, nil
		}
		return domain.UserStats{}, fmt.Errorf("scan user stats: %w", err)
	}
	if err := json.Unmarshal([]byte(issues), &stats.SpeechIssues); err != nil {
		return domain.UserStats{}, fmt.Errorf("decode speech issues: %w", err)
	}
	if lastPractice.Valid {
		stats.LastPractice = timeFromUnix(lastPractice.Float64)
	}
	return stats, nil
}

func timeFromUnix(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
