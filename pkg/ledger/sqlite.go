package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const memoryPath = ":memory:"

var errClosed = errors.New("ledger is closed")

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		age INTEGER NOT NULL,
		user_message_complete TEXT NOT NULL,
		story TEXT NOT NULL,
		finish_reason TEXT NOT NULL,
		estimated_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		age INTEGER NOT NULL,
		user_message_complete TEXT NOT NULL,
		story TEXT NOT NULL,
		rating INTEGER NOT NULL,
		additional_comments TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_session ON feedback(session_id)`,
}

// SQLiteLedger is a Ledger backed by a single SQLite file.
type SQLiteLedger struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens (or creates) the ledger at path and applies the schema.
// Use ":memory:" for a throwaway ledger.
func OpenSQLite(ctx context.Context, path string) (*SQLiteLedger, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("could not create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open ledger: %w", err)
	}
	// One connection keeps writes serialized and an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ping ledger: %w", err)
	}

	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not migrate ledger: %w", err)
		}
	}

	return &SQLiteLedger{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (l *SQLiteLedger) Path() string {
	return l.path
}

// SaveResult appends a result row. Missing IDs and timestamps are filled in.
func (l *SQLiteLedger) SaveResult(ctx context.Context, r ResultRecord) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return errClosed
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = l.now()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO results
		(id, session_id, user_message, age, user_message_complete, story, finish_reason, estimated_tokens, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.UserMessage, r.Age, r.UserMessageComplete, r.Story, r.FinishReason,
		r.EstimatedTokens, r.TotalTokens, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("could not save result: %w", err)
	}
	return nil
}

// SaveFeedback appends a feedback row. Missing IDs and timestamps are filled in.
func (l *SQLiteLedger) SaveFeedback(ctx context.Context, f FeedbackRecord) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return errClosed
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = l.now()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO feedback
		(id, session_id, user_message, age, user_message_complete, story, rating, additional_comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.SessionID, f.UserMessage, f.Age, f.UserMessageComplete, f.Story, f.Rating,
		f.AdditionalComments, formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("could not save feedback: %w", err)
	}
	return nil
}

// Results returns stored results, newest first.
func (l *SQLiteLedger) Results(ctx context.Context, limit int) ([]ResultRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return nil, errClosed
	}

	query := `SELECT id, session_id, user_message, age, user_message_complete, story, finish_reason,
		estimated_tokens, total_tokens, created_at FROM results ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query results: %w", err)
	}
	defer rows.Close()

	var records []ResultRecord
	for rows.Next() {
		var r ResultRecord
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserMessage, &r.Age, &r.UserMessageComplete, &r.Story,
			&r.FinishReason, &r.EstimatedTokens, &r.TotalTokens, &created); err != nil {
			return nil, fmt.Errorf("could not scan result: %w", err)
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Feedback returns the feedback rows of one session in insertion order.
func (l *SQLiteLedger) Feedback(ctx context.Context, sessionID string) ([]FeedbackRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return nil, errClosed
	}

	rows, err := l.db.QueryContext(ctx, `SELECT id, session_id, user_message, age, user_message_complete, story,
		rating, additional_comments, created_at FROM feedback WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("could not query feedback: %w", err)
	}
	defer rows.Close()

	var records []FeedbackRecord
	for rows.Next() {
		var f FeedbackRecord
		var created string
		if err := rows.Scan(&f.ID, &f.SessionID, &f.UserMessage, &f.Age, &f.UserMessageComplete, &f.Story,
			&f.Rating, &f.AdditionalComments, &created); err != nil {
			return nil, fmt.Errorf("could not scan feedback: %w", err)
		}
		if f.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		records = append(records, f)
	}
	return records, rows.Err()
}

// Close closes the database. Further calls fail.
func (l *SQLiteLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	if err != nil {
		return fmt.Errorf("could not close ledger: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q in ledger: %w", s, err)
	}
	return t, nil
}
