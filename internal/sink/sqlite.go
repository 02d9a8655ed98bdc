package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pictopercept/internal/models"
)

// SQLiteSink stores responses in a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and initializes the schema.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_key TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		item_number INTEGER NOT NULL,
		stimulus TEXT NOT NULL,
		chosen INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		show_timer INTEGER NOT NULL,
		attention_check INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS session_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		show_timer INTEGER NOT NULL,
		trials INTEGER NOT NULL,
		records INTEGER NOT NULL,
		attention_pair TEXT NOT NULL,
		stimulus_order TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_responses_user_item ON responses(user_id, item_number);
	`
	_, err := s.db.Exec(schema)
	return err
}

const insertResponse = `
	INSERT INTO responses (record_key, user_id, item_number, stimulus, chosen, timestamp, show_timer, attention_check)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(record_key) DO NOTHING
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, e execer, r models.ResponseRecord) error {
	_, err := e.ExecContext(ctx, insertResponse,
		r.Key(),
		r.UserID,
		r.ItemNumber,
		r.Stimulus,
		r.Chosen,
		r.Timestamp.UTC().Format(models.TimestampLayout),
		r.ShowTimer,
		r.IsAttentionCheck,
	)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Write(ctx context.Context, record models.ResponseRecord) error {
	return insert(ctx, s.db, record)
}

// WriteBatch stores records in a single transaction.
func (s *SQLiteSink) WriteBatch(ctx context.Context, records []models.ResponseRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if err := insert(ctx, tx, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteSink) WriteSummary(ctx context.Context, summary models.SessionSummary) error {
	pair, err := json.Marshal([]string(summary.AttentionPair))
	if err != nil {
		return err
	}
	order, err := json.Marshal([]string(summary.StimulusOrder))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO session_summaries (session_id, user_id, show_timer, trials, records, attention_pair, stimulus_order, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		summary.SessionID,
		summary.UserID,
		summary.ShowTimer,
		summary.Trials,
		summary.Records,
		string(pair),
		string(order),
		summary.StartedAt.UTC(),
		summary.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session summary: %w", err)
	}
	return nil
}

// Responses returns the stored records of a respondent ordered by item.
func (s *SQLiteSink) Responses(ctx context.Context, userID string) ([]models.ResponseRecord, error) {
	query := `
		SELECT user_id, item_number, stimulus, chosen, timestamp, show_timer, attention_check
		FROM responses
		WHERE user_id = ?
		ORDER BY item_number, id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var out []models.ResponseRecord
	for rows.Next() {
		var r models.ResponseRecord
		var ts string
		if err := rows.Scan(&r.UserID, &r.ItemNumber, &r.Stimulus, &r.Chosen, &ts, &r.ShowTimer, &r.IsAttentionCheck); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		if r.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SummaryCount returns the number of stored session summaries.
func (s *SQLiteSink) SummaryCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_summaries`).Scan(&n)
	return n, err
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(models.TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse response timestamp %q: %w", s, err)
	}
	return t, nil
}
