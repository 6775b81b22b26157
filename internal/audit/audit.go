package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry records one processed query
type Entry struct {
	ID            string
	SessionID     string
	Timestamp     time.Time
	RequestedMode string
	ResolvedMode  string
	ScenarioType  string
	QueryLength   int
	ResponseChars int
	Duration      time.Duration
	Corrected     bool
	Success       bool
	Error         string
	Metadata      map[string]string
}

// Filter narrows Query. Zero values match everything.
type Filter struct {
	SessionID string
	Mode      string
	Since     time.Time
	Corrected *bool
	Limit     int
	Offset    int
}

// Stats aggregates the log
type Stats struct {
	TotalQueries    int
	Successful      int
	Corrected       int
	ErrorRate       float64
	CorrectionRate  float64
	AverageDuration time.Duration
	ByMode          map[string]int
}

// Logger is what the chat pipeline writes to
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
}

// SQLite stores entries in a SQLite database
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates the audit database at dbPath. ":memory:" keeps
// the log in process.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if strings.HasPrefix(dbPath, "~/") {
			home, _ := os.UserHomeDir()
			dbPath = filepath.Join(home, dbPath[2:])
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a second connection to :memory: would see an empty database
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_log (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		requested_mode TEXT NOT NULL,
		resolved_mode TEXT NOT NULL,
		scenario_type TEXT,
		query_length INTEGER,
		response_chars INTEGER,
		duration_ms INTEGER,
		corrected BOOLEAN,
		success BOOLEAN,
		error TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_query_log_timestamp ON query_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_query_log_session ON query_log(session_id);
	CREATE INDEX IF NOT EXISTS idx_query_log_mode ON query_log(resolved_mode);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Log records an entry
func (s *SQLite) Log(ctx context.Context, entry *Entry) error {
	metadata := "{}"
	if len(entry.Metadata) > 0 {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = string(data)
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (
			id, session_id, timestamp, requested_mode, resolved_mode, scenario_type,
			query_length, response_chars, duration_ms, corrected, success, error, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.SessionID,
		ts.UTC(),
		entry.RequestedMode,
		entry.ResolvedMode,
		entry.ScenarioType,
		entry.QueryLength,
		entry.ResponseChars,
		entry.Duration.Milliseconds(),
		entry.Corrected,
		entry.Success,
		entry.Error,
		metadata,
	)
	return err
}

// Query returns entries matching filter, newest first
func (s *SQLite) Query(ctx context.Context, filter Filter) ([]*Entry, error) {
	query := `SELECT id, session_id, timestamp, requested_mode, resolved_mode, scenario_type,
		query_length, response_chars, duration_ms, corrected, success, error, metadata
		FROM query_log WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Mode != "" {
		query += " AND resolved_mode = ?"
		args = append(args, filter.Mode)
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC())
	}
	if filter.Corrected != nil {
		query += " AND corrected = ?"
		args = append(args, *filter.Corrected)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var durationMs int64
		var scenarioType, errText, metadata sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.Timestamp,
			&entry.RequestedMode,
			&entry.ResolvedMode,
			&scenarioType,
			&entry.QueryLength,
			&entry.ResponseChars,
			&durationMs,
			&entry.Corrected,
			&entry.Success,
			&errText,
			&metadata,
		); err != nil {
			return nil, err
		}

		entry.ScenarioType = scenarioType.String
		entry.Error = errText.String
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		if metadata.Valid && metadata.String != "{}" {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", entry.ID, err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Stats aggregates entries logged at or after since; a zero since covers everything
func (s *SQLite) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	var stats Stats
	var avgDuration sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN corrected = 1 THEN 1 ELSE 0 END), 0),
			AVG(duration_ms)
		FROM query_log
		WHERE timestamp >= ?`, since.UTC(),
	).Scan(&stats.TotalQueries, &stats.Successful, &stats.Corrected, &avgDuration)
	if err != nil {
		return nil, err
	}

	if avgDuration.Valid {
		stats.AverageDuration = time.Duration(avgDuration.Float64 * float64(time.Millisecond))
	}
	if stats.TotalQueries > 0 {
		stats.ErrorRate = float64(stats.TotalQueries-stats.Successful) / float64(stats.TotalQueries)
		stats.CorrectionRate = float64(stats.Corrected) / float64(stats.TotalQueries)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT resolved_mode, COUNT(*) FROM query_log WHERE timestamp >= ? GROUP BY resolved_mode", since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats.ByMode = make(map[string]int)
	for rows.Next() {
		var mode string
		var count int
		if err := rows.Scan(&mode, &count); err != nil {
			return nil, err
		}
		stats.ByMode[mode] = count
	}
	return &stats, rows.Err()
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
