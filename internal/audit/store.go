// Package audit persists verdicts to a local SQLite database. The store
// is append-only: records are never updated or deleted by the gateway,
// and write failures are logged rather than surfaced so audit problems
// cannot fail a request.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"warden/internal/contracts"
)

// Store is the SQLite-backed audit sink. Safe for concurrent use; the
// pool is capped at one connection, which is how SQLite wants to be
// written to.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the audit database at path and ensures the
// schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("audit store opened", zap.String("path", path))
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS verdicts (
	verdict_id      TEXT PRIMARY KEY,
	timestamp       TEXT NOT NULL,
	severity        TEXT NOT NULL,
	action          TEXT NOT NULL,
	failure_class   TEXT,
	reason          TEXT NOT NULL,
	confidence      REAL NOT NULL,
	policy_version  TEXT NOT NULL,
	tier_used       INTEGER NOT NULL,
	method          TEXT NOT NULL,
	processing_ms   REAL NOT NULL,
	text_hash       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verdicts_timestamp ON verdicts(timestamp);
CREATE INDEX IF NOT EXISTS idx_verdicts_action ON verdicts(action);

CREATE TABLE IF NOT EXISTS fired_signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	verdict_id  TEXT NOT NULL REFERENCES verdicts(verdict_id),
	signal_name TEXT NOT NULL,
	confidence  REAL NOT NULL,
	explanation TEXT,
	timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fired_signals_verdict ON fired_signals(verdict_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return nil
}

// Append persists one verdict and its fired signals. The text itself is
// never stored, only its hash.
func (s *Store) Append(ctx context.Context, v *contracts.Verdict, textHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verdicts (
			verdict_id, timestamp, severity, action, failure_class, reason,
			confidence, policy_version, tier_used, method, processing_ms, text_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VerdictID,
		v.Timestamp.UTC().Format(time.RFC3339Nano),
		string(v.Severity),
		string(v.Action),
		string(v.FailureClass),
		v.Reason,
		v.Confidence,
		v.PolicyVersion,
		v.TierUsed,
		v.Method,
		v.ProcessingTimeMS,
		textHash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}

	for _, fs := range v.FiredSignals {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fired_signals (verdict_id, signal_name, confidence, explanation, timestamp)
			VALUES (?, ?, ?, ?, ?)`,
			v.VerdictID,
			fs.SignalName,
			fs.Confidence,
			fs.Explanation,
			fs.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to insert fired signal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit tx: %w", err)
	}
	return nil
}

// Record is one persisted verdict row.
type Record struct {
	VerdictID     string    `json:"verdict_id"`
	Timestamp     time.Time `json:"timestamp"`
	Severity      string    `json:"severity"`
	Action        string    `json:"action"`
	FailureClass  string    `json:"failure_class,omitempty"`
	Reason        string    `json:"reason"`
	Confidence    float64   `json:"confidence"`
	PolicyVersion string    `json:"policy_version"`
	TierUsed      int       `json:"tier_used"`
	Method        string    `json:"method"`
	ProcessingMS  float64   `json:"processing_time_ms"`
	TextHash      string    `json:"text_hash"`
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT verdict_id, timestamp, severity, action, failure_class, reason,
		       confidence, policy_version, tier_used, method, processing_ms, text_hash
		FROM verdicts ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent verdicts: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ts string
		if err := rows.Scan(
			&r.VerdictID, &ts, &r.Severity, &r.Action, &r.FailureClass,
			&r.Reason, &r.Confidence, &r.PolicyVersion, &r.TierUsed,
			&r.Method, &r.ProcessingMS, &r.TextHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan verdict row: %w", err)
		}
		if parsed, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			r.Timestamp = parsed
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary aggregates verdicts recorded at or after since.
type Summary struct {
	Total          int            `json:"total"`
	ByAction       map[string]int `json:"by_action"`
	ByFailureClass map[string]int `json:"by_failure_class"`
	ByTier         map[int]int    `json:"by_tier"`
}

// Summary aggregates stored verdicts since the given time.
func (s *Store) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, failure_class, tier_used FROM verdicts WHERE timestamp >= ?`,
		since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit summary: %w", err)
	}
	defer rows.Close()

	sum := &Summary{
		ByAction:       make(map[string]int),
		ByFailureClass: make(map[string]int),
		ByTier:         make(map[int]int),
	}
	for rows.Next() {
		var action, fc string
		var tier int
		if err := rows.Scan(&action, &fc, &tier); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		sum.Total++
		sum.ByAction[action]++
		if fc != "" {
			sum.ByFailureClass[fc]++
		}
		sum.ByTier[tier]++
	}
	return sum, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
