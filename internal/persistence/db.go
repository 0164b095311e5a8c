// Package persistence keeps the chronicle: the system log and the record of
// finished runs in SQLite. Game state itself is never persisted.
package persistence

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/earth-dominion/internal/engine"
)

// DB wraps a SQLite connection for the chronicle.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; SQLite serializes anyway.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS log_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		turn INTEGER NOT NULL,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		cue TEXT NOT NULL DEFAULT '',
		at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		reason TEXT NOT NULL,
		turns INTEGER NOT NULL,
		threat REAL NOT NULL,
		credits REAL NOT NULL,
		regions INTEGER NOT NULL,
		rebellious INTEGER NOT NULL,
		plants INTEGER NOT NULL,
		skills INTEGER NOT NULL,
		protocols INTEGER NOT NULL,
		language TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chronicle_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_log_run ON log_entries(run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_runs_ended ON runs(ended_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveEntries appends log entries.
func (db *DB) SaveEntries(entries []engine.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.NamedExec(`INSERT INTO log_entries (run_id, seq, turn, kind, text, cue, at)
			VALUES (:run_id, :seq, :turn, :kind, :text, :cue, :at)`, e)
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// SaveRun stores a finished run. Saving the same run twice keeps the later record.
func (db *DB) SaveRun(run engine.RunRecord) error {
	_, err := db.conn.NamedExec(`INSERT OR REPLACE INTO runs
		(id, started_at, ended_at, reason, turns, threat, credits, regions,
		 rebellious, plants, skills, protocols, language)
		VALUES (:id, :started_at, :ended_at, :reason, :turns, :threat, :credits, :regions,
		 :rebellious, :plants, :skills, :protocols, :language)`, run)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	slog.Debug("run chronicled", "run", run.ID, "reason", run.Reason, "turns", run.Turns)
	return db.SaveMeta("last_run", run.ID)
}

// RecentEntries returns up to limit entries of a run, oldest first.
func (db *DB) RecentEntries(runID string, limit int) ([]engine.LogEntry, error) {
	var entries []engine.LogEntry
	err := db.conn.Select(&entries, `SELECT seq, run_id, turn, kind, text, cue, at
		FROM log_entries WHERE run_id = ? ORDER BY seq DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// Runs returns the most recent finished runs, newest first.
func (db *DB) Runs(limit int) ([]engine.RunRecord, error) {
	var runs []engine.RunRecord
	err := db.conn.Select(&runs, `SELECT id, started_at, ended_at, reason, turns, threat, credits,
			regions, rebellious, plants, skills, protocols, language
		FROM runs ORDER BY ended_at DESC LIMIT ?`,
		limit,
	)
	return runs, err
}

// RunStats summarizes the chronicle.
type RunStats struct {
	Runs      int     `json:"runs" db:"runs"`
	BestTurns int     `json:"bestTurns" db:"best_turns"`
	AvgTurns  float64 `json:"avgTurns" db:"avg_turns"`
}

// Stats aggregates all finished runs.
func (db *DB) Stats() (RunStats, error) {
	var s RunStats
	err := db.conn.Get(&s, `SELECT COUNT(*) AS runs,
			COALESCE(MAX(turns), 0) AS best_turns,
			COALESCE(AVG(turns), 0) AS avg_turns
		FROM runs`)
	return s, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO chronicle_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM chronicle_meta WHERE key = ?", key)
	return value, err
}

// Prune deletes log entries older than the cutoff. Run records are kept.
func (db *DB) Prune(before time.Time) (int64, error) {
	res, err := db.conn.Exec("DELETE FROM log_entries WHERE at < ?", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
