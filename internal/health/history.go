package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome is one completed (or failed) download reported back by the
// download executor.
type Outcome struct {
	ProviderID    string
	SourceID      string
	PredictedTime time.Duration
	ActualTime    time.Duration
	Success       bool
	RecordedAt    time.Time
}

// HistoryStore persists outcomes so provider statistics survive restarts.
type HistoryStore interface {
	Record(ctx context.Context, o Outcome) error
	// Recent returns up to perProvider latest outcomes for every provider,
	// oldest first.
	Recent(ctx context.Context, perProvider int) ([]Outcome, error)
	Close() error
}

// SQLiteHistory stores outcomes in a SQLite file.
type SQLiteHistory struct {
	db *sql.DB
}

// OpenSQLiteHistory opens (or creates) the history database at path.
func OpenSQLiteHistory(ctx context.Context, path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// Single writer; outcomes arrive one at a time
	db.SetMaxOpenConns(1)

	h := &SQLiteHistory{db: db}
	if err := h.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *SQLiteHistory) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS download_outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			predicted_ms INTEGER NOT NULL,
			actual_ms INTEGER NOT NULL,
			success INTEGER NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_provider ON download_outcomes(provider_id, id);`,
	}
	for _, stmt := range statements {
		if _, err := h.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
	}
	return nil
}

// Record appends one outcome.
func (h *SQLiteHistory) Record(ctx context.Context, o Outcome) error {
	success := 0
	if o.Success {
		success = 1
	}
	_, err := h.db.ExecContext(ctx, `
INSERT INTO download_outcomes (provider_id, source_id, predicted_ms, actual_ms, success, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		o.ProviderID, o.SourceID, o.PredictedTime.Milliseconds(), o.ActualTime.Milliseconds(), success, o.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", o.ProviderID, err)
	}
	return nil
}

// Recent loads the latest outcomes per provider, oldest first within each provider.
func (h *SQLiteHistory) Recent(ctx context.Context, perProvider int) ([]Outcome, error) {
	rows, err := h.db.QueryContext(ctx, `
SELECT provider_id, source_id, predicted_ms, actual_ms, success, recorded_at FROM (
	SELECT *, ROW_NUMBER() OVER (PARTITION BY provider_id ORDER BY id DESC) AS rn
	FROM download_outcomes
) WHERE rn <= ? ORDER BY provider_id, id`, perProvider)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var predictedMS, actualMS int64
		var success int
		if err := rows.Scan(&o.ProviderID, &o.SourceID, &predictedMS, &actualMS, &success, &o.RecordedAt); err != nil {
			return nil, err
		}
		o.PredictedTime = time.Duration(predictedMS) * time.Millisecond
		o.ActualTime = time.Duration(actualMS) * time.Millisecond
		o.Success = success == 1
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close closes the database.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
