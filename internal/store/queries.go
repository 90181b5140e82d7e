package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run operations

// BeginRun records the start of a run and returns its id.
func (s *Store) BeginRun(run *Run) (int64, error) {
	query := `
		INSERT INTO runs (started_at, source, action, dataset, policy, recursive, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		run.StartedAt.Format(time.RFC3339),
		run.Source,
		run.Action,
		run.Dataset,
		run.Policy,
		run.Recursive,
		run.DryRun,
	)
	if err != nil {
		return 0, notInitialized(fmt.Errorf("failed to insert run for %s: %w", run.Dataset, err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}
	run.ID = id

	return id, nil
}

// FinishRun marks a run as complete.
func (s *Store) FinishRun(id int64, finishedAt time.Time, failed bool) error {
	query := `UPDATE runs SET finished_at = ?, failed = ? WHERE id = ?`
	result, err := s.db.Exec(query, finishedAt.Format(time.RFC3339), failed, id)
	if err != nil {
		return notInitialized(fmt.Errorf("failed to finish run %d: %w", id, err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %d not found", id)
	}

	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id int64) (*Run, error) {
	query := `
		SELECT id, started_at, finished_at, source, action, dataset, policy, recursive, dry_run, failed
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %d not found", id)
	}
	if err != nil {
		return nil, notInitialized(fmt.Errorf("failed to get run %d: %w", id, err))
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. An empty dataset
// matches every dataset; limit <= 0 means no limit.
func (s *Store) ListRuns(dataset string, limit int) ([]*Run, error) {
	query := `
		SELECT id, started_at, finished_at, source, action, dataset, policy, recursive, dry_run, failed
		FROM runs
		WHERE (? = '' OR dataset = ?)
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, dataset, dataset, sqlLimit(limit))
	if err != nil {
		return nil, notInitialized(fmt.Errorf("failed to list runs: %w", err))
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRunsBefore removes runs started before cutoff along with their
// events, returning how many runs were removed.
func (s *Store) DeleteRunsBefore(cutoff time.Time) (int64, error) {
	// started_at is RFC3339 text; compare on parsed values to avoid offset
	// differences breaking lexical order.
	rows, err := s.db.Query(`SELECT id, started_at FROM runs`)
	if err != nil {
		return 0, notInitialized(fmt.Errorf("failed to list runs: %w", err))
	}

	var stale []int64
	for rows.Next() {
		var id int64
		var startedAt string
		if err := rows.Scan(&id, &startedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan run row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, startedAt)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to parse started_at for run %d: %w", id, err)
		}
		if t.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error iterating runs: %w", err)
	}
	rows.Close()

	for _, id := range stale {
		if _, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete run %d: %w", id, err)
		}
	}

	return int64(len(stale)), nil
}

// Event operations

// InsertEvent records an event of a run.
func (s *Store) InsertEvent(event *Event) error {
	query := `
		INSERT INTO events (run_id, timestamp, dataset, class, kind, snapshot, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		event.RunID,
		event.Timestamp.Format(time.RFC3339),
		event.Dataset,
		event.Class,
		event.Kind,
		event.Snapshot,
		event.Message,
	)
	if err != nil {
		return notInitialized(fmt.Errorf("failed to insert event for run %d: %w", event.RunID, err))
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}

	return nil
}

// ListEvents returns the most recent events, newest first. An empty
// dataset matches every dataset; limit <= 0 means no limit.
func (s *Store) ListEvents(dataset string, limit int) ([]*Event, error) {
	query := `
		SELECT id, run_id, timestamp, dataset, class, kind, snapshot, message
		FROM events
		WHERE (? = '' OR dataset = ?)
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, dataset, dataset, sqlLimit(limit))
	if err != nil {
		return nil, notInitialized(fmt.Errorf("failed to list events: %w", err))
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetRunEvents returns the events of a run in the order they happened.
func (s *Store) GetRunEvents(runID int64) ([]*Event, error) {
	query := `
		SELECT id, run_id, timestamp, dataset, class, kind, snapshot, message
		FROM events
		WHERE run_id = ?
		ORDER BY id
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, notInitialized(fmt.Errorf("failed to get events for run %d: %w", runID, err))
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventCount returns the total number of recorded events.
func (s *Store) GetEventCount() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, notInitialized(fmt.Errorf("failed to count events: %w", err))
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt, policy sql.NullString

	err := row.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&run.Source,
		&run.Action,
		&run.Dataset,
		&policy,
		&run.Recursive,
		&run.DryRun,
		&run.Failed,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at for run %d: %w", run.ID, err)
	}
	if finishedAt.Valid {
		run.FinishedAt, err = time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for run %d: %w", run.ID, err)
		}
	}
	run.Policy = policy.String

	return &run, nil
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var e Event
		var timestamp string
		var snapshot, message sql.NullString

		err := rows.Scan(&e.ID, &e.RunID, &timestamp, &e.Dataset, &e.Class, &e.Kind, &snapshot, &message)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		e.Timestamp, err = time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp for event %d: %w", e.ID, err)
		}
		e.Snapshot = snapshot.String
		e.Message = message.String

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// sqlLimit maps "no limit" onto SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
