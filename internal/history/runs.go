package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = "id, started_at, finished_at, descriptor_path, data_dir, status, dispatched, error_kind, error_message, seed_path"

// ErrNotFound reports a missing run.
var ErrNotFound = errors.New("run not found")

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id           string
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		descriptor   string
		dataDir      string
		status       string
		dispatched   int64
		errorKind    sql.NullString
		errorMessage sql.NullString
		seedPath     sql.NullString
	)
	if err := scanner.Scan(&id, &startedRaw, &finishedRaw, &descriptor, &dataDir, &status, &dispatched, &errorKind, &errorMessage, &seedPath); err != nil {
		return nil, err
	}
	return &Run{
		ID:             id,
		StartedAt:      parseTime(startedRaw),
		FinishedAt:     parseTime(finishedRaw),
		DescriptorPath: descriptor,
		DataDir:        dataDir,
		Status:         Status(status),
		Dispatched:     dispatched != 0,
		ErrorKind:      errorKind.String,
		ErrorMessage:   errorMessage.String,
		SeedPath:       seedPath.String,
	}, nil
}

// Begin records a new running run.
func (s *Store) Begin(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("history: run id required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, started_at, descriptor_path, data_dir, status) VALUES (?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), run.DescriptorPath, run.DataDir, string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// MarkDispatched flags that the publisher was started for run id.
func (s *Store) MarkDispatched(ctx context.Context, id string) error {
	return s.update(ctx, id, `UPDATE runs SET dispatched = 1 WHERE id = ?`, id)
}

// Finish records the terminal status of run id.
func (s *Store) Finish(ctx context.Context, id string, status Status, errorKind, errorMessage, seedPath string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("history: %q is not a terminal status", status)
	}
	return s.update(ctx, id,
		`UPDATE runs SET status = ?, finished_at = ?, error_kind = ?, error_message = ?, seed_path = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), nullString(errorKind), nullString(errorMessage), nullString(seedPath), id,
	)
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get returns run id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// MarkInterrupted closes out runs against dataDir left in the running state
// by a process that died without recording an outcome. Callers must hold the
// run lock for dataDir. It returns how many runs were updated.
func (s *Store) MarkInterrupted(ctx context.Context, dataDir string) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_kind = 'interrupted', error_message = 'run did not record an outcome' WHERE status = ? AND data_dir = ?`,
		string(StatusAborted), formatTime(time.Now()), string(StatusRunning), dataDir,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}
