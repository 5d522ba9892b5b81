package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/cadforge/internal/storage"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const cycleColumns = `id, request, kind, status, provider, model, profile, plugin, output, error, created_at, completed_at`

func (s *SQLiteStore) RecordRequest(ctx context.Context, c *storage.CycleRecord) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Status = storage.StatusPending

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, request, status, provider, model, profile, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Request, c.Status, c.Provider, c.Model, c.Profile,
		c.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting cycle: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CompleteCycle(ctx context.Context, c *storage.CycleRecord) error {
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE cycles SET kind = ?, status = ?, provider = ?, model = ?, profile = ?,
			plugin = ?, output = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		c.Kind, c.Status, c.Provider, c.Model, c.Profile,
		c.Plugin, c.Output, c.Error, c.CompletedAt.UTC().Format(timeLayout),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating cycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, c.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cycle_attempts WHERE cycle_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clearing attempts: %w", err)
	}
	for i, a := range c.Attempts {
		errs, _ := json.Marshal(nonNil(a.Errors))
		warns, _ := json.Marshal(nonNil(a.Warnings))
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cycle_attempts (cycle_id, seq, phase, script, success, stdout, stderr,
				error_summary, errors, warnings, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, i, a.Phase, a.Script, a.Success, a.Stdout, a.Stderr,
			a.ErrorSummary, string(errs), string(warns), a.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("inserting attempt %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetCycle(ctx context.Context, id string) (*storage.CycleRecord, error) {
	c, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Attempts, err = s.loadAttempts(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// resolve tries an exact match, then a prefix match.
func (s *SQLiteStore) resolve(ctx context.Context, id string) (*storage.CycleRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id)
	c, err := scanCycle(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying cycle: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id LIKE ? || '%'`, id)
	if err != nil {
		return nil, fmt.Errorf("querying cycle: %w", err)
	}
	defer rows.Close()

	var matches []*storage.CycleRecord
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous cycle prefix %q matches %d cycles", id, len(matches))
	}
}

func (s *SQLiteStore) loadAttempts(ctx context.Context, cycleID string) ([]storage.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phase, script, success, stdout, stderr, error_summary, errors, warnings, duration_ms
		FROM cycle_attempts WHERE cycle_id = ? ORDER BY seq`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("loading attempts: %w", err)
	}
	defer rows.Close()

	var out []storage.AttemptRecord
	for rows.Next() {
		var a storage.AttemptRecord
		var errs, warns string
		var ms int64
		if err := rows.Scan(&a.Phase, &a.Script, &a.Success, &a.Stdout, &a.Stderr,
			&a.ErrorSummary, &errs, &warns, &ms); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(errs), &a.Errors)
		_ = json.Unmarshal([]byte(warns), &a.Warnings)
		a.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListCycles(ctx context.Context, opts storage.ListOptions) ([]storage.CycleRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + cycleColumns + ` FROM cycles`
	var args []any

	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}

	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	defer rows.Close()

	var cycles []storage.CycleRecord
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *c)
	}
	return cycles, rows.Err()
}

func (s *SQLiteStore) DeleteCycle(ctx context.Context, id string) error {
	c, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cycle_attempts WHERE cycle_id = ?`, c.ID); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM cycles WHERE id = ?`, c.ID)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(s scanner) (*storage.CycleRecord, error) {
	var c storage.CycleRecord
	var createdAt string
	var completedAt sql.NullString
	err := s.Scan(&c.ID, &c.Request, &c.Kind, &c.Status, &c.Provider, &c.Model,
		&c.Profile, &c.Plugin, &c.Output, &c.Error, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if completedAt.Valid {
		c.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt.String)
	}
	return &c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
