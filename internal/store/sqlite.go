package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// DBFile is the database file name inside the store directory.
const DBFile = "runs.db"

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore implements RunStore on a SQLite database.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (creating if needed) dir/runs.db.
func NewSQLiteRunStore(dir string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	dbPath := filepath.Join(dir, DBFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string {
	return s.dbPath
}

// SaveRun stores a run and its trace in one transaction.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run Run, trace []Iteration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	settings, err := json.Marshal(run.Settings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settings: %w", err)
	}
	overrides, err := marshalMap(run.Overrides)
	if err != nil {
		return "", fmt.Errorf("failed to marshal overrides: %w", err)
	}
	params, err := marshalMap(run.Params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal params: %w", err)
	}
	values, err := json.Marshal(run.Values)
	if err != nil {
		return "", fmt.Errorf("failed to marshal values: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, model, created_at, converged, iterations, settings, overrides, params, vals)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Model, run.CreatedAt.UTC().Format(timeLayout),
		boolToInt(run.Converged), run.Iterations,
		string(settings), overrides, params, string(values))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO iterations (run_id, iteration, output_scale, labor_scale, price_scale, close, vals)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare iteration insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range trace {
		vals, err := json.Marshal(it.Values)
		if err != nil {
			return "", fmt.Errorf("failed to marshal iteration %d: %w", it.Iteration, err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, it.Iteration,
			it.Factors.Output, it.Factors.Labor, it.Factors.Price,
			boolToInt(it.Close), string(vals)); err != nil {
			return "", fmt.Errorf("failed to insert iteration %d: %w", it.Iteration, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

const runColumns = `id, model, created_at, converged, iterations, settings, overrides, params, vals`

// GetRun returns a run by ID or unique ID prefix.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, fullID)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", fullID, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Trace returns the stored iterations of a run.
func (s *SQLiteRunStore) Trace(ctx context.Context, id string) ([]Iteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, output_scale, labor_scale, price_scale, close, vals
		FROM iterations WHERE run_id = ? ORDER BY iteration`, fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer rows.Close()

	var out []Iteration
	for rows.Next() {
		var (
			it      Iteration
			settled int
			vals    string
		)
		if err := rows.Scan(&it.Iteration, &it.Factors.Output, &it.Factors.Labor, &it.Factors.Price, &settled, &vals); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		it.Close = settled != 0
		if err := json.Unmarshal([]byte(vals), &it.Values); err != nil {
			return nil, fmt.Errorf("failed to decode iteration %d: %w", it.Iteration, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// DeleteRun removes a run. Its iterations cascade.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", fullID, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// resolveID expands a unique prefix to a full run ID.
func (s *SQLiteRunStore) resolveID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var found string
		if err := rows.Scan(&found); err != nil {
			return "", fmt.Errorf("failed to scan run id: %w", err)
		}
		if found == id {
			return found, nil
		}
		ids = append(ids, found)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("ambiguous run id prefix %q", id)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run                 Run
		createdAt, settings string
		converged           int
		overrides, params   sql.NullString
		vals                string
	)
	err := sc.Scan(&run.ID, &run.Model, &createdAt, &converged, &run.Iterations,
		&settings, &overrides, &params, &vals)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Converged = converged != 0
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &run.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if overrides.Valid {
		if err := json.Unmarshal([]byte(overrides.String), &run.Overrides); err != nil {
			return nil, fmt.Errorf("failed to decode overrides: %w", err)
		}
	}
	if params.Valid {
		if err := json.Unmarshal([]byte(params.String), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(vals), &run.Values); err != nil {
		return nil, fmt.Errorf("failed to decode values: %w", err)
	}
	return &run, nil
}

func marshalMap(m map[string]float64) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
