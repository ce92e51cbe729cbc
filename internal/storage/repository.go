package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"fintrack/internal/core"
	"fintrack/internal/records"

	_ "modernc.org/sqlite"
)

const (
	insertRecord = `INSERT INTO records (date, amount, category, description) VALUES (?, ?, ?, ?)`
	selectAll    = `SELECT id, date, amount, category, description FROM records ORDER BY id`
)

// SQLiteRepository stores records in a single SQLite table, using the same
// textual row schema as the CSV file so both backends decode identically.
type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
}

var (
	_ records.Store   = (*SQLiteRepository)(nil)
	_ records.Locator = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository opens the database. The schema is created by
// EnsureInitialized, not here.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, dbPath: dbPath}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Location() string {
	return r.dbPath
}

// EnsureInitialized implements records.Store by running the embedded migrations.
func (r *SQLiteRepository) EnsureInitialized(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := RunMigrations(r.dbPath); err != nil {
		return &core.StoreError{Op: "initialize", Location: r.dbPath, Err: err}
	}
	return nil
}

// Append implements records.Store
func (r *SQLiteRepository) Append(ctx context.Context, rec core.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	row := records.EncodeRow(rec)
	res, err := r.db.ExecContext(ctx, insertRecord, row[0], row[1], row[2], row[3])
	if err != nil {
		return &core.StoreError{Op: "append", Location: r.dbPath, Err: err}
	}

	id, _ := res.LastInsertId()
	slog.DebugContext(ctx, "Record saved to SQLite",
		"id", id,
		"date", row[0],
		"amount", row[1],
		"category", row[2])
	return nil
}

// LoadAll implements records.Store. Rows are returned in insertion order; the
// row number in a CorruptDataError is the record id.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, selectAll)
	if err != nil {
		return nil, &core.StoreError{Op: "load", Location: r.dbPath, Err: err}
	}
	defer rows.Close()

	out := make([]core.Record, 0)
	for rows.Next() {
		var (
			id     int64
			fields = make([]string, len(records.Header))
		)
		if err := rows.Scan(&id, &fields[0], &fields[1], &fields[2], &fields[3]); err != nil {
			return nil, &core.StoreError{Op: "load", Location: r.dbPath, Err: err}
		}
		rec, err := records.DecodeRow(int(id), fields)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", r.dbPath, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StoreError{Op: "load", Location: r.dbPath, Err: err}
	}
	return out, nil
}

// Count returns the number of stored records.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, &core.StoreError{Op: "count", Location: r.dbPath, Err: err}
	}
	return n, nil
}
