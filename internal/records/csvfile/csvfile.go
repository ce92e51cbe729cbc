// Package csvfile implements the canonical flat-file record store: a UTF-8
// CSV file with a Date,Amount,Category,Description header and one appended
// row per record.
package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/records"
)

const utf8BOM = "\ufeff"

// Store is a CSV file at an explicit path. The mutex only serializes writers
// inside one process; separate processes writing the same file are not
// coordinated.
type Store struct {
	path string
	mu   sync.Mutex
}

// Ensure interface conformance
var (
	_ records.Store   = (*Store)(nil)
	_ records.Locator = (*Store)(nil)
)

func New(path string) *Store {
	return &Store{path: path}
}

// Location returns the file path backing the store.
func (s *Store) Location() string {
	return s.path
}

// EnsureInitialized implements records.Store.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	_, err := s.Initialize(ctx)
	return err
}

// Initialize creates the file with only the header row when it does not
// exist yet and reports whether it did so.
func (s *Store) Initialize(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, &core.StoreError{Op: "initialize", Location: s.path, Err: err}
		}
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, &core.StoreError{Op: "initialize", Location: s.path, Err: err}
	}

	header, err := encode(records.Header)
	if err == nil {
		_, err = f.Write(header)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(s.path)
		return false, &core.StoreError{Op: "initialize", Location: s.path, Err: err}
	}

	slog.InfoContext(ctx, "Created ledger file", "path", s.path)
	return true, nil
}

// Append implements records.Store. The row is fully encoded before a single
// write; on a failed or short write the file is truncated back to its
// previous size.
func (s *Store) Append(ctx context.Context, r core.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	row, err := encode(records.EncodeRow(r))
	if err != nil {
		return &core.StoreError{Op: "append", Location: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0)
	if err != nil {
		return &core.StoreError{Op: "append", Location: s.path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &core.StoreError{Op: "append", Location: s.path, Err: err}
	}
	size := info.Size()

	// A hand-edited file may lack the final newline.
	if size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			return &core.StoreError{Op: "append", Location: s.path, Err: err}
		}
		if last[0] != '\n' {
			row = append([]byte("\n"), row...)
		}
	}

	n, err := f.Write(row)
	if err == nil && n != len(row) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if n > 0 {
			_ = f.Truncate(size)
		}
		return &core.StoreError{Op: "append", Location: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &core.StoreError{Op: "append", Location: s.path, Err: err}
	}

	slog.DebugContext(ctx, "Record appended",
		"path", s.path,
		"date", r.Date.String(),
		"category", r.Category.String(),
		"amount", r.Amount.String())
	return nil
}

// LoadAll implements records.Store.
func (s *Store) LoadAll(ctx context.Context) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, &core.StoreError{Op: "load", Location: s.path, Err: err}
	}
	defer f.Close()

	out, err := Decode(f)
	if err != nil {
		var cde *core.CorruptDataError
		if errors.As(err, &cde) {
			return nil, fmt.Errorf("load %s: %w", s.path, err)
		}
		return nil, &core.StoreError{Op: "load", Location: s.path, Err: err}
	}
	return out, nil
}

// Decode reads a complete CSV ledger: the header followed by data rows.
func Decode(src io.Reader) ([]core.Record, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &core.CorruptDataError{Row: 1, Err: errors.New("missing header")}
	}
	if err != nil {
		return nil, parseError(err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if err := records.CheckHeader(header); err != nil {
		return nil, err
	}

	out := make([]core.Record, 0)
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseError(err)
		}
		line, _ := r.FieldPos(0)
		rec, err := records.DecodeRow(line, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &core.CorruptDataError{Row: pe.Line, Err: pe}
	}
	return err
}

func encode(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
