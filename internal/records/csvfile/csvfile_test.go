package csvfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func mustRecord(t *testing.T, date, amount string, cat core.Category, desc string) core.Record {
	t.Helper()
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return core.Record{Date: d, Amount: decimal.RequireFromString(amount), Category: cat, Description: desc}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestInitializeCreatesHeaderOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "finance_data.csv")
	s := New(path)

	created, err := s.Initialize(ctx)
	if err != nil || !created {
		t.Fatalf("expected file creation, created=%v err=%v", created, err)
	}
	if got := readFile(t, path); got != "Date,Amount,Category,Description\n" {
		t.Fatalf("unexpected header: %q", got)
	}

	if err := s.Append(ctx, mustRecord(t, "01-01-2024", "100", core.Income, "Salary")); err != nil {
		t.Fatalf("append: %v", err)
	}
	before := readFile(t, path)

	created, err = s.Initialize(ctx)
	if err != nil || created {
		t.Fatalf("second initialize should be a no-op, created=%v err=%v", created, err)
	}
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("ensure initialized: %v", err)
	}
	if after := readFile(t, path); after != before {
		t.Fatalf("initialize rewrote the store:\n%s\nvs\n%s", before, after)
	}
}

func TestAppendLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "ledger.csv"))
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	rows := []core.Record{
		mustRecord(t, "01-01-2024", "100", core.Income, "Salary"),
		mustRecord(t, "02-01-2024", "40.75", core.Expense, `Food, "fancy" place`),
		mustRecord(t, "05-01-2024", "20", core.Expense, ""),
	}
	for _, r := range rows {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(got))
	}
	for i := range rows {
		if got[i].Date != rows[i].Date || !got[i].Amount.Equal(rows[i].Amount) ||
			got[i].Category != rows[i].Category || got[i].Description != rows[i].Description {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, got[i], rows[i])
		}
	}

	last := mustRecord(t, "06-01-2024", "0.01", core.Income, "Interest")
	if err := s.Append(ctx, last); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ = s.LoadAll(ctx)
	tail := got[len(got)-1]
	if tail.Date != last.Date || !tail.Amount.Equal(last.Amount) || tail.Category != last.Category || tail.Description != last.Description {
		t.Fatalf("last element mismatch: %+v", tail)
	}
}

func TestAppendWritesCanonicalRow(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	s := New(path)
	_ = s.EnsureInitialized(ctx)
	if err := s.Append(ctx, mustRecord(t, "05-03-2024", "12.5", core.Expense, "Bus")); err != nil {
		t.Fatalf("append: %v", err)
	}
	want := "Date,Amount,Category,Description\n05-03-2024,12.5,Expense,Bus\n"
	if got := readFile(t, path); got != want {
		t.Fatalf("unexpected file:\n%q\nwant\n%q", got, want)
	}
}

func TestAppendRepairsMissingTrailingNewline(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	if err := os.WriteFile(path, []byte("Date,Amount,Category,Description\n01-01-2024,1,Income,x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(path)
	if err := s.Append(ctx, mustRecord(t, "02-01-2024", "2", core.Expense, "y")); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.LoadAll(ctx)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d (err=%v)", len(got), err)
	}
}

func TestAppendRejectsInvalidRecord(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "ledger.csv"))
	_ = s.EnsureInitialized(ctx)
	bad := core.Record{Date: core.NewDate(2024, 1, 1), Amount: decimal.Zero, Category: core.Income}
	if err := s.Append(ctx, bad); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAppendWithoutStoreIsStoreError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.csv"))
	err := s.Append(context.Background(), mustRecord(t, "01-01-2024", "1", core.Income, ""))
	if !errors.Is(err, core.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestAppendUnwritableIsStoreError(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced")
	}
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	s := New(path)
	_ = s.EnsureInitialized(ctx)
	if err := os.Chmod(path, 0o444); err != nil {
		t.Fatal(err)
	}
	err := s.Append(ctx, mustRecord(t, "01-01-2024", "1", core.Income, ""))
	var se *core.StoreError
	if !errors.As(err, &se) || se.Op != "append" {
		t.Fatalf("expected append StoreError, got %v", err)
	}
}

func TestLoadAllMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "none.csv")).LoadAll(context.Background())
	if !errors.Is(err, core.ErrStore) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected StoreError wrapping ErrNotExist, got %v", err)
	}
}

func TestLoadAllAbortsOnCorruptRow(t *testing.T) {
	cases := []struct {
		name    string
		content string
		row     int
	}{
		{"bad amount", "Date,Amount,Category,Description\n01-01-2024,100,Income,a\n02-01-2024,abc,Expense,b\n03-01-2024,5,Expense,c\n", 3},
		{"iso date", "Date,Amount,Category,Description\n2024-01-01,100,Income,a\n", 2},
		{"short row", "Date,Amount,Category,Description\n01-01-2024,100,Income\n", 2},
		{"letter category", "Date,Amount,Category,Description\n01-01-2024,100,I,a\n", 2},
		{"bad header", "Day,Amount,Category,Description\n", 1},
		{"empty file", "", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ledger.csv")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := New(path).LoadAll(context.Background())
			if got != nil {
				t.Fatalf("expected no partial result, got %v", got)
			}
			var cde *core.CorruptDataError
			if !errors.As(err, &cde) {
				t.Fatalf("expected CorruptDataError, got %v", err)
			}
			if cde.Row != tc.row {
				t.Fatalf("expected row %d, got %d (%v)", tc.row, cde.Row, err)
			}
		})
	}
}

func TestDecodeToleratesBOMAndQuotedNewlines(t *testing.T) {
	src := "\ufeffDate,Amount,Category,Description\n01-01-2024,3,Expense,\"two\nlines\"\n02-01-2024,x,Expense,bad\n"
	_, err := Decode(strings.NewReader(src))
	var cde *core.CorruptDataError
	if !errors.As(err, &cde) || cde.Row != 4 {
		t.Fatalf("expected corrupt row 4, got %v", err)
	}

	src = "\ufeffDate,Amount,Category,Description\n01-01-2024,3,Expense,\"two\nlines\"\n"
	got, err := Decode(strings.NewReader(src))
	if err != nil || len(got) != 1 || got[0].Description != "two\nlines" {
		t.Fatalf("unexpected decode: %v %v", got, err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(filepath.Join(t.TempDir(), "ledger.csv"))
	if err := s.EnsureInitialized(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := s.LoadAll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
