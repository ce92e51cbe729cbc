package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/entry"
	"fintrack/internal/report"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATA_BACKEND", "csv")
	t.Setenv("CURRENCY_SYMBOL", "$")
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitCreatesLedgerOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finance_data.csv")

	out, err := run(t, "", "init", "--file", path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if strings.TrimSpace(out) != "Created new CSV file: "+path {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = run(t, "", "init", "--file", path)
	if err != nil || out != "" {
		t.Fatalf("second init should be silent, out=%q err=%v", out, err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "Date,Amount,Category,Description\n" {
		t.Fatalf("unexpected file %q", b)
	}
}

func TestAddAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")

	out, err := run(t, "", "add", "-f", path, "--date", "01-01-2024", "--amount", "100", "--category", "I", "--description", "Salary")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Created new CSV file") || !strings.Contains(out, "Entry added successfully") {
		t.Fatalf("unexpected add output %q", out)
	}

	// interactive flow on the root command
	out, err = run(t, "02-01-2024\nabc\n40\nx\ne\nFood\n", "-f", path)
	if err != nil {
		t.Fatalf("interactive add: %v", err)
	}
	if !strings.Contains(out, "Invalid amount.") || !strings.Contains(out, "Invalid category.") {
		t.Fatalf("expected re-prompts, got %q", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "Entry added successfully") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := run(t, "", "add", "-f", path, "--date", "05-01-2024", "--amount", "20", "--category", "expense", "--description", "Bus"); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err = run(t, "", "query", "-f", path, "--start", "01-01-2024", "--end", "02-01-2024")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, want := range []string{"Salary", "Food", "Total Income: $100.00", "Total Expense: $40.00", "Net Income: $60.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("query output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Bus") {
		t.Errorf("record outside the range listed:\n%s", out)
	}
}

func TestQueryPromptsForMissingDates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	if _, err := run(t, "", "add", "-f", path, "--date", "03-01-2024", "--amount", "7", "--category", "E"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "2024-01-01\n01-01-2024\n31-01-2024\n", "query", "-f", path, "--plot")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out, entry.PromptStart) || !strings.Contains(out, entry.PromptEnd) {
		t.Fatalf("expected prompts, got %q", out)
	}
	if !strings.Contains(out, "Invalid date format. Please use DD-MM-YYYY.") {
		t.Fatalf("expected a retry on the ISO date, got %q", out)
	}
	if !strings.Contains(out, report.ChartTitle) {
		t.Fatalf("--plot should draw the chart, got %q", out)
	}

	out, err = run(t, "10-01-2024\n", "query", "-f", path, "--start", "01-01-2024")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.Count(out, "Enter the") != 1 {
		t.Fatalf("only the end date should be asked for: %q", out)
	}
}

func TestQueryEmptyRangeAndPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	if _, err := run(t, "", "init", "-f", path); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "query", "-f", path, "--start", "01-01-2024", "--end", "31-01-2024")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.TrimSpace(out) != report.NoEntries {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = run(t, "", "plot", "-f", path, "--start", "01-01-2024", "--end", "31-01-2024")
	if err != nil || strings.TrimSpace(out) != report.NoEntries {
		t.Fatalf("plot: out=%q err=%v", out, err)
	}
}

func TestCommandErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")

	cases := []struct {
		name  string
		stdin string
		args  []string
		want  error
	}{
		{"reversed range", "", []string{"query", "-f", path, "--start", "05-01-2024", "--end", "01-01-2024"}, core.ErrInvalidRange},
		{"iso start flag", "", []string{"query", "-f", path, "--start", "2024-01-01", "--end", "01-01-2024"}, core.ErrDateFormat},
		{"missing store", "", []string{"query", "-f", path, "--start", "01-01-2024", "--end", "02-01-2024"}, core.ErrStore},
		{"bad amount flag", "", []string{"add", "-f", path, "--amount=-5", "--category", "I"}, core.ErrInvalidAmount},
		{"bad category flag", "", []string{"add", "-f", path, "--amount", "5", "--category", "X"}, core.ErrInvalidCategory},
		{"input closed", "01-01-2024\n", []string{"-f", path}, entry.ErrInputClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, tc.stdin, tc.args...)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := run(t, "", "query", "--backend", "mongo", "--start", "01-01-2024", "--end", "02-01-2024"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestParseCategoryFlag(t *testing.T) {
	for in, want := range map[string]core.Category{
		"I": core.Income, "i": core.Income, " Income ": core.Income,
		"E": core.Expense, "expense": core.Expense,
	} {
		got, err := parseCategoryFlag(in)
		if err != nil || got != want {
			t.Errorf("parseCategoryFlag(%q) = %v, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "X", "Inc", "EE"} {
		if _, err := parseCategoryFlag(in); !errors.Is(err, core.ErrInvalidCategory) {
			t.Errorf("parseCategoryFlag(%q) should fail, got %v", in, err)
		}
	}
}

func TestSheetsAuthCallback(t *testing.T) {
	codeCh := make(chan string, 1)
	h := callbackHandler("state-1", codeCh)

	get := func(query string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+query, nil))
		return rec.Code
	}

	if code := get("error=access_denied"); code != http.StatusBadRequest {
		t.Errorf("denied consent: status %d", code)
	}
	if code := get("state=other&code=abc"); code != http.StatusBadRequest {
		t.Errorf("wrong state: status %d", code)
	}
	if code := get("state=state-1"); code != http.StatusBadRequest {
		t.Errorf("missing code: status %d", code)
	}
	if code := get("state=state-1&code=abc"); code != http.StatusOK {
		t.Fatalf("valid redirect: status %d", code)
	}
	if code := get("state=state-1&code=again"); code != http.StatusConflict {
		t.Errorf("second redirect: status %d", code)
	}
	if got := <-codeCh; got != "abc" {
		t.Errorf("code = %q", got)
	}
}

func TestSheetsAuthNeedsClient(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "")
	if _, err := run(t, "", "sheets-auth"); err == nil || !strings.Contains(err.Error(), "missing OAuth client") {
		t.Fatalf("expected missing client error, got %v", err)
	}
}
