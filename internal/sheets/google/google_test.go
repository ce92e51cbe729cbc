package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"

	"fintrack/internal/core"
)

// fakeSheets serves the handful of Values endpoints the client uses,
// backed by an in-memory grid.
type fakeSheets struct {
	mu     sync.Mutex
	grid   [][]any
	denied bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.denied {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
		return
	}

	const prefix = "/v4/spreadsheets/sheet-id/values/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rng := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case r.Method == http.MethodGet:
		values := f.grid
		if strings.HasSuffix(rng, "A1:D1") && len(values) > 0 {
			values = values[:1]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": values})
	case r.Method == http.MethodPut:
		var body struct{ Values [][]any }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(f.grid) == 0 {
			f.grid = append(f.grid, body.Values[0])
		} else {
			f.grid[0] = body.Values[0]
		}
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		var body struct{ Values [][]any }
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.grid = append(f.grid, body.Values...)
		_, _ = w.Write([]byte(`{"updates":{"updatedRange":"Ledger!A2:D2"}}`))
	default:
		http.Error(w, "unexpected call", http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Options{
		SpreadsheetID: "sheet-id",
		ClientOptions: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithHTTPClient(srv.Client()),
			goption.WithoutAuthentication(),
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Options{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	ctx := context.Background()
	got, err := loadCredentials(ctx, Options{CredentialsJSON: ` {"type":"service_account"} `})
	if err != nil || string(got) != `{"type":"service_account"}` {
		t.Fatalf("inline credentials: %q %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"k":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = loadCredentials(ctx, Options{CredentialsFile: path})
	if err != nil || string(got) != `{"k":1}` {
		t.Fatalf("file credentials: %q %v", got, err)
	}

	if _, err := loadCredentials(ctx, Options{CredentialsFile: filepath.Join(t.TempDir(), "none.json")}); err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}

func TestDefaultSheetName(t *testing.T) {
	c := newTestClient(t, &fakeSheets{})
	if c.Location() != "sheets://sheet-id/Ledger" {
		t.Fatalf("unexpected location %q", c.Location())
	}
}

func TestSheetsRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	if err := c.EnsureInitialized(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := c.EnsureInitialized(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if len(fake.grid) != 1 {
		t.Fatalf("expected only the header row, got %v", fake.grid)
	}

	rec := core.Record{Date: core.NewDate(2024, 1, 2), Amount: decimal.RequireFromString("40.5"), Category: core.Expense}
	if err := c.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	// The API drops trailing empty cells, so an empty description comes back short.
	fake.grid[1] = fake.grid[1][:3]
	fake.grid = append(fake.grid, []any{})

	got, err := c.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Date != rec.Date || !got[0].Amount.Equal(rec.Amount) || got[0].Description != "" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestSheetsRejectsForeignHeader(t *testing.T) {
	fake := &fakeSheets{grid: [][]any{{"Month", "Day", "Description", "Amount"}}}
	c := newTestClient(t, fake)
	err := c.EnsureInitialized(context.Background())
	if !errors.Is(err, core.ErrCorruptData) {
		t.Fatalf("expected ErrCorruptData, got %v", err)
	}
}

func TestSheetsCorruptRow(t *testing.T) {
	fake := &fakeSheets{grid: [][]any{
		{"Date", "Amount", "Category", "Description"},
		{"01-01-2024", "10", "Income", "ok"},
		{"01-01-2024", "10", "Other", "bad"},
	}}
	_, err := newTestClient(t, fake).LoadAll(context.Background())
	var cde *core.CorruptDataError
	if !errors.As(err, &cde) || cde.Row != 3 || cde.Field != "Category" {
		t.Fatalf("expected corrupt Category at row 3, got %v", err)
	}
}

func TestSheetsAPIFailureIsStoreError(t *testing.T) {
	fake := &fakeSheets{denied: true}
	c := newTestClient(t, fake)
	ctx := context.Background()

	rec := core.Record{Date: core.NewDate(2024, 1, 2), Amount: decimal.NewFromInt(1), Category: core.Income}
	if err := c.Append(ctx, rec); !errors.Is(err, core.ErrStore) {
		t.Fatalf("append: expected ErrStore, got %v", err)
	}
	if _, err := c.LoadAll(ctx); !errors.Is(err, core.ErrStore) {
		t.Fatalf("load: expected ErrStore, got %v", err)
	}
}

func TestAppendValidatesBeforeCallingAPI(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheet: "Ledger"}
	err := c.Append(context.Background(), core.Record{Date: core.NewDate(2024, 1, 1), Category: core.Income})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
