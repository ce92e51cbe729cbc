package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"fintrack/internal/core"
	"fintrack/internal/metrics"
	"fintrack/internal/records/csvfile"
	"fintrack/internal/records/memory"
	"fintrack/internal/report"
	"fintrack/internal/services"
)

func rec(date, amount string, cat core.Category, desc string) core.Record {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Record{Date: d, Amount: decimal.RequireFromString(amount), Category: cat, Description: desc}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewSeeded(
		rec("01-01-2024", "100", core.Income, "Salary"),
		rec("02-01-2024", "40", core.Expense, "Food"),
		rec("05-01-2024", "20", core.Expense, "Bus"),
	)
	svc := services.NewLedgerService(store, services.WithQueryCache(8, time.Minute))
	fixed := func() time.Time { return time.Date(2024, 2, 10, 15, 4, 0, 0, time.UTC) }
	srv := NewServer(":0", svc, append([]Option{WithClock(fixed)}, opts...)...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv, store := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	store.FailLoad(errors.New("disk gone"))
	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "disk gone") {
		t.Fatalf("internal error leaked: %s", rr.Body.String())
	}
}

func TestListRecords(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/records?start=01-01-2024&end=02-01-2024", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type %q", ct)
	}
	if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("middleware headers missing: %v", rr.Header())
	}

	got := decode[RecordsResponse](t, rr)
	if got.Count != 2 || len(got.Records) != 2 {
		t.Fatalf("expected 2 records, got %+v", got)
	}
	if got.Records[0].Description != "Salary" || got.Records[1].Amount != "40" {
		t.Fatalf("unexpected records: %+v", got.Records)
	}
	want := TotalsDTO{Income: "100.00", Expense: "40.00", Net: "60.00"}
	if got.Totals != want {
		t.Fatalf("totals = %+v, want %+v", got.Totals, want)
	}
	if got.Range.Start != "01-01-2024" || got.Range.End != "02-01-2024" || got.Message != "" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestListRecordsEmptyRange(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/records?start=10-01-2024&end=20-01-2024", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	got := decode[RecordsResponse](t, rr)
	if got.Count != 0 || got.Records == nil || got.Message != report.NoEntries {
		t.Fatalf("unexpected empty response: %+v", got)
	}
	if got.Totals.Net != "0.00" {
		t.Fatalf("net = %q", got.Totals.Net)
	}
}

func TestQueryErrors(t *testing.T) {
	srv, store := newTestServer(t)
	cases := []struct {
		name   string
		target string
		status int
	}{
		{"missing bounds", "/api/records", http.StatusBadRequest},
		{"iso date", "/api/records?start=2024-01-01&end=02-01-2024", http.StatusBadRequest},
		{"reversed", "/api/records?start=05-01-2024&end=01-01-2024", http.StatusBadRequest},
		{"series reversed", "/api/series?start=05-01-2024&end=01-01-2024", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, tc.target, "")
			if rr.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.status, rr.Body.String())
			}
			body := decode[ErrorBody](t, rr)
			if body.Status != tc.status || body.Error == "" || body.RequestID == "" {
				t.Fatalf("unexpected error body: %+v", body)
			}
		})
	}

	store.FailLoad(&core.CorruptDataError{Row: 3, Field: "Amount", Value: "abc", Err: core.ErrInvalidAmount})
	rr := do(t, srv, http.MethodGet, "/api/records?start=01-03-2024&end=02-03-2024", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("store failure status=%d", rr.Code)
	}
}

type fixedCircuit gobreaker.State

func (c fixedCircuit) CircuitState() gobreaker.State { return gobreaker.State(c) }

func TestReadyReportsPausedEvents(t *testing.T) {
	for _, tc := range []struct {
		state gobreaker.State
		body  string
	}{
		{gobreaker.StateClosed, "ready"},
		{gobreaker.StateHalfOpen, "ready"},
		{gobreaker.StateOpen, "ready, record events paused"},
	} {
		srv, _ := newTestServer(t, WithEventCircuit(fixedCircuit(tc.state)))
		rr := do(t, srv, http.MethodGet, "/readyz", "")
		if rr.Code != http.StatusOK || rr.Body.String() != tc.body {
			t.Errorf("%s: status=%d body=%q", tc.state, rr.Code, rr.Body.String())
		}
	}
}

func TestCorruptLedgerIsServerError(t *testing.T) {
	rows := map[string]string{
		"bad date":     "2024-01-01,5,Income,x\n",
		"bad amount":   "01-01-2024,abc,Income,x\n",
		"bad category": "01-01-2024,5,Gift,x\n",
	}
	for name, row := range rows {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "private", "ledger.csv")
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, []byte("Date,Amount,Category,Description\n"+row), 0o644); err != nil {
				t.Fatal(err)
			}
			srv := NewServer(":0", services.NewLedgerService(csvfile.New(path)))
			t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

			for _, target := range []string{"/api/records", "/api/series"} {
				rr := do(t, srv, http.MethodGet, target+"?start=01-01-2024&end=31-01-2024", "")
				if rr.Code != http.StatusInternalServerError {
					t.Fatalf("%s status=%d body=%s", target, rr.Code, rr.Body.String())
				}
				if strings.Contains(rr.Body.String(), "private") {
					t.Fatalf("%s leaked the ledger path: %s", target, rr.Body.String())
				}
				if body := decode[ErrorBody](t, rr); body.Error != "ledger data is corrupt" {
					t.Fatalf("%s error = %q", target, body.Error)
				}
			}
		})
	}
}

func TestSeries(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/series?start=01-01-2024&end=31-01-2024", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	got := decode[report.SeriesChart](t, rr)
	wantIndex := []string{"01-01-2024", "02-01-2024", "05-01-2024"}
	if strings.Join(got.Index, ",") != strings.Join(wantIndex, ",") {
		t.Fatalf("index = %v", got.Index)
	}
	expense := []string{"0.00", "40.00", "20.00"}
	for i, p := range got.Expense.Data {
		if p.Date != wantIndex[i] || p.Value != expense[i] {
			t.Fatalf("expense point %d = %+v", i, p)
		}
	}
	if len(got.Income.Data) != len(wantIndex) || got.Income.Data[0].Value != "100.00" {
		t.Fatalf("income = %+v", got.Income.Data)
	}
}

func TestCreateRecord(t *testing.T) {
	srv, store := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/records",
		`{"date":"06-01-2024","amount":12.50,"category":"Expense","description":"Cinema"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[RecordDTO](t, rr)
	if got.Date != "06-01-2024" || got.Amount != "12.5" || got.Category != "Expense" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if store.Len() != 4 {
		t.Fatalf("store has %d records", store.Len())
	}

	// the cached range must see the new record
	list := decode[RecordsResponse](t, do(t, srv, http.MethodGet, "/api/records?start=01-01-2024&end=31-01-2024", ""))
	if list.Count != 4 || list.Totals.Expense != "72.50" {
		t.Fatalf("stale query after create: %+v", list)
	}
}

func TestCreateRecordDefaultsDateToToday(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/records", `{"amount":"5","category":"Income"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[RecordDTO](t, rr); got.Date != "10-02-2024" || got.Description != "" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestCreateRecordValidation(t *testing.T) {
	srv, store := newTestServer(t)
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"broken json", `{"amount":`, http.StatusBadRequest},
		{"bad date", `{"date":"2024-01-06","amount":"1","category":"Income"}`, http.StatusBadRequest},
		{"zero amount", `{"amount":"0","category":"Income"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"amount":-3,"category":"Income"}`, http.StatusUnprocessableEntity},
		{"missing amount", `{"category":"Income"}`, http.StatusUnprocessableEntity},
		{"letter category", `{"amount":"1","category":"I"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.status, rr.Body.String())
			}
		})
	}
	if store.Len() != 3 {
		t.Fatalf("rejected requests must not append, store has %d", store.Len())
	}
}

func TestCreateRecordStoreFailure(t *testing.T) {
	srv, store := newTestServer(t)
	store.FailAppend(errors.New("read-only file system"))

	rr := do(t, srv, http.MethodPost, "/api/records", `{"amount":"1","category":"Income"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if body := decode[ErrorBody](t, rr); body.Error != "ledger store unavailable" {
		t.Fatalf("unexpected error: %+v", body)
	}
}

func TestMethodAndRouteErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodDelete, "/api/records", "")
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != "GET, POST" {
		t.Fatalf("DELETE status=%d allow=%q", rr.Code, rr.Header().Get("Allow"))
	}
	rr = do(t, srv, http.MethodPost, "/api/series", `{}`)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST series status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodGet, "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown route status=%d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, WithRateLimit(2))

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, srv, http.MethodGet, "/api/records?start=01-01-2024&end=02-01-2024", "").Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third request to be limited, got %v", codes)
	}
	if rr := do(t, srv, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("probes must not be limited, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPrometheus("fintrack")
	if err := m.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	srv, _ := newTestServer(t, WithMetrics(m, reg))

	do(t, srv, http.MethodGet, "/api/records?start=01-01-2024&end=02-01-2024", "")
	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "fintrack_http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestRouteLabel(t *testing.T) {
	for in, want := range map[string]string{
		"/api/records": "/api/records",
		"/api/x/y":     "/api/other",
		"/wp-admin":    "other",
		"/metrics":     "/metrics",
	} {
		if got := routeLabel(in); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
