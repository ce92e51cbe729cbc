package http

import (
	"context"
	"net/http"

	"github.com/sony/gobreaker"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/report"
)

// RecordDTO is the JSON form of a record. Amounts are decimal strings so no
// precision is lost in transit.
type RecordDTO struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// TotalsDTO carries the three totals with two decimals.
type TotalsDTO struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Net     string `json:"net"`
}

// RangeDTO echoes the inclusive range that was queried.
type RangeDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RecordsResponse is the body of GET /api/records.
type RecordsResponse struct {
	Range   RangeDTO    `json:"range"`
	Count   int         `json:"count"`
	Records []RecordDTO `json:"records"`
	Totals  TotalsDTO   `json:"totals"`
	Message string      `json:"message,omitempty"`
}

func toRecordDTO(r core.Record) RecordDTO {
	return RecordDTO{
		Date:        r.Date.String(),
		Amount:      r.Amount.String(),
		Category:    r.Category.String(),
		Description: r.Description,
	}
}

func toTotalsDTO(s ledger.Summary) TotalsDTO {
	return TotalsDTO{
		Income:  s.Income.StringFixed(2),
		Expense: s.Expense.StringFixed(2),
		Net:     s.Net.StringFixed(2),
	}
}

func newRecordsResponse(res ledger.Result) RecordsResponse {
	out := RecordsResponse{
		Range:   RangeDTO{Start: res.Range.Start.String(), End: res.Range.End.String()},
		Count:   len(res.Records),
		Records: make([]RecordDTO, 0, len(res.Records)),
		Totals:  toTotalsDTO(res.Totals),
	}
	for _, r := range res.Records {
		out.Records = append(out.Records, toRecordDTO(r))
	}
	if res.Empty() {
		out.Message = report.NoEntries
	}
	return out
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handleListRecords(w, r)
	case http.MethodPost:
		s.handleCreateRecord(w, r)
	default:
		MethodNotAllowedError("GET, POST", trace.RequestID(r)).Write(w)
	}
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	res, ok := s.query(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Payload(newRecordsResponse(res)).Write(w)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		MethodNotAllowedError("GET", trace.RequestID(r)).Write(w)
		return
	}
	res, ok := s.query(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Payload(report.NewSeriesChart(res)).Write(w)
}

// query runs the range query named by the request and writes the error
// response itself when it fails.
func (s *Server) query(w http.ResponseWriter, r *http.Request) (ledger.Result, bool) {
	rng, err := ParseRangeQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return ledger.Result{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.svc.QueryRange(ctx, rng)
	if err != nil {
		s.writeError(w, r, err)
		return ledger.Result{}, false
	}
	return res, true
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := ParseRecord(NewRequestBodyParser(w, r), s.now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.svc.AddRecord(ctx, rec); err != nil {
		s.writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(ctx, "Record created via API",
		log.NewFields().WithRecord(rec).WithOperation(log.OpAppend).ToSlice()...)

	NewJSONResponse().Status(http.StatusCreated).Payload(toRecordDTO(rec)).Write(w)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusNotFound, "not found", trace.RequestID(r)).Write(w)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithError(err).ToSlice()
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", fields...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields...)
	}
	ErrorResponse(status, publicMessage(err, status), trace.RequestID(r)).Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready only when the store can be read end to end.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if _, err := s.svc.Records(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, publicMessage(err, http.StatusInternalServerError), trace.RequestID(r)).Write(w)
		return
	}
	// An open breaker only pauses events; adds still succeed.
	body := "ready"
	if s.events != nil && s.events.CircuitState() == gobreaker.StateOpen {
		body = "ready, record events paused"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
