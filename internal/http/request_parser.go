// Package http serves the ledger as a JSON API.
//
// This file implements utilities for parsing and validating request data:
// record bodies (JSON or form encoded) and date range query parameters.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// maxBodyBytes bounds a single record submission.
const maxBodyBytes = 16 << 10

var errBadRequest = errors.New("bad request")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if p.err != nil {
		p.err = fmt.Errorf("%w: read body: %v", errBadRequest, p.err)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.err = fmt.Errorf("%w: empty body", errBadRequest)
		return p.err
	}

	if trimmed[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.jsonData = nil
			p.err = fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
			return p.err
		}
		return nil
	}

	form, err := url.ParseQuery(string(trimmed))
	if err != nil {
		p.err = fmt.Errorf("%w: invalid form: %v", errBadRequest, err)
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	return sanitizeInput(p.Raw(key))
}

// Raw returns a value exactly as sent.
func (p *RequestBodyParser) Raw(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return stringValue(val)
		}
		return ""
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

// stringValue renders a decoded JSON value. Numbers keep their exact text.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseRecord builds a record from a parsed body. The date defaults to
// today when omitted; category must be the stored word, Income or Expense.
// The description is kept verbatim, as the CLI and the stores keep it.
func ParseRecord(p *RequestBodyParser, now func() time.Time) (core.Record, error) {
	if err := p.Parse(); err != nil {
		return core.Record{}, err
	}

	date := core.DateOf(now())
	if s := p.Get("date"); s != "" {
		d, err := core.ParseDate(s)
		if err != nil {
			return core.Record{}, err
		}
		date = d
	}

	raw := p.Get("amount")
	if raw == "" {
		return core.Record{}, fmt.Errorf("%w: amount is required", core.ErrInvalidAmount)
	}
	amount, err := core.ParseAmount(raw)
	if err != nil {
		return core.Record{}, err
	}

	category, err := core.ParseCategory(p.Get("category"))
	if err != nil {
		return core.Record{}, err
	}

	r := core.Record{
		Date:        date,
		Amount:      amount,
		Category:    category,
		Description: p.Raw("description"),
	}
	return r, r.Validate()
}

// ParseRangeQuery reads the inclusive start/end bounds from the query
// string. Both are required.
func ParseRangeQuery(q url.Values) (ledger.Range, error) {
	start := strings.TrimSpace(q.Get("start"))
	end := strings.TrimSpace(q.Get("end"))
	if start == "" || end == "" {
		return ledger.Range{}, fmt.Errorf("%w: start and end are required", errBadRequest)
	}
	return ledger.ParseRange(start, end)
}
