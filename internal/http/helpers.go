package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/core"
)

// sanitizeInput removes control characters other than tab and newlines and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// statusFor maps a ledger error to its HTTP status. Malformed input is a
// 400, well formed but invalid values are a 422, and anything the server
// cannot read or write is a 500. Corrupt stored rows unwrap to the same
// parse errors as bad input, so store failures are matched first.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrCorruptData),
		errors.Is(err, core.ErrStore):
		return http.StatusInternalServerError
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrDateFormat),
		errors.Is(err, core.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrInvalidDate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides store internals such as file paths from clients.
func publicMessage(err error, status int) string {
	switch {
	case status < 500:
		return err.Error()
	case errors.Is(err, core.ErrCorruptData):
		return "ledger data is corrupt"
	case errors.Is(err, core.ErrStore):
		return "ledger store unavailable"
	default:
		return http.StatusText(status)
	}
}
