// Package google stores ledger records in a Google Sheets tab laid out like
// the CSV file: a header row followed by one row per record.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/records"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Ledger"

// Options configures a Client. Exactly one credential source is used: an
// OAuth token when OAuth.TokenFile is set, otherwise the service account from
// CredentialsJSON, CredentialsFile or GOOGLE_APPLICATION_CREDENTIALS.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	OAuth           OAuthOptions
	// ClientOptions replace credential handling entirely when set.
	ClientOptions []goption.ClientOption
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

// Ensure interface conformance
var (
	_ records.Store   = (*Client)(nil)
	_ records.Locator = (*Client)(nil)
)

// New creates a Sheets-backed store.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheet := strings.TrimSpace(opts.SheetName)
	if sheet == "" {
		sheet = defaultSheetName
	}

	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 && opts.OAuth.enabled() {
		ts, err := opts.OAuth.tokenSource(ctx)
		if err != nil {
			return nil, err
		}
		clientOpts = []goption.ClientOption{goption.WithTokenSource(ts)}
	}
	if len(clientOpts) == 0 {
		creds, err := loadCredentials(ctx, opts)
		if err != nil {
			return nil, err
		}
		clientOpts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets store ready", "spreadsheet_id", spreadsheetID, "sheet", sheet)
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

// loadCredentials resolves the Service Account key.
func loadCredentials(ctx context.Context, opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.CredentialsJSON)
	file := strings.TrimSpace(opts.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline JSON credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Location identifies the spreadsheet tab.
func (c *Client) Location() string {
	return fmt.Sprintf("sheets://%s/%s", c.spreadsheetID, c.sheet)
}

// EnsureInitialized writes the header into an empty tab and verifies it
// otherwise. Existing rows are never touched.
func (c *Client) EnsureInitialized(ctx context.Context) error {
	if c.svc == nil {
		return &core.StoreError{Op: "initialize", Location: c.Location(), Err: errors.New("sheets service not initialized")}
	}
	rng := c.rangeOf("A1:D1")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return &core.StoreError{Op: "initialize", Location: c.Location(), Err: fmt.Errorf("read %s: %w", rng, err)}
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return records.CheckHeader(toStrings(resp.Values[0]))
	}

	vr := &gsheet.ValueRange{Values: [][]any{toCells(records.Header)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return &core.StoreError{Op: "initialize", Location: c.Location(), Err: fmt.Errorf("write header: %w", err)}
	}
	slog.InfoContext(ctx, "Created ledger sheet header", "sheet", c.sheet)
	return nil
}

// Append implements records.Store. Cells are written RAW so Sheets does not
// reinterpret dates or amounts.
func (c *Client) Append(ctx context.Context, r core.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return &core.StoreError{Op: "append", Location: c.Location(), Err: errors.New("sheets service not initialized")}
	}

	vr := &gsheet.ValueRange{Values: [][]any{toCells(records.EncodeRow(r))}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.rangeOf("A:D"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return &core.StoreError{Op: "append", Location: c.Location(), Err: err}
	}

	ref := ""
	if resp != nil && resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	slog.DebugContext(ctx, "Record appended to sheet", "sheet", c.sheet, "ref", ref)
	return nil
}

// LoadAll implements records.Store. Blank rows are skipped; trailing empty
// cells, which the API omits, are restored before decoding.
func (c *Client) LoadAll(ctx context.Context) ([]core.Record, error) {
	if c.svc == nil {
		return nil, &core.StoreError{Op: "load", Location: c.Location(), Err: errors.New("sheets service not initialized")}
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rangeOf("A:D")).Context(ctx).Do()
	if err != nil {
		return nil, &core.StoreError{Op: "load", Location: c.Location(), Err: err}
	}
	return decodeValues(resp.Values)
}

func decodeValues(values [][]any) ([]core.Record, error) {
	if len(values) == 0 {
		return nil, &core.CorruptDataError{Row: 1, Err: errors.New("missing header")}
	}
	if err := records.CheckHeader(toStrings(values[0])); err != nil {
		return nil, err
	}

	out := make([]core.Record, 0, len(values)-1)
	for i, row := range values[1:] {
		if len(row) == 0 {
			continue
		}
		fields := toStrings(row)
		for len(fields) < len(records.Header) {
			fields = append(fields, "")
		}
		rec, err := records.DecodeRow(i+2, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Client) rangeOf(cells string) string {
	return fmt.Sprintf("%s!%s", c.sheet, cells)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func toCells(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
