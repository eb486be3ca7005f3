package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fondo/internal/core"
	"fondo/internal/export"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	summarySheet  string
}

// Ensure interface conformance
var _ export.SummaryWriter = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_SHEET_NAME (default "Summary"); credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Summary"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		summarySheet:  sheetName,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// WriteSummary clears the summary sheet and writes the full matrix:
// one header row, a credit and a debit row per person, and a trailing
// totals row. Amounts are written as decimal text so the spreadsheet
// shows exactly what the ledger computed.
func (c *Client) WriteSummary(ctx context.Context, s core.Summary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	values := summaryGrid(s)

	clearRange := fmt.Sprintf("%s!A:ZZ", c.summarySheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", c.summarySheet, err)
	}

	writeRange := fmt.Sprintf("%s!A1", c.summarySheet)
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update sheet %s: %w", c.summarySheet, err)
	}

	slog.InfoContext(ctx, "Summary exported to Google Sheets",
		"spreadsheet_id", c.spreadsheetID,
		"sheet", c.summarySheet,
		"rows", len(values))

	return nil
}

// summaryGrid flattens the matrix into spreadsheet rows.
func summaryGrid(s core.Summary) [][]any {
	header := []any{""}
	for _, col := range s.Columns {
		header = append(header, col.Project+" / "+col.SubProject)
	}
	header = append(header, "credit total", "net total")

	rows := [][]any{header}
	for p, person := range s.Persons {
		creditRow := []any{person + " credit"}
		debitRow := []any{person + " debit"}
		for c := range s.Columns {
			creditRow = append(creditRow, s.Credits[p][c].String())
			debitRow = append(debitRow, s.Debits[p][c].String())
		}
		creditRow = append(creditRow, s.PersonCredit[p].String(), s.PersonNet[p].String())
		debitRow = append(debitRow, "", "")
		rows = append(rows, creditRow, debitRow)
	}

	totals := []any{"column total"}
	for _, t := range s.ColumnTotals {
		totals = append(totals, t.String())
	}
	totals = append(totals, s.GrandTotal.String(), "")
	rows = append(rows, totals)

	return rows
}
