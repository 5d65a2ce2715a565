package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/ingest"
	"github.com/chatter-agent/pkg/logger"
)

const sheetName = "Ingestion Runs"

// runColumns defines the column headers for the run-log sheet
var runColumns = []string{
	"Started At",
	"Finished At",
	"Tickers",
	"Fetched",
	"Inserted",
	"Skipped",
	"Dropped",
	"Errors",
}

// SheetsTracker appends one row per ingestion cycle to a Google Sheet.
// Purely observational: a tracker failure is logged and otherwise
// ignored, ingestion does not depend on it.
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	log           *logger.Logger
}

// New creates a Google Sheets run tracker
func New(ctx context.Context, cfg config.TrackerConfig, log *logger.Logger) (*SheetsTracker, error) {
	var srv *sheets.Service
	var err error

	// Service account JSON first, for env var injection
	if cfg.ServiceAccountJSON != "" {
		srv, err = sheets.NewService(ctx, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	} else if cfg.CredentialsFile != "" {
		srv, err = sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		return nil, fmt.Errorf("no Google credentials provided: set credentials_file or service_account_json")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsTracker{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		log:           log.WithComponent("sheets-tracker"),
	}, nil
}

// Initialize ensures the run-log sheet and its headers exist
func (t *SheetsTracker) Initialize(ctx context.Context) error {
	if err := t.ensureSheetExists(ctx); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A1:H1", sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(resp.Values) == 0 {
		t.log.Info().Msg("Initializing run-log sheet with headers")
		return t.writeHeaders(ctx)
	}
	return nil
}

// RecordCycle appends a summary row for one completed cycle
func (t *SheetsTracker) RecordCycle(ctx context.Context, result *ingest.AggregateResult) error {
	if result == nil {
		return nil
	}

	tickers := make([]string, 0, len(result.Tickers))
	for _, tr := range result.Tickers {
		tickers = append(tickers, tr.Ticker)
	}

	row := []interface{}{
		result.StartedAt.Format(time.RFC3339),
		result.FinishedAt.Format(time.RFC3339),
		strings.Join(tickers, ","),
		result.Counts.Fetched,
		result.Counts.Inserted,
		result.Counts.Skipped,
		result.Counts.Dropped,
		result.Counts.Errors,
	}

	appendRange := fmt.Sprintf("%s!A:H", sheetName)
	_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, appendRange, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append run row: %w", err)
	}

	t.log.Debug().Int("tickers", len(tickers)).Msg("Recorded cycle in run-log sheet")
	return nil
}

func (t *SheetsTracker) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			return nil
		}
	}

	t.log.Info().Str("sheet", sheetName).Msg("Creating run-log sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: sheetName,
					},
				},
			},
		},
	}
	_, err = t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

func (t *SheetsTracker) writeHeaders(ctx context.Context) error {
	header := make([]interface{}, len(runColumns))
	for i, col := range runColumns {
		header[i] = col
	}

	writeRange := fmt.Sprintf("%s!A1", sheetName)
	_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, writeRange, &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	return nil
}
