package record

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"ingest/internal/logger"
	"ingest/pkg/models"
)

// sheetHeaders are the columns of the batches worksheet, A to D.
var sheetHeaders = []interface{}{"ID", "Batch", "Created", "Addresses"}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// SheetsStore appends one row per batch to a Google Sheets worksheet.
type SheetsStore struct {
	sheetsService *sheets.Service
	spreadsheetID string
	worksheet     string
	log           zerolog.Logger
}

// OpenSheets creates a Google Sheets client for sheetURL and makes sure the
// worksheet exists with a header row.
func OpenSheets(ctx context.Context, sheetURL, worksheet string) (*SheetsStore, error) {
	const op = "OpenSheets"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	s := &SheetsStore{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		log:           log,
	}
	if err := s.ensureSheetWithHeaders(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

func (s *SheetsStore) Insert(ctx context.Context, summary models.BatchSummary) (*models.BatchSummary, error) {
	stored, err := prepare(summary, time.Now())
	if err != nil {
		return nil, err
	}
	stored.ID = uuid.NewString()

	row, err := summaryToRow(stored)
	if err != nil {
		return nil, insertError("sheets", err)
	}

	// A single append call is all-or-nothing on the Sheets side.
	_, err = s.sheetsService.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.worksheet+"!A:D",
		&sheets.ValueRange{Values: [][]interface{}{row}},
	).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		s.log.Error().Err(err).Str("batch_name", stored.BatchName).Msg("Append failed")
		return nil, insertError("sheets", err)
	}

	s.log.Info().
		Str("batch_name", stored.BatchName).
		Str("worksheet", s.worksheet).
		Msg("Batch row appended")
	return &stored, nil
}

func (s *SheetsStore) List(ctx context.Context, limit int) ([]models.BatchSummary, error) {
	const op = "List"

	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, s.worksheet+"!A:D").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read worksheet %s: %w", op, s.worksheet, err)
	}

	limit = listLimit(limit)
	var out []models.BatchSummary
	// Rows are appended in insertion order; walk backwards for newest first.
	for i := len(resp.Values) - 1; i >= 1 && len(out) < limit; i-- {
		rec, err := rowToSummary(resp.Values[i])
		if err != nil {
			s.log.Warn().Err(err).Int("row", i+1).Msg("Skipping unreadable batch row")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SheetsStore) Close(context.Context) error { return nil }

func summaryToRow(rec models.BatchSummary) ([]interface{}, error) {
	addrs, err := json.Marshal(rec.Addresses)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		rec.ID,                                 // A: ID
		rec.BatchName,                          // B: Batch
		rec.CreatedAt.Format(time.RFC3339Nano), // C: Created
		string(addrs),                          // D: Addresses
	}, nil
}

func rowToSummary(row []interface{}) (models.BatchSummary, error) {
	var rec models.BatchSummary
	if len(row) < 4 {
		return rec, fmt.Errorf("expected 4 columns, got %d", len(row))
	}
	cells := make([]string, 4)
	for i := range cells {
		cells[i] = fmt.Sprint(row[i])
	}

	rec.ID, rec.BatchName = cells[0], cells[1]
	created, err := time.Parse(time.RFC3339Nano, cells[2])
	if err != nil {
		return rec, fmt.Errorf("created: %w", err)
	}
	rec.CreatedAt = created
	if err := json.Unmarshal([]byte(cells[3]), &rec.Addresses); err != nil {
		return rec, fmt.Errorf("addresses: %w", err)
	}
	return rec, nil
}

// ensureSheetWithHeaders ensures the worksheet exists and has the header row
func (s *SheetsStore) ensureSheetWithHeaders(ctx context.Context) error {
	const op = "ensureSheetWithHeaders"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var sheetExists bool
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == s.worksheet {
			sheetExists = true
			break
		}
	}

	if !sheetExists {
		s.log.Info().Str("sheet", s.worksheet).Msg("Creating new sheet")

		batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: s.worksheet}}},
			},
		}
		if _, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, batchUpdateReq).Context(ctx).Do(); err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
	}

	headerRange := s.worksheet + "!A1:D1"
	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}

	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		s.log.Info().Str("sheet", s.worksheet).Msg("Adding headers to sheet")

		_, err = s.sheetsService.Spreadsheets.Values.Update(
			s.spreadsheetID,
			headerRange,
			&sheets.ValueRange{Values: [][]interface{}{sheetHeaders}},
		).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to add headers: %w", op, err)
		}
	}

	return nil
}
