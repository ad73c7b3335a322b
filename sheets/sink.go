// Package sheets implements a report.Sink on Google Sheets.
//
// Each rebuild writes into a "<table> (staging)" tab. Commit deletes the
// live tab and renames the staging tab in a single batch update, so readers
// see either the old table or the new one.
package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/kdgroup/jobledger/report"
)

const stagingSuffix = " (staging)"

var _ report.Sink = (*Sink)(nil)

// Sink writes report tables to one spreadsheet.
type Sink struct {
	svc           *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// New creates a Sink from a spreadsheet URL and service account JSON.
func New(ctx context.Context, sheetURL string, credentials []byte, logger zerolog.Logger) (*Sink, error) {
	const op = "sheets.New"

	spreadsheetID, err := SpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	config, err := google.JWTConfigFromJSON(credentials, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}
	return NewWithService(svc, spreadsheetID, logger), nil
}

// NewWithService wraps an existing Sheets client.
func NewWithService(svc *sheets.Service, spreadsheetID string, logger zerolog.Logger) *Sink {
	return &Sink{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		log:           logger.With().Str("component", "sheets").Str("spreadsheet_id", spreadsheetID).Logger(),
	}
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// SpreadsheetID extracts the spreadsheet ID from a Google Sheets URL.
func SpreadsheetID(url string) (string, error) {
	m := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(m) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL %q", url)
	}
	return m[1], nil
}

// Begin implements report.Sink. A staging tab left by an earlier failed
// run is discarded.
func (s *Sink) Begin(ctx context.Context, table string, header []string) (report.Staging, error) {
	const op = "sheets.Begin"

	tabs, err := s.tabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	title := table + stagingSuffix
	var reqs []*sheets.Request
	if sheetID, ok := tabs[title]; ok {
		reqs = append(reqs, deleteSheet(sheetID))
	}
	reqs = append(reqs, &sheets.Request{
		AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{Title: title},
		},
	})

	resp, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create staging tab: %w", op, err)
	}

	var stagingID int64
	for _, reply := range resp.Replies {
		if reply != nil && reply.AddSheet != nil {
			stagingID = reply.AddSheet.Properties.SheetId
		}
	}

	_, err = s.svc.Spreadsheets.Values.Update(
		s.spreadsheetID,
		a1(title, "A1"),
		&sheets.ValueRange{Values: toValues([][]string{header})},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to write header: %w", op, err)
	}

	s.log.Debug().Str("table", table).Int64("sheet_id", stagingID).Msg("staging tab ready")
	return &staging{sink: s, table: table, title: title, sheetID: stagingID}, nil
}

// tabs maps tab titles to sheet IDs.
func (s *Sink) tabs(ctx context.Context) (map[string]int64, error) {
	spreadsheet, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	out := make(map[string]int64, len(spreadsheet.Sheets))
	for _, sh := range spreadsheet.Sheets {
		if sh.Properties != nil {
			out[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	return out, nil
}

type staging struct {
	sink    *Sink
	table   string
	title   string
	sheetID int64
	rows    int
	done    bool
}

func (st *staging) WriteBatch(ctx context.Context, rows [][]string) error {
	const op = "sheets.WriteBatch"
	if st.done {
		return fmt.Errorf("%s: staging for %s already closed", op, st.table)
	}

	_, err := st.sink.svc.Spreadsheets.Values.Append(
		st.sink.spreadsheetID,
		a1(st.title, "A:Z"),
		&sheets.ValueRange{Values: toValues(rows)},
	).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to append rows: %w", op, err)
	}
	st.rows += len(rows)
	return nil
}

func (st *staging) Commit(ctx context.Context) error {
	const op = "sheets.Commit"
	if st.done {
		return fmt.Errorf("%s: staging for %s already closed", op, st.table)
	}

	tabs, err := st.sink.tabs(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var reqs []*sheets.Request
	if liveID, ok := tabs[st.table]; ok {
		reqs = append(reqs, deleteSheet(liveID))
	}
	reqs = append(reqs, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         st.sheetID,
				Title:           st.table,
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "title",
		},
	})

	_, err = st.sink.svc.Spreadsheets.BatchUpdate(st.sink.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to swap %s: %w", op, st.table, err)
	}
	st.done = true

	st.sink.log.Info().Str("table", st.table).Int("rows", st.rows).Msg("sheet swapped in")
	return nil
}

func (st *staging) Abort(ctx context.Context) error {
	if st.done {
		return nil
	}
	st.done = true

	_, err := st.sink.svc.Spreadsheets.BatchUpdate(st.sink.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{deleteSheet(st.sheetID)},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets.Abort: failed to drop staging tab for %s: %w", st.table, err)
	}
	return nil
}

func deleteSheet(sheetID int64) *sheets.Request {
	return &sheets.Request{
		DeleteSheet: &sheets.DeleteSheetRequest{
			SheetId:         sheetID,
			ForceSendFields: []string{"SheetId"},
		},
	}
}

// a1 builds a quoted A1 range for a tab title.
func a1(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		vals := make([]interface{}, len(row))
		for j, cell := range row {
			vals[j] = cell
		}
		out[i] = vals
	}
	return out
}
