package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/kdgroup/jobledger/report"
)

// fakeSheets serves the subset of the Sheets v4 REST API the sink uses.
type fakeSheets struct {
	mu     sync.Mutex
	nextID int64
	ids    map[string]int64
	rows   map[string][][]string
	failOn string
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{
		nextID: 1,
		ids:    map[string]int64{"Sheet1": 0},
		rows:   map[string][][]string{"Sheet1": nil},
	}
}

func (f *fakeSheets) titleOf(id int64) string {
	for title, sid := range f.ids {
		if sid == id {
			return title
		}
	}
	return ""
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/v4/spreadsheets/sheet-1"
	rest, ok := strings.CutPrefix(r.URL.Path, prefix)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		var resp sheets.Spreadsheet
		for title, sid := range f.ids {
			resp.Sheets = append(resp.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{SheetId: sid, Title: title}})
		}
		writeJSON(w, resp)

	case rest == ":batchUpdate":
		var req sheets.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var resp sheets.BatchUpdateSpreadsheetResponse
		for _, q := range req.Requests {
			reply := &sheets.Response{}
			switch {
			case q.AddSheet != nil:
				title := q.AddSheet.Properties.Title
				f.ids[title] = f.nextID
				f.rows[title] = nil
				reply.AddSheet = &sheets.AddSheetResponse{Properties: &sheets.SheetProperties{SheetId: f.nextID, Title: title}}
				f.nextID++
			case q.DeleteSheet != nil:
				title := f.titleOf(q.DeleteSheet.SheetId)
				delete(f.ids, title)
				delete(f.rows, title)
			case q.UpdateSheetProperties != nil:
				p := q.UpdateSheetProperties.Properties
				old := f.titleOf(p.SheetId)
				f.ids[p.Title], f.rows[p.Title] = p.SheetId, f.rows[old]
				delete(f.ids, old)
				delete(f.rows, old)
			}
			resp.Replies = append(resp.Replies, reply)
		}
		writeJSON(w, resp)

	case strings.HasPrefix(rest, "/values/"):
		rng := strings.TrimPrefix(rest, "/values/")
		title := rng[:strings.LastIndex(rng, "!")]
		title = strings.ReplaceAll(strings.Trim(title, "'"), "''", "'")
		if _, ok := f.ids[title]; !ok {
			http.Error(w, "unknown tab "+title, http.StatusBadRequest)
			return
		}
		var vr sheets.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rows := make([][]string, 0, len(vr.Values))
		for _, v := range vr.Values {
			row := make([]string, len(v))
			for i, cell := range v {
				row[i] = fmt.Sprint(cell)
			}
			rows = append(rows, row)
		}
		if strings.HasSuffix(rng, ":append") {
			if f.failOn != "" && strings.HasPrefix(title, f.failOn) {
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
				return
			}
			f.rows[title] = append(f.rows[title], rows...)
		} else {
			f.rows[title] = rows
		}
		writeJSON(w, map[string]any{})

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestSink(t *testing.T, fake *fakeSheets) *Sink {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return NewWithService(svc, "sheet-1", zerolog.Nop())
}

func TestRebuildSwapsStagingTab(t *testing.T) {
	fake := newFakeSheets()
	sink := newTestSink(t, fake)
	rb := report.NewRebuilder(sink, report.WithBatchSize(2), report.WithRateLimit(0, 0))

	table := report.Table{
		Name:   report.TableMonthly,
		Header: []string{"Month", "Invoices", "Revenue"},
		Rows: [][]string{
			{"2026-01", "3", "1200.00"},
			{"2026-02", "1", "400.00"},
			{"2026-03", "2", "950.00"},
		},
	}
	ctx := context.Background()
	for range 2 {
		if err := rb.Rebuild(ctx, table); err != nil {
			t.Fatal(err)
		}
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if _, ok := fake.ids[report.TableMonthly+stagingSuffix]; ok {
		t.Fatal("staging tab left behind")
	}
	got := fake.rows[report.TableMonthly]
	if len(got) != 4 {
		t.Fatalf("live tab has %d rows, want header plus 3", len(got))
	}
	if got[0][0] != "Month" || got[3][2] != "950.00" {
		t.Fatalf("rows = %v", got)
	}
}

func TestFailedRebuildKeepsLiveTab(t *testing.T) {
	fake := newFakeSheets()
	sink := newTestSink(t, fake)
	rb := report.NewRebuilder(sink, report.WithRateLimit(0, 0))
	ctx := context.Background()

	first := report.Table{Name: report.TableAging, Header: []string{"Bucket"}, Rows: [][]string{{"Current"}}}
	if err := rb.Rebuild(ctx, first); err != nil {
		t.Fatal(err)
	}

	fake.mu.Lock()
	fake.failOn = report.TableAging
	fake.mu.Unlock()

	second := report.Table{Name: report.TableAging, Header: []string{"Bucket"}, Rows: [][]string{{"1-30 days"}}}
	if err := rb.Rebuild(ctx, second); err == nil {
		t.Fatal("expected the rebuild to fail")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if _, ok := fake.ids[report.TableAging+stagingSuffix]; ok {
		t.Fatal("staging tab not aborted")
	}
	if rows := fake.rows[report.TableAging]; len(rows) != 2 || rows[1][0] != "Current" {
		t.Fatalf("live tab changed: %v", rows)
	}
}

func TestSpreadsheetID(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0", "1AbC-d_9", true},
		{"https://docs.google.com/document/d/xyz", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := SpreadsheetID(tt.url)
			if (err == nil) != tt.ok || got != tt.want {
				t.Fatalf("SpreadsheetID() = %q, %v", got, err)
			}
		})
	}
}
