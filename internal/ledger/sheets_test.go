package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"
)

type fakeSheet struct {
	t        *testing.T
	appended [][]interface{}
	updated  [][]interface{}
	rows     [][]interface{}
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, ":append"):
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			f.t.Fatalf("decode append: %v", err)
		}
		if req.URL.Query().Get("valueInputOption") != "RAW" || req.URL.Query().Get("insertDataOption") != "INSERT_ROWS" {
			f.t.Fatalf("unexpected append options %s", req.URL.RawQuery)
		}
		f.appended = append(f.appended, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"spreadsheetId": "sheet-1",
			"updates":       map[string]any{"updatedRange": "Gastos!A7:F7"},
		})
	case req.Method == http.MethodPut:
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		f.updated = append(f.updated, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-1"})
	case req.Method == http.MethodGet && strings.HasSuffix(req.URL.Path, "Gastos!A2:F2"):
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.rows[1:2]})
	case req.Method == http.MethodGet && strings.HasSuffix(req.URL.Path, "Gastos!A9:F9"):
		_ = json.NewEncoder(w).Encode(map[string]any{})
	case req.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.rows})
	default:
		http.NotFound(w, req)
	}
}

func newTestSheets(t *testing.T, fake *fakeSheet) *Sheets {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	ledger, err := NewSheets(context.Background(), SheetsConfig{Range: "Gastos!A:F", Location: time.UTC},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		option.WithHTTPClient(server.Client()),
		option.WithEndpoint(server.URL+"/"),
	)
	if err != nil {
		t.Fatalf("new sheets ledger: %v", err)
	}
	return ledger
}

func TestSheetsAppendReportsRowNumber(t *testing.T) {
	fake := &fakeSheet{t: t}
	ledger := newTestSheets(t, fake)

	row, err := ledger.Append(context.Background(), Account{ChatID: "573001", SheetID: "sheet-1"}, Row{
		Date:        time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Description: "Almuerzo",
		Amount:      25000,
		Category:    "Alimentación",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if row.Number != 7 {
		t.Fatalf("expected row 7, got %d", row.Number)
	}
	if len(fake.appended) != 1 {
		t.Fatalf("expected one appended row, got %v", fake.appended)
	}
	got := fake.appended[0]
	if got[0] != "2026-03-01 12:30" || got[1] != "Almuerzo" || got[2] != float64(25000) || got[3] != "Alimentación" {
		t.Fatalf("unexpected appended values %v", got)
	}
}

func TestSheetsGetUpdateAndList(t *testing.T) {
	fake := &fakeSheet{t: t, rows: [][]interface{}{
		{"Fecha", "Descripción", "Monto", "Categoría"},
		{"2026-03-01 12:30", "Almuerzo", float64(25000), "Alimentación", "trabajo"},
		{"2026-02-27 08:00", "Uber", float64(12000), "Transporte"},
		{"2026-03-02 09:00", "Cafe", "3.000", "Gastos Hormiga"},
	}}
	ledger := newTestSheets(t, fake)
	ctx := context.Background()
	account := Account{ChatID: "573001", SheetID: "sheet-1"}

	row, err := ledger.Get(ctx, account, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Number != 2 || row.Amount != 25000 || row.Tag != "trabajo" {
		t.Fatalf("unexpected row %+v", row)
	}
	if _, err := ledger.Get(ctx, account, 9); !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}

	row.Category = "Entretenimiento"
	if err := ledger.Update(ctx, account, row); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(fake.updated) != 1 || fake.updated[0][3] != "Entretenimiento" || fake.updated[0][4] != "trabajo" {
		t.Fatalf("unexpected update payload %v", fake.updated)
	}

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows, err := ledger.List(ctx, account, from, from.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].Number != 2 || rows[1].Amount != 3000 || rows[1].Number != 4 {
		t.Fatalf("unexpected listed rows %+v", rows)
	}
}

func TestParseRange(t *testing.T) {
	name, columns, err := parseRange("Mis Gastos!a:f")
	if err != nil || name != "Mis Gastos" || columns != [2]string{"A", "F"} {
		t.Fatalf("unexpected parse %q %v err=%v", name, columns, err)
	}
	for _, raw := range []string{"Gastos", "!A:F", "Gastos!A"} {
		if _, _, err := parseRange(raw); err == nil {
			t.Fatalf("expected %q to fail", raw)
		}
	}
}
