// Package ledger records expenses either in a Google Sheets spreadsheet or in
// the local database, chosen per account.
package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var ErrRowNotFound = errors.New("ledger row not found")

// Account identifies where a chat's expenses live. An empty or "local"
// SheetID selects the local ledger.
type Account struct {
	ChatID  string
	SheetID string
}

func (a Account) Local() bool {
	sheetID := strings.TrimSpace(a.SheetID)
	return sheetID == "" || strings.EqualFold(sheetID, "local")
}

type Row struct {
	Number      int
	Date        time.Time
	Description string
	Amount      int64
	Category    string
	Tag         string
	Note        string
}

type Ledger interface {
	Append(ctx context.Context, account Account, row Row) (Row, error)
	Get(ctx context.Context, account Account, number int) (Row, error)
	Update(ctx context.Context, account Account, row Row) error
	List(ctx context.Context, account Account, from, to time.Time) ([]Row, error)
}

// Mux sends local accounts to one ledger and spreadsheet accounts to
// another. A nil spreadsheet ledger makes every account local.
type Mux struct {
	local  Ledger
	sheets Ledger
}

func NewMux(local, sheets Ledger) *Mux {
	return &Mux{local: local, sheets: sheets}
}

func (m *Mux) pick(account Account) Ledger {
	if account.Local() || m.sheets == nil {
		return m.local
	}
	return m.sheets
}

func (m *Mux) Append(ctx context.Context, account Account, row Row) (Row, error) {
	return m.pick(account).Append(ctx, account, row)
}

func (m *Mux) Get(ctx context.Context, account Account, number int) (Row, error) {
	return m.pick(account).Get(ctx, account, number)
}

func (m *Mux) Update(ctx context.Context, account Account, row Row) error {
	return m.pick(account).Update(ctx, account, row)
}

func (m *Mux) List(ctx context.Context, account Account, from, to time.Time) ([]Row, error) {
	return m.pick(account).List(ctx, account, from, to)
}

// SheetsEnabled reports whether spreadsheet accounts can be served.
func (m *Mux) SheetsEnabled() bool {
	return m.sheets != nil
}

type CategoryTotal struct {
	Category string
	Total    int64
	Count    int
}

// Summarize totals rows per category, largest total first.
func Summarize(rows []Row) ([]CategoryTotal, int64) {
	byCategory := map[string]*CategoryTotal{}
	var grand int64
	for _, row := range rows {
		total, ok := byCategory[row.Category]
		if !ok {
			total = &CategoryTotal{Category: row.Category}
			byCategory[row.Category] = total
		}
		total.Total += row.Amount
		total.Count++
		grand += row.Amount
	}
	out := make([]CategoryTotal, 0, len(byCategory))
	for _, total := range byCategory {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Category < out[j].Category
	})
	return out, grand
}

// MonthRange returns the start of now's month and of the next one, in loc.
func MonthRange(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
