package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const sheetDateLayout = "2006-01-02 15:04"

var updatedRowPattern = regexp.MustCompile(`![A-Z]+(\d+)`)

// Sheets appends one row per expense to a spreadsheet range such as
// "Gastos!A:F": date, description, amount, category, tag, note.
type Sheets struct {
	service   *sheets.Service
	sheetName string
	columns   [2]string
	location  *time.Location
	logger    *slog.Logger
}

type SheetsConfig struct {
	CredentialsFile string
	Range           string
	Location        *time.Location
}

func NewSheets(ctx context.Context, cfg SheetsConfig, logger *slog.Logger, opts ...option.ClientOption) (*Sheets, error) {
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append([]option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}, opts...)
	}
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	sheetName, columns, err := parseRange(cfg.Range)
	if err != nil {
		return nil, err
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sheets{
		service:   service,
		sheetName: sheetName,
		columns:   columns,
		location:  location,
		logger:    logger,
	}, nil
}

func (s *Sheets) Append(ctx context.Context, account Account, row Row) (Row, error) {
	if row.Date.IsZero() {
		row.Date = time.Now()
	}
	values := &sheets.ValueRange{Values: [][]interface{}{s.encode(row)}}
	resp, err := s.service.Spreadsheets.Values.
		Append(account.SheetID, s.fullRange(), values).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return Row{}, fmt.Errorf("append sheet row: %w", err)
	}
	if resp.Updates != nil {
		if groups := updatedRowPattern.FindStringSubmatch(resp.Updates.UpdatedRange); groups != nil {
			row.Number, _ = strconv.Atoi(groups[1])
		}
	}
	s.logger.Debug("sheet row appended", "chat_id", account.ChatID, "row", row.Number)
	return row, nil
}

func (s *Sheets) Get(ctx context.Context, account Account, number int) (Row, error) {
	if number < 1 {
		return Row{}, ErrRowNotFound
	}
	resp, err := s.service.Spreadsheets.Values.
		Get(account.SheetID, s.rowRange(number)).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return Row{}, fmt.Errorf("read sheet row: %w", err)
	}
	if len(resp.Values) == 0 {
		return Row{}, ErrRowNotFound
	}
	row, ok := s.decode(resp.Values[0])
	if !ok {
		return Row{}, ErrRowNotFound
	}
	row.Number = number
	return row, nil
}

func (s *Sheets) Update(ctx context.Context, account Account, row Row) error {
	current, err := s.Get(ctx, account, row.Number)
	if err != nil {
		return err
	}
	current.Description = row.Description
	current.Amount = row.Amount
	current.Category = row.Category
	values := &sheets.ValueRange{Values: [][]interface{}{s.encode(current)}}
	_, err = s.service.Spreadsheets.Values.
		Update(account.SheetID, s.rowRange(row.Number), values).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update sheet row: %w", err)
	}
	return nil
}

// List reads the whole range and keeps rows dated in [from, to). Header and
// malformed rows are skipped.
func (s *Sheets) List(ctx context.Context, account Account, from, to time.Time) ([]Row, error) {
	resp, err := s.service.Spreadsheets.Values.
		Get(account.SheetID, s.fullRange()).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	var rows []Row
	for index, values := range resp.Values {
		row, ok := s.decode(values)
		if !ok {
			continue
		}
		if row.Date.Before(from) || !row.Date.Before(to) {
			continue
		}
		row.Number = index + 1
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Sheets) fullRange() string {
	return fmt.Sprintf("%s!%s:%s", s.sheetName, s.columns[0], s.columns[1])
}

func (s *Sheets) rowRange(number int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", s.sheetName, s.columns[0], number, s.columns[1], number)
}

func (s *Sheets) encode(row Row) []interface{} {
	return []interface{}{
		row.Date.In(s.location).Format(sheetDateLayout),
		row.Description,
		row.Amount,
		row.Category,
		row.Tag,
		row.Note,
	}
}

func (s *Sheets) decode(values []interface{}) (Row, bool) {
	if len(values) < 4 {
		return Row{}, false
	}
	date, err := time.ParseInLocation(sheetDateLayout, cellString(values[0]), s.location)
	if err != nil {
		return Row{}, false
	}
	amount, ok := cellAmount(values[2])
	if !ok {
		return Row{}, false
	}
	row := Row{
		Date:        date,
		Description: cellString(values[1]),
		Amount:      amount,
		Category:    cellString(values[3]),
	}
	if len(values) > 4 {
		row.Tag = cellString(values[4])
	}
	if len(values) > 5 {
		row.Note = cellString(values[5])
	}
	return row, true
}

func cellString(value interface{}) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func cellAmount(value interface{}) (int64, bool) {
	switch typed := value.(type) {
	case float64:
		return int64(math.Round(typed)), true
	case string:
		cleaned := strings.NewReplacer("$", "", ".", "", ",", "", " ", "").Replace(typed)
		parsed, err := strconv.ParseInt(cleaned, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func parseRange(raw string) (string, [2]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "Gastos!A:F"
	}
	name, cells, ok := strings.Cut(raw, "!")
	if !ok || strings.TrimSpace(name) == "" {
		return "", [2]string{}, fmt.Errorf("invalid sheet range %q", raw)
	}
	first, last, ok := strings.Cut(cells, ":")
	if !ok || first == "" || last == "" {
		return "", [2]string{}, fmt.Errorf("invalid sheet range %q", raw)
	}
	return strings.TrimSpace(name), [2]string{strings.ToUpper(first), strings.ToUpper(last)}, nil
}
