package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/dwizi/wabot/internal/store"
)

type expenseStore interface {
	AppendExpense(ctx context.Context, record store.ExpenseRecord) (store.ExpenseRecord, error)
	GetExpense(ctx context.Context, chatID string, row int) (store.ExpenseRecord, error)
	UpdateExpense(ctx context.Context, record store.ExpenseRecord) error
	ListExpenses(ctx context.Context, chatID string, from, to time.Time) ([]store.ExpenseRecord, error)
}

// Local keeps expenses in the application database.
type Local struct {
	store expenseStore
}

func NewLocal(store expenseStore) *Local {
	return &Local{store: store}
}

func (l *Local) Append(ctx context.Context, account Account, row Row) (Row, error) {
	record, err := l.store.AppendExpense(ctx, store.ExpenseRecord{
		ChatID:      account.ChatID,
		SpentAt:     row.Date,
		Description: row.Description,
		Amount:      row.Amount,
		Category:    row.Category,
		Tag:         row.Tag,
		Note:        row.Note,
	})
	if err != nil {
		return Row{}, err
	}
	return fromRecord(record), nil
}

func (l *Local) Get(ctx context.Context, account Account, number int) (Row, error) {
	record, err := l.store.GetExpense(ctx, account.ChatID, number)
	if err != nil {
		if errors.Is(err, store.ErrExpenseNotFound) {
			return Row{}, ErrRowNotFound
		}
		return Row{}, err
	}
	return fromRecord(record), nil
}

func (l *Local) Update(ctx context.Context, account Account, row Row) error {
	err := l.store.UpdateExpense(ctx, store.ExpenseRecord{
		ChatID:      account.ChatID,
		Row:         row.Number,
		Description: row.Description,
		Amount:      row.Amount,
		Category:    row.Category,
	})
	if errors.Is(err, store.ErrExpenseNotFound) {
		return ErrRowNotFound
	}
	return err
}

func (l *Local) List(ctx context.Context, account Account, from, to time.Time) ([]Row, error) {
	records, err := l.store.ListExpenses(ctx, account.ChatID, from, to)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(records))
	for _, record := range records {
		rows = append(rows, fromRecord(record))
	}
	return rows, nil
}

func fromRecord(record store.ExpenseRecord) Row {
	return Row{
		Number:      record.Row,
		Date:        record.SpentAt,
		Description: record.Description,
		Amount:      record.Amount,
		Category:    record.Category,
		Tag:         record.Tag,
		Note:        record.Note,
	}
}
