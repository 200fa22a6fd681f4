package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrExpenseNotFound = errors.New("expense not found")

// ExpenseRecord is a row of the local ledger. Row numbers are per chat and
// start at 1.
type ExpenseRecord struct {
	ID          string
	ChatID      string
	Row         int
	SpentAt     time.Time
	Description string
	Amount      int64
	Category    string
	Tag         string
	Note        string
}

func (s *Store) AppendExpense(ctx context.Context, record ExpenseRecord) (ExpenseRecord, error) {
	record.ChatID = strings.TrimSpace(record.ChatID)
	if record.ChatID == "" || record.Amount <= 0 || strings.TrimSpace(record.Description) == "" {
		return ExpenseRecord{}, fmt.Errorf("chat id, description and positive amount are required")
	}
	if record.SpentAt.IsZero() {
		record.SpentAt = time.Now().UTC()
	}
	record.SpentAt = record.SpentAt.UTC().Truncate(time.Second)
	record.ID = uuid.NewString()
	nowUnix := time.Now().UTC().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ExpenseRecord{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(row_number), 0) + 1 FROM expenses WHERE chat_id = ?`, record.ChatID).Scan(&record.Row); err != nil {
		return ExpenseRecord{}, fmt.Errorf("next expense row: %w", err)
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO expenses (
			id, chat_id, row_number, spent_at_unix, description, amount, category, tag, note,
			created_at_unix, updated_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ChatID,
		record.Row,
		record.SpentAt.Unix(),
		record.Description,
		record.Amount,
		record.Category,
		nullIfEmpty(record.Tag),
		nullIfEmpty(record.Note),
		nowUnix,
		nowUnix,
	)
	if err != nil {
		return ExpenseRecord{}, fmt.Errorf("insert expense: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ExpenseRecord{}, fmt.Errorf("commit expense: %w", err)
	}
	return record, nil
}

func (s *Store) GetExpense(ctx context.Context, chatID string, row int) (ExpenseRecord, error) {
	var (
		record      ExpenseRecord
		spentAtUnix int64
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, chat_id, row_number, spent_at_unix, description, amount, category, COALESCE(tag, ''), COALESCE(note, '')
		 FROM expenses WHERE chat_id = ? AND row_number = ?`,
		strings.TrimSpace(chatID),
		row,
	).Scan(&record.ID, &record.ChatID, &record.Row, &spentAtUnix, &record.Description, &record.Amount, &record.Category, &record.Tag, &record.Note)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExpenseRecord{}, ErrExpenseNotFound
		}
		return ExpenseRecord{}, fmt.Errorf("get expense: %w", err)
	}
	record.SpentAt = time.Unix(spentAtUnix, 0).UTC()
	return record, nil
}

// UpdateExpense rewrites description, amount and category of an existing row.
func (s *Store) UpdateExpense(ctx context.Context, record ExpenseRecord) error {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE expenses SET description = ?, amount = ?, category = ?, updated_at_unix = ?
		 WHERE chat_id = ? AND row_number = ?`,
		record.Description,
		record.Amount,
		record.Category,
		time.Now().UTC().Unix(),
		strings.TrimSpace(record.ChatID),
		record.Row,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// ListExpenses returns rows spent in [from, to), oldest first.
func (s *Store) ListExpenses(ctx context.Context, chatID string, from, to time.Time) ([]ExpenseRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, chat_id, row_number, spent_at_unix, description, amount, category, COALESCE(tag, ''), COALESCE(note, '')
		 FROM expenses
		 WHERE chat_id = ? AND spent_at_unix >= ? AND spent_at_unix < ?
		 ORDER BY row_number ASC`,
		strings.TrimSpace(chatID),
		from.UTC().Unix(),
		to.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []ExpenseRecord
	for rows.Next() {
		var (
			record      ExpenseRecord
			spentAtUnix int64
		)
		if err := rows.Scan(&record.ID, &record.ChatID, &record.Row, &spentAtUnix, &record.Description, &record.Amount, &record.Category, &record.Tag, &record.Note); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		record.SpentAt = time.Unix(spentAtUnix, 0).UTC()
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}
