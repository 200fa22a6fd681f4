package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Reminder struct {
	ID        string
	ChatID    string
	Text      string
	DueAt     time.Time
	FiredAt   time.Time
	CreatedAt time.Time
}

type CreateReminderInput struct {
	ChatID string
	Text   string
	DueAt  time.Time
}

func (s *Store) CreateReminder(ctx context.Context, input CreateReminderInput) (Reminder, error) {
	chatID := strings.TrimSpace(input.ChatID)
	text := strings.TrimSpace(input.Text)
	if chatID == "" || text == "" || input.DueAt.IsZero() {
		return Reminder{}, fmt.Errorf("chat id, text and due time are required")
	}
	now := time.Now().UTC()
	reminder := Reminder{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Text:      text,
		DueAt:     input.DueAt.UTC().Truncate(time.Second),
		CreatedAt: now.Truncate(time.Second),
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO reminders (id, chat_id, text, due_at_unix, created_at_unix) VALUES (?, ?, ?, ?, ?)`,
		reminder.ID,
		reminder.ChatID,
		reminder.Text,
		reminder.DueAt.Unix(),
		now.Unix(),
	)
	if err != nil {
		return Reminder{}, fmt.Errorf("insert reminder: %w", err)
	}
	return reminder, nil
}

// ListPendingReminders returns the chat's unfired reminders, soonest first.
func (s *Store) ListPendingReminders(ctx context.Context, chatID string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, chat_id, text, due_at_unix, COALESCE(fired_at_unix, 0), created_at_unix
		 FROM reminders
		 WHERE chat_id = ? AND fired_at_unix IS NULL
		 ORDER BY due_at_unix ASC`,
		strings.TrimSpace(chatID),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *Store) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT r.id, r.chat_id, r.text, r.due_at_unix, COALESCE(r.fired_at_unix, 0), r.created_at_unix
		 FROM reminders r
		 INNER JOIN contacts c ON c.chat_id = r.chat_id
		 WHERE r.fired_at_unix IS NULL AND r.due_at_unix <= ? AND c.blocked = 0
		 ORDER BY r.due_at_unix ASC
		 LIMIT ?`,
		now.UTC().Unix(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// MarkReminderFired reports false when the reminder was already fired.
func (s *Store) MarkReminderFired(ctx context.Context, id string, firedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE reminders SET fired_at_unix = ? WHERE id = ? AND fired_at_unix IS NULL`,
		firedAt.UTC().Unix(),
		strings.TrimSpace(id),
	)
	if err != nil {
		return false, fmt.Errorf("mark reminder fired: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		var (
			reminder      Reminder
			dueAtUnix     int64
			firedAtUnix   int64
			createdAtUnix int64
		)
		if err := rows.Scan(&reminder.ID, &reminder.ChatID, &reminder.Text, &dueAtUnix, &firedAtUnix, &createdAtUnix); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminder.DueAt = time.Unix(dueAtUnix, 0).UTC()
		if firedAtUnix > 0 {
			reminder.FiredAt = time.Unix(firedAtUnix, 0).UTC()
		}
		reminder.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		out = append(out, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}
