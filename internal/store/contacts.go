package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrContactNotFound = errors.New("contact not found")

type ActiveBot string

const (
	BotNone   ActiveBot = "none"
	BotGroq   ActiveBot = "groq"
	BotGastos ActiveBot = "gastos"
)

func ParseActiveBot(raw string) (ActiveBot, bool) {
	switch ActiveBot(strings.ToLower(strings.TrimSpace(raw))) {
	case BotNone:
		return BotNone, true
	case BotGroq:
		return BotGroq, true
	case BotGastos:
		return BotGastos, true
	default:
		return "", false
	}
}

type Contact struct {
	ChatID         string
	DisplayName    string
	ActiveBot      ActiveBot
	Blocked        bool
	Preferences    Preferences
	BotConfig      BotConfig
	NextBriefingAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ContactStats struct {
	Total   int
	Blocked int
	Groq    int
	Gastos  int
}

const contactColumns = `chat_id, display_name, active_bot, blocked, preferences_json, bot_config_json,
	COALESCE(next_briefing_unix, 0), created_at_unix, updated_at_unix`

type rowScanner interface {
	Scan(dest ...any) error
}

// EnsureContact returns the contact for chatID, creating it on first sight.
// A non-empty displayName refreshes the stored one.
func (s *Store) EnsureContact(ctx context.Context, chatID, displayName string) (Contact, error) {
	chatID = strings.TrimSpace(chatID)
	displayName = strings.TrimSpace(displayName)
	if chatID == "" {
		return Contact{}, fmt.Errorf("chat id is required")
	}
	nowUnix := time.Now().UTC().Unix()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO contacts (chat_id, display_name, active_bot, created_at_unix, updated_at_unix)
		 VALUES (?, ?, 'none', ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE contacts.display_name END`,
		chatID,
		displayName,
		nowUnix,
		nowUnix,
	)
	if err != nil {
		return Contact{}, fmt.Errorf("ensure contact: %w", err)
	}
	return s.GetContact(ctx, chatID)
}

func (s *Store) GetContact(ctx context.Context, chatID string) (Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE chat_id = ?`, strings.TrimSpace(chatID))
	contact, err := s.scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrContactNotFound
		}
		return Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

func (s *Store) ListContacts(ctx context.Context, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY updated_at_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	return s.scanContacts(rows)
}

func (s *Store) ListBlockedContacts(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE blocked = 1 ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("list blocked contacts: %w", err)
	}
	defer rows.Close()
	return s.scanContacts(rows)
}

func (s *Store) CountContacts(ctx context.Context) (ContactStats, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN blocked = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN active_bot = 'groq' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN active_bot = 'gastos' THEN 1 ELSE 0 END), 0)
		 FROM contacts`,
	)
	var stats ContactStats
	if err := row.Scan(&stats.Total, &stats.Blocked, &stats.Groq, &stats.Gastos); err != nil {
		return ContactStats{}, fmt.Errorf("count contacts: %w", err)
	}
	return stats, nil
}

func (s *Store) SetActiveBot(ctx context.Context, chatID string, bot ActiveBot) error {
	if _, ok := ParseActiveBot(string(bot)); !ok {
		return fmt.Errorf("unknown bot %q", bot)
	}
	return s.execContactUpdate(ctx, chatID, `UPDATE contacts SET active_bot = ?, updated_at_unix = ? WHERE chat_id = ?`, string(bot))
}

// SetBlocked creates the contact when needed so numbers can be blocked
// before they ever write.
func (s *Store) SetBlocked(ctx context.Context, chatID string, blocked bool) error {
	if _, err := s.EnsureContact(ctx, chatID, ""); err != nil {
		return err
	}
	value := 0
	if blocked {
		value = 1
	}
	return s.execContactUpdate(ctx, chatID, `UPDATE contacts SET blocked = ?, updated_at_unix = ? WHERE chat_id = ?`, value)
}

func (s *Store) SetNextBriefing(ctx context.Context, chatID string, next time.Time) error {
	nextUnix := int64(0)
	if !next.IsZero() {
		nextUnix = next.UTC().Unix()
	}
	return s.execContactUpdate(ctx, chatID, `UPDATE contacts SET next_briefing_unix = ?, updated_at_unix = ? WHERE chat_id = ?`, nullIfZeroInt64(nextUnix))
}

// ListDueBriefings returns unblocked contacts whose next briefing is at or
// before now.
func (s *Store) ListDueBriefings(ctx context.Context, now time.Time, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE blocked = 0 AND next_briefing_unix IS NOT NULL AND next_briefing_unix <= ?
		 ORDER BY next_briefing_unix ASC
		 LIMIT ?`,
		now.UTC().Unix(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due briefings: %w", err)
	}
	defer rows.Close()
	return s.scanContacts(rows)
}

// UpdatePreferences applies mutate to the merged preferences and stores the
// result.
func (s *Store) UpdatePreferences(ctx context.Context, chatID string, mutate func(*Preferences)) (Preferences, error) {
	contact, err := s.GetContact(ctx, chatID)
	if err != nil {
		return Preferences{}, err
	}
	prefs := contact.Preferences
	mutate(&prefs)
	raw, err := json.Marshal(prefs)
	if err != nil {
		return Preferences{}, fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.execContactUpdate(ctx, chatID, `UPDATE contacts SET preferences_json = ?, updated_at_unix = ? WHERE chat_id = ?`, string(raw)); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

func (s *Store) UpdateBotConfig(ctx context.Context, chatID string, mutate func(*BotConfig)) (BotConfig, error) {
	contact, err := s.GetContact(ctx, chatID)
	if err != nil {
		return BotConfig{}, err
	}
	config := contact.BotConfig
	mutate(&config)
	raw, err := json.Marshal(config)
	if err != nil {
		return BotConfig{}, fmt.Errorf("encode bot config: %w", err)
	}
	if err := s.execContactUpdate(ctx, chatID, `UPDATE contacts SET bot_config_json = ?, updated_at_unix = ? WHERE chat_id = ?`, string(raw)); err != nil {
		return BotConfig{}, err
	}
	return config, nil
}

// ResetBotConfig empties the sub-bot configuration and returns the contact
// to the default bot.
func (s *Store) ResetBotConfig(ctx context.Context, chatID string) error {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE contacts SET bot_config_json = '{}', active_bot = 'none', updated_at_unix = ? WHERE chat_id = ?`,
		time.Now().UTC().Unix(),
		strings.TrimSpace(chatID),
	)
	if err != nil {
		return fmt.Errorf("reset bot config: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (s *Store) ResetAllBotConfigs(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE contacts SET bot_config_json = '{}', active_bot = 'none', updated_at_unix = ?`,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("reset all bot configs: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func (s *Store) execContactUpdate(ctx context.Context, chatID, query string, value any) error {
	result, err := s.db.ExecContext(ctx, query, value, time.Now().UTC().Unix(), strings.TrimSpace(chatID))
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (s *Store) scanContacts(rows *sql.Rows) ([]Contact, error) {
	var out []Contact
	for rows.Next() {
		contact, err := s.scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return out, nil
}

func (s *Store) scanContact(row rowScanner) (Contact, error) {
	var (
		contact          Contact
		activeBot        string
		blocked          int
		preferencesJSON  string
		botConfigJSON    string
		nextBriefingUnix int64
		createdAtUnix    int64
		updatedAtUnix    int64
	)
	if err := row.Scan(
		&contact.ChatID,
		&contact.DisplayName,
		&activeBot,
		&blocked,
		&preferencesJSON,
		&botConfigJSON,
		&nextBriefingUnix,
		&createdAtUnix,
		&updatedAtUnix,
	); err != nil {
		return Contact{}, err
	}
	bot, ok := ParseActiveBot(activeBot)
	if !ok {
		bot = BotNone
	}
	prefs, err := s.decodePreferences(preferencesJSON)
	if err != nil {
		return Contact{}, err
	}
	config, err := decodeBotConfig(botConfigJSON)
	if err != nil {
		return Contact{}, err
	}
	contact.ActiveBot = bot
	contact.Blocked = blocked == 1
	contact.Preferences = prefs
	contact.BotConfig = config
	if nextBriefingUnix > 0 {
		contact.NextBriefingAt = time.Unix(nextBriefingUnix, 0).UTC()
	}
	contact.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	contact.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
	return contact, nil
}
