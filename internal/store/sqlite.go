package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB

	mu       sync.RWMutex
	defaults Preferences
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db, defaults: DefaultPreferences()}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS contacts (
			chat_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			active_bot TEXT NOT NULL DEFAULT 'none',
			blocked INTEGER NOT NULL DEFAULT 0,
			preferences_json TEXT NOT NULL DEFAULT '{}',
			bot_config_json TEXT NOT NULL DEFAULT '{}',
			next_briefing_unix INTEGER,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_next_briefing ON contacts(next_briefing_unix);`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			text TEXT NOT NULL,
			due_at_unix INTEGER NOT NULL,
			fired_at_unix INTEGER,
			created_at_unix INTEGER NOT NULL,
			FOREIGN KEY(chat_id) REFERENCES contacts(chat_id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(fired_at_unix, due_at_unix);`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			row_number INTEGER NOT NULL,
			spent_at_unix INTEGER NOT NULL,
			description TEXT NOT NULL,
			amount INTEGER NOT NULL,
			category TEXT NOT NULL,
			tag TEXT,
			note TEXT,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL,
			UNIQUE(chat_id, row_number),
			FOREIGN KEY(chat_id) REFERENCES contacts(chat_id) ON DELETE CASCADE
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	alterQueries := []string{
		`ALTER TABLE contacts ADD COLUMN next_briefing_unix INTEGER;`,
		`ALTER TABLE expenses ADD COLUMN tag TEXT;`,
		`ALTER TABLE expenses ADD COLUMN note TEXT;`,
	}
	for _, query := range alterQueries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			message := strings.ToLower(err.Error())
			if strings.Contains(message, "duplicate column name") || strings.Contains(message, "no such table") {
				continue
			}
			return fmt.Errorf("run migration alter: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullIfZeroInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
