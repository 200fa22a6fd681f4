package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "wabot_test.sqlite")
	sqlStore, err := New(dbPath)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	return sqlStore
}

func TestAutoMigrateIsIdempotent(t *testing.T) {
	sqlStore := newTestStore(t)
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("second migration: %v", err)
	}
	if err := sqlStore.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestEnsureContactCreatesWithDefaults(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	contact, err := sqlStore.EnsureContact(ctx, "573001112233", "Ana")
	if err != nil {
		t.Fatalf("ensure contact: %v", err)
	}
	if contact.ActiveBot != BotNone || contact.Blocked {
		t.Fatalf("unexpected new contact state: %+v", contact)
	}
	if contact.Preferences.NewsCount != 5 || !contact.Preferences.Weather || len(contact.Preferences.Times) != 1 {
		t.Fatalf("expected default preferences, got %+v", contact.Preferences)
	}

	again, err := sqlStore.EnsureContact(ctx, "573001112233", "")
	if err != nil {
		t.Fatalf("ensure existing contact: %v", err)
	}
	if again.DisplayName != "Ana" {
		t.Fatalf("expected display name to be kept, got %q", again.DisplayName)
	}
	if _, err := sqlStore.EnsureContact(ctx, " ", "x"); err == nil {
		t.Fatal("expected empty chat id to fail")
	}
}

func TestGetContactNotFound(t *testing.T) {
	sqlStore := newTestStore(t)
	if _, err := sqlStore.GetContact(context.Background(), "nope"); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound, got %v", err)
	}
	if err := sqlStore.SetActiveBot(context.Background(), "nope", BotGroq); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound on update, got %v", err)
	}
}

func TestPreferencesMergeOverDefaults(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	if _, err := sqlStore.EnsureContact(ctx, "a", ""); err != nil {
		t.Fatalf("ensure contact: %v", err)
	}
	if _, err := sqlStore.db.ExecContext(ctx, `UPDATE contacts SET preferences_json = '{"crypto":["solana"],"weather":false}' WHERE chat_id = 'a'`); err != nil {
		t.Fatalf("seed preferences: %v", err)
	}
	contact, err := sqlStore.GetContact(ctx, "a")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	prefs := contact.Preferences
	if len(prefs.Crypto) != 1 || prefs.Crypto[0] != "solana" || prefs.Weather {
		t.Fatalf("expected stored values, got %+v", prefs)
	}
	if prefs.NewsCount != 5 || !prefs.Rates || prefs.Role != "assistant" {
		t.Fatalf("expected defaults for missing keys, got %+v", prefs)
	}

	updated, err := sqlStore.UpdatePreferences(ctx, "a", func(p *Preferences) {
		p.Voice = true
		p.Model = "llama-3.1-8b-instant"
	})
	if err != nil {
		t.Fatalf("update preferences: %v", err)
	}
	if !updated.Voice || updated.Crypto[0] != "solana" {
		t.Fatalf("expected merged update, got %+v", updated)
	}
	if fresh := DefaultPreferences(); fresh.Crypto[0] != "bitcoin" {
		t.Fatalf("expected defaults untouched, got %+v", fresh.Crypto)
	}
}

func TestSetPreferenceDefaults(t *testing.T) {
	sqlStore := newTestStore(t)
	defaults := DefaultPreferences()
	defaults.Times = []string{"06:30", "18:00"}
	sqlStore.SetPreferenceDefaults(defaults)

	contact, err := sqlStore.EnsureContact(context.Background(), "a", "")
	if err != nil {
		t.Fatalf("ensure contact: %v", err)
	}
	if len(contact.Preferences.Times) != 2 || contact.Preferences.Times[0] != "06:30" {
		t.Fatalf("expected configured default times, got %v", contact.Preferences.Times)
	}
}

func TestBotConfigLifecycle(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	for _, chatID := range []string{"a", "b"} {
		if _, err := sqlStore.EnsureContact(ctx, chatID, ""); err != nil {
			t.Fatalf("ensure contact: %v", err)
		}
		if err := sqlStore.SetActiveBot(ctx, chatID, BotGastos); err != nil {
			t.Fatalf("set active bot: %v", err)
		}
		if _, err := sqlStore.UpdateBotConfig(ctx, chatID, func(c *BotConfig) {
			c.Gastos.Onboarded = true
			c.Gastos.SheetID = "sheet-" + chatID
		}); err != nil {
			t.Fatalf("update bot config: %v", err)
		}
	}

	contact, _ := sqlStore.GetContact(ctx, "a")
	if !contact.BotConfig.Gastos.Onboarded || contact.BotConfig.Gastos.SheetID != "sheet-a" || contact.BotConfig.Gastos.LocalLedger() {
		t.Fatalf("unexpected bot config: %+v", contact.BotConfig)
	}

	if err := sqlStore.ResetBotConfig(ctx, "a"); err != nil {
		t.Fatalf("reset bot config: %v", err)
	}
	contact, _ = sqlStore.GetContact(ctx, "a")
	if contact.BotConfig.Gastos.Onboarded || contact.ActiveBot != BotNone {
		t.Fatalf("expected reset contact, got %+v", contact)
	}

	count, err := sqlStore.ResetAllBotConfigs(ctx)
	if err != nil || count != 2 {
		t.Fatalf("expected two contacts reset, got %d err=%v", count, err)
	}
	contact, _ = sqlStore.GetContact(ctx, "b")
	if contact.BotConfig.Gastos.SheetID != "" {
		t.Fatalf("expected empty bot config, got %+v", contact.BotConfig)
	}
}

func TestBlockingAndStats(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	_, _ = sqlStore.EnsureContact(ctx, "a", "")
	_ = sqlStore.SetActiveBot(ctx, "a", BotGroq)
	if err := sqlStore.SetBlocked(ctx, "b", true); err != nil {
		t.Fatalf("block unknown contact: %v", err)
	}

	blocked, err := sqlStore.ListBlockedContacts(ctx)
	if err != nil || len(blocked) != 1 || blocked[0].ChatID != "b" {
		t.Fatalf("expected b blocked, got %+v err=%v", blocked, err)
	}
	stats, err := sqlStore.CountContacts(ctx)
	if err != nil {
		t.Fatalf("count contacts: %v", err)
	}
	if stats.Total != 2 || stats.Blocked != 1 || stats.Groq != 1 || stats.Gastos != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if err := sqlStore.SetBlocked(ctx, "b", false); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if blocked, _ := sqlStore.ListBlockedContacts(ctx); len(blocked) != 0 {
		t.Fatalf("expected no blocked contacts, got %+v", blocked)
	}
}

func TestListDueBriefings(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, chatID := range []string{"due", "later", "blocked", "off"} {
		_, _ = sqlStore.EnsureContact(ctx, chatID, "")
	}
	_ = sqlStore.SetNextBriefing(ctx, "due", now.Add(-time.Minute))
	_ = sqlStore.SetNextBriefing(ctx, "later", now.Add(time.Hour))
	_ = sqlStore.SetNextBriefing(ctx, "blocked", now.Add(-time.Minute))
	_ = sqlStore.SetBlocked(ctx, "blocked", true)
	_ = sqlStore.SetNextBriefing(ctx, "off", time.Time{})

	due, err := sqlStore.ListDueBriefings(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due briefings: %v", err)
	}
	if len(due) != 1 || due[0].ChatID != "due" {
		t.Fatalf("expected only due contact, got %+v", due)
	}
	if !due[0].NextBriefingAt.Equal(now.Add(-time.Minute)) {
		t.Fatalf("unexpected next briefing: %s", due[0].NextBriefingAt)
	}
}

func TestParseClockTimes(t *testing.T) {
	times, err := ParseClockTimes("7:00, 19:30,07:00,,20")
	if err != nil {
		t.Fatalf("parse times: %v", err)
	}
	want := []string{"07:00", "19:30", "20:00"}
	if len(times) != len(want) {
		t.Fatalf("expected %v, got %v", want, times)
	}
	for index := range want {
		if times[index] != want[index] {
			t.Fatalf("expected %v, got %v", want, times)
		}
	}
	for _, raw := range []string{"", "25:00", "mañana"} {
		if _, err := ParseClockTimes(raw); err == nil {
			t.Fatalf("expected %q to fail", raw)
		}
	}
}
