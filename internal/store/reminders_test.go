package store

import (
	"context"
	"testing"
	"time"
)

func TestReminderLifecycle(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	_, _ = sqlStore.EnsureContact(ctx, "a", "")
	now := time.Now().UTC()

	first, err := sqlStore.CreateReminder(ctx, CreateReminderInput{ChatID: "a", Text: "llamar a mamá", DueAt: now.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if _, err := sqlStore.CreateReminder(ctx, CreateReminderInput{ChatID: "a", Text: "pagar luz", DueAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if _, err := sqlStore.CreateReminder(ctx, CreateReminderInput{ChatID: "a", Text: " "}); err == nil {
		t.Fatal("expected invalid reminder to fail")
	}

	pending, err := sqlStore.ListPendingReminders(ctx, "a")
	if err != nil || len(pending) != 2 || pending[0].ID != first.ID {
		t.Fatalf("expected two pending reminders soonest first, got %+v err=%v", pending, err)
	}

	due, err := sqlStore.ListDueReminders(ctx, now, 10)
	if err != nil || len(due) != 1 || due[0].Text != "llamar a mamá" {
		t.Fatalf("expected one due reminder, got %+v err=%v", due, err)
	}

	fired, err := sqlStore.MarkReminderFired(ctx, first.ID, now)
	if err != nil || !fired {
		t.Fatalf("expected reminder to be marked, fired=%v err=%v", fired, err)
	}
	if fired, _ := sqlStore.MarkReminderFired(ctx, first.ID, now); fired {
		t.Fatal("expected second mark to be a no-op")
	}
	if due, _ := sqlStore.ListDueReminders(ctx, now, 10); len(due) != 0 {
		t.Fatalf("expected no due reminders after firing, got %+v", due)
	}
}

func TestDueRemindersSkipBlockedContacts(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	_, _ = sqlStore.EnsureContact(ctx, "a", "")
	_, _ = sqlStore.CreateReminder(ctx, CreateReminderInput{ChatID: "a", Text: "tomar agua", DueAt: time.Now().Add(-time.Minute)})
	_ = sqlStore.SetBlocked(ctx, "a", true)

	if due, _ := sqlStore.ListDueReminders(ctx, time.Now(), 10); len(due) != 0 {
		t.Fatalf("expected blocked contact to be skipped, got %+v", due)
	}
}
