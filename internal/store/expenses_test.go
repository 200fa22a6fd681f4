package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExpenseRowsArePerChat(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	_, _ = sqlStore.EnsureContact(ctx, "a", "")
	_, _ = sqlStore.EnsureContact(ctx, "b", "")

	first, err := sqlStore.AppendExpense(ctx, ExpenseRecord{ChatID: "a", Description: "Almuerzo", Amount: 25000, Category: "Alimentación"})
	if err != nil {
		t.Fatalf("append expense: %v", err)
	}
	second, _ := sqlStore.AppendExpense(ctx, ExpenseRecord{ChatID: "a", Description: "Uber", Amount: 12000, Category: "Transporte", Tag: "trabajo"})
	other, _ := sqlStore.AppendExpense(ctx, ExpenseRecord{ChatID: "b", Description: "Cafe", Amount: 3000, Category: "Gastos Hormiga"})
	if first.Row != 1 || second.Row != 2 || other.Row != 1 {
		t.Fatalf("unexpected row numbers: %d %d %d", first.Row, second.Row, other.Row)
	}

	got, err := sqlStore.GetExpense(ctx, "a", 2)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if got.Description != "Uber" || got.Tag != "trabajo" || got.Amount != 12000 {
		t.Fatalf("unexpected expense: %+v", got)
	}
	if _, err := sqlStore.AppendExpense(ctx, ExpenseRecord{ChatID: "a", Description: "x", Amount: 0}); err == nil {
		t.Fatal("expected zero amount to fail")
	}
}

func TestUpdateExpense(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	_, _ = sqlStore.EnsureContact(ctx, "a", "")
	record, _ := sqlStore.AppendExpense(ctx, ExpenseRecord{ChatID: "a", Description: "Almuerzo", Amount: 25000, Category: "Alimentación"})

	record.Amount = 30000
	record.Category = "Entretenimiento"
	if err := sqlStore.UpdateExpense(ctx, record); err != nil {
		t.Fatalf("update expense: %v", err)
	}
	got, _ := sqlStore.GetExpense(ctx, "a", record.Row)
	if got.Amount != 30000 || got.Category != "Entretenimiento" {
		t.Fatalf("expected updated row, got %+v", got)
	}

	record.Row = 99
	if err := sqlStore.UpdateExpense(ctx, record); !errors.Is(err, ErrExpenseNotFound) {
		t.Fatalf("expected ErrExpenseNotFound, got %v", err)
	}
	if _, err := sqlStore.GetExpense(ctx, "a", 99); !errors.Is(err, ErrExpenseNotFound) {
		t.Fatalf("expected ErrExpenseNotFound, got %v", err)
	}
}

func TestListExpensesByRange(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	_, _ = sqlStore.EnsureContact(ctx, "a", "")
	march := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	_, _ = sqlStore.AppendExpense(ctx, ExpenseRecord{ChatID: "a", Description: "Feb", Amount: 1000, Category: "Otros", SpentAt: march.AddDate(0, -1, 0)})
	_, _ = sqlStore.AppendExpense(ctx, ExpenseRecord{ChatID: "a", Description: "Mar", Amount: 2000, Category: "Otros", SpentAt: march})

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	records, err := sqlStore.ListExpenses(ctx, "a", from, from.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(records) != 1 || records[0].Description != "Mar" {
		t.Fatalf("expected only March expense, got %+v", records)
	}
}
