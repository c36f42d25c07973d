package memory

import (
	"context"
	"errors"
	"testing"

	"walletd/internal/core"
	"walletd/internal/store"
)

func TestUpsertBudgetUpdatesExistingKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.UpsertBudget(ctx, core.Budget{
		WalletID: "w1", Category: "food", Amount: core.Money{Cents: 4000}, Year: 2025, Month: 6,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second, err := s.UpsertBudget(ctx, core.Budget{
		WalletID: "w1", Category: "food", Amount: core.Money{Cents: 5000}, Year: 2025, Month: 6,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected update in place, got new id %s != %s", second.ID, first.ID)
	}
	if second.Amount.Cents != 5000 {
		t.Fatalf("amount not updated: %d", second.Amount.Cents)
	}

	all, err := s.ListBudgetsByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one budget row, got %d", len(all))
	}
}

func TestUpsertBudgetDistinctPeriods(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, month := range []int{5, 6} {
		if _, err := s.UpsertBudget(ctx, core.Budget{
			WalletID: "w1", Category: "food", Amount: core.Money{Cents: 4000}, Year: 2025, Month: month,
		}); err != nil {
			t.Fatalf("upsert month %d: %v", month, err)
		}
	}

	all, _ := s.ListBudgetsByWallet(ctx, "w1")
	if len(all) != 2 {
		t.Fatalf("expected two budget rows, got %d", len(all))
	}
}

func TestLedgerPeriodQuery(t *testing.T) {
	s := New()
	ctx := context.Background()

	entries := []core.Transaction{
		{WalletID: "w1", Type: core.Expense, Amount: core.Money{Cents: 100}, Category: "food", Date: core.NewDate(2025, 5, 31)},
		{WalletID: "w1", Type: core.Expense, Amount: core.Money{Cents: 200}, Category: "food", Date: core.NewDate(2025, 6, 1)},
		{WalletID: "w1", Type: core.Expense, Amount: core.Money{Cents: 300}, Category: "food", Date: core.NewDate(2025, 6, 30)},
		{WalletID: "w1", Type: core.Expense, Amount: core.Money{Cents: 400}, Category: "rent", Date: core.NewDate(2025, 6, 15)},
		{WalletID: "w2", Type: core.Expense, Amount: core.Money{Cents: 500}, Category: "food", Date: core.NewDate(2025, 6, 15)},
	}
	for _, e := range entries {
		if _, err := s.InsertTransaction(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := s.ListByWalletCategoryPeriod(ctx, "w1", "food", 2025, 6)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries in period, got %d", len(got))
	}
}

func TestNotFoundErrors(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetTransaction(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteTransaction(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.UpdateTransaction(ctx, "missing", core.TransactionPatch{
		Type: core.Expense, Amount: core.Money{Cents: 1}, Category: "c", Date: core.NewDate(2025, 1, 1),
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetWallet(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindBudget(ctx, "w", "c", 2025, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWalletMembership(t *testing.T) {
	s := New()
	ctx := context.Background()

	w, err := s.CreateWallet(ctx, core.Wallet{Name: "shared", OwnerID: "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !w.HasMember("u1") {
		t.Fatalf("owner must be first member")
	}

	w, err = s.AddMember(ctx, w.ID, "u2")
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if !w.HasMember("u2") {
		t.Fatalf("u2 not added")
	}

	// Joining twice is a no-op.
	w, _ = s.AddMember(ctx, w.ID, "u2")
	if len(w.Members) != 2 {
		t.Fatalf("duplicate member added: %v", w.Members)
	}

	mine, _ := s.ListWalletsByMember(ctx, "u2")
	if len(mine) != 1 {
		t.Fatalf("expected one wallet for u2, got %d", len(mine))
	}
}

func TestDeleteWalletCascades(t *testing.T) {
	s := New()
	ctx := context.Background()

	w, err := s.CreateWallet(ctx, core.Wallet{Name: "shared", OwnerID: "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := s.CreateWallet(ctx, core.Wallet{Name: "other", OwnerID: "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tx, err := s.InsertTransaction(ctx, core.Transaction{
		WalletID: w.ID, Type: core.Income, Amount: core.Money{Cents: 5000},
		Category: "salary", Date: core.NewDate(2025, 6, 1),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	kept, err := s.InsertTransaction(ctx, core.Transaction{
		WalletID: other.ID, Type: core.Income, Amount: core.Money{Cents: 100},
		Category: "salary", Date: core.NewDate(2025, 6, 1),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.UpsertBudget(ctx, core.Budget{
		WalletID: w.ID, Category: "food", Amount: core.Money{Cents: 3000}, Year: 2025, Month: 6,
	}); err != nil {
		t.Fatalf("upsert budget: %v", err)
	}

	if err := s.DeleteWallet(ctx, w.ID); err != nil {
		t.Fatalf("delete wallet: %v", err)
	}

	if _, err := s.GetTransaction(ctx, tx.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("transaction survived wallet delete: %v", err)
	}
	if _, err := s.FindBudget(ctx, w.ID, "food", 2025, 6); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("budget survived wallet delete: %v", err)
	}
	// Other wallets keep their entries.
	if _, err := s.GetTransaction(ctx, kept.ID); err != nil {
		t.Fatalf("unrelated transaction removed: %v", err)
	}
}
