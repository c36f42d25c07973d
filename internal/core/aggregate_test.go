package core

import "testing"

func tx(id string, typ TransactionType, cents int64, category string, y, m, d int) Transaction {
	return Transaction{
		ID:       id,
		WalletID: "w1",
		Type:     typ,
		Amount:   Money{Cents: cents},
		Category: category,
		Date:     NewDate(y, m, d),
	}
}

func TestBalance(t *testing.T) {
	cases := []struct {
		name string
		txs  []Transaction
		want int64
	}{
		{"empty ledger", nil, 0},
		{"income only", []Transaction{tx("1", Income, 10000, "salary", 2025, 6, 1)}, 10000},
		{"income minus expense", []Transaction{
			tx("1", Income, 10000, "salary", 2025, 6, 1),
			tx("2", Expense, 2500, "food", 2025, 6, 3),
			tx("3", Expense, 1500, "transport", 2025, 6, 4),
		}, 6000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Balance(tc.txs); got != tc.want {
				t.Fatalf("Balance = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestBalanceReplayDeterminism(t *testing.T) {
	// Running totals must match the sum at every prefix of the history.
	history := []Transaction{
		tx("1", Income, 10000, "salary", 2025, 6, 1),
		tx("2", Expense, 4000, "food", 2025, 6, 2),
		tx("3", Income, 500, "refund", 2025, 6, 3),
		tx("4", Expense, 1000, "transport", 2025, 6, 4),
	}
	var running int64
	for i, e := range history {
		if e.Type == Income {
			running += e.Amount.Cents
		} else {
			running -= e.Amount.Cents
		}
		if got := Balance(history[:i+1]); got != running {
			t.Fatalf("prefix %d: Balance = %d, want %d", i+1, got, running)
		}
	}
}

func TestCategorySpendPeriodBounds(t *testing.T) {
	start, end := PeriodBounds(2025, 6)
	txs := []Transaction{
		tx("1", Expense, 100, "food", 2025, 5, 31), // before period
		tx("2", Expense, 200, "food", 2025, 6, 1),  // first day, inclusive
		tx("3", Expense, 300, "food", 2025, 6, 30), // last day, inclusive
		tx("4", Expense, 400, "food", 2025, 7, 1),  // next month start, exclusive
		tx("5", Income, 500, "food", 2025, 6, 15),  // income never counts
		tx("6", Expense, 600, "rent", 2025, 6, 15), // other category
	}
	if got := CategorySpend(txs, "food", start, end); got != 500 {
		t.Fatalf("CategorySpend = %d, want 500", got)
	}
}

func TestPeriodBoundsDecember(t *testing.T) {
	start, end := PeriodBounds(2025, 12)
	if start.Year() != 2025 || start.Month() != 12 || start.Day() != 1 {
		t.Fatalf("unexpected start %v", start)
	}
	if end.Year() != 2026 || end.Month() != 1 || end.Day() != 1 {
		t.Fatalf("unexpected end %v", end)
	}
}

func TestExclude(t *testing.T) {
	txs := []Transaction{
		tx("1", Expense, 100, "food", 2025, 6, 1),
		tx("2", Expense, 200, "food", 2025, 6, 2),
	}
	got := Exclude(txs, "1")
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("Exclude left %v", got)
	}
	if len(Exclude(txs, "")) != 2 {
		t.Fatalf("empty id must exclude nothing")
	}
	if len(Exclude(txs, "missing")) != 2 {
		t.Fatalf("unknown id must exclude nothing")
	}
}

func TestSumBudgets(t *testing.T) {
	budgets := []Budget{
		{ID: "b1", Amount: Money{Cents: 1000}},
		{ID: "b2", Amount: Money{Cents: 2000}},
		{ID: "b3", Amount: Money{Cents: 3000}},
	}
	if got := SumBudgets(budgets, ""); got != 6000 {
		t.Fatalf("SumBudgets = %d, want 6000", got)
	}
	if got := SumBudgets(budgets, "b2"); got != 4000 {
		t.Fatalf("SumBudgets excluding b2 = %d, want 4000", got)
	}
}
