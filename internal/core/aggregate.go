package core

import "time"

// Pure aggregation over ledger entries. These functions take the slice
// they are given and perform no I/O; callers are responsible for reading
// the entries inside whatever atomic scope the mutation requires.

// Balance returns income minus expense over the given transactions.
// The result may be negative for an inconsistent ledger; committed
// ledgers never go below zero because the engine rejects the write.
func Balance(txs []Transaction) int64 {
	var total int64
	for _, t := range txs {
		switch t.Type {
		case Income:
			total += t.Amount.Cents
		case Expense:
			total -= t.Amount.Cents
		}
	}
	return total
}

// PeriodBounds returns the half-open interval [first day of month,
// first day of next month) for a calendar period. The exclusive upper
// bound avoids off-by-one handling of month lengths.
func PeriodBounds(year, month int) (start, end time.Time) {
	start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// CategorySpend sums expense amounts for one canonical category whose
// date falls within [start, end). Income entries never count.
func CategorySpend(txs []Transaction, category string, start, end time.Time) int64 {
	var total int64
	for _, t := range txs {
		if t.Type != Expense || t.Category != category {
			continue
		}
		d := t.Date.Time
		if d.Before(start) || !d.Before(end) {
			continue
		}
		total += t.Amount.Cents
	}
	return total
}

// Exclude returns the transactions minus the entry with the given ID.
// Used when validating an update: the prior value of the mutated entry
// must not be double-counted against the proposed new value.
func Exclude(txs []Transaction, id string) []Transaction {
	if id == "" {
		return txs
	}
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.ID == id {
			continue
		}
		out = append(out, t)
	}
	return out
}

// SumBudgets totals budget amounts, skipping the budget with excludeID
// (the one being updated, if any).
func SumBudgets(budgets []Budget, excludeID string) int64 {
	var total int64
	for _, b := range budgets {
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		total += b.Amount.Cents
	}
	return total
}
