// Package memory is an in-process Store used for tests and as the
// default backend when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"walletd/internal/core"
	"walletd/internal/store"
)

type Store struct {
	mu      sync.Mutex
	wallets map[string]core.Wallet
	txs     map[string]core.Transaction
	budgets map[string]core.Budget
	audit   []store.AuditEvent
}

func New() *Store {
	return &Store{
		wallets: make(map[string]core.Wallet),
		txs:     make(map[string]core.Transaction),
		budgets: make(map[string]core.Budget),
	}
}

// InsertTransaction implements store.LedgerStore.
func (s *Store) InsertTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	s.txs[tx.ID] = tx
	return tx, nil
}

// UpdateTransaction implements store.LedgerStore.
func (s *Store) UpdateTransaction(_ context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, store.ErrNotFound
	}
	tx = tx.Applied(patch)
	s.txs[id] = tx
	return tx, nil
}

// DeleteTransaction implements store.LedgerStore.
func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

// GetTransaction implements store.LedgerStore.
func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, store.ErrNotFound
	}
	return tx, nil
}

// ListByWallet implements store.LedgerStore.
func (s *Store) ListByWallet(_ context.Context, walletID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	sortByDate(out)
	return out, nil
}

// ListByWalletCategoryPeriod implements store.LedgerStore.
func (s *Store) ListByWalletCategoryPeriod(_ context.Context, walletID, category string, year, month int) ([]core.Transaction, error) {
	start, end := core.PeriodBounds(year, month)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.WalletID != walletID || tx.Category != category {
			continue
		}
		d := tx.Date.Time
		if d.Before(start) || !d.Before(end) {
			continue
		}
		out = append(out, tx)
	}
	sortByDate(out)
	return out, nil
}

// ListFiltered implements store.LedgerStore.
func (s *Store) ListFiltered(_ context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if f.WalletID != "" && tx.WalletID != f.WalletID {
			continue
		}
		if f.Category != "" && tx.Category != f.Category {
			continue
		}
		if !f.From.IsZero() && tx.Date.Time.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && tx.Date.Time.After(f.To) {
			continue
		}
		out = append(out, tx)
	}
	sortByDate(out)
	return out, nil
}

// UpsertBudget implements store.BudgetStore.
func (s *Store) UpsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.budgets {
		if existing.WalletID == b.WalletID && existing.Category == b.Category &&
			existing.Year == b.Year && existing.Month == b.Month {
			existing.Amount = b.Amount
			s.budgets[id] = existing
			return existing, nil
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.budgets[b.ID] = b
	return b, nil
}

// DeleteBudget implements store.BudgetStore.
func (s *Store) DeleteBudget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.budgets, id)
	return nil
}

// GetBudget implements store.BudgetStore.
func (s *Store) GetBudget(_ context.Context, id string) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok {
		return core.Budget{}, store.ErrNotFound
	}
	return b, nil
}

// FindBudget implements store.BudgetStore.
func (s *Store) FindBudget(_ context.Context, walletID, category string, year, month int) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.budgets {
		if b.WalletID == walletID && b.Category == category && b.Year == year && b.Month == month {
			return b, nil
		}
	}
	return core.Budget{}, store.ErrNotFound
}

// ListBudgetsByWallet implements store.BudgetStore.
func (s *Store) ListBudgetsByWallet(_ context.Context, walletID string) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.WalletID == walletID {
			out = append(out, b)
		}
	}
	sortBudgets(out)
	return out, nil
}

// ListBudgetsFiltered implements store.BudgetStore.
func (s *Store) ListBudgetsFiltered(_ context.Context, f store.BudgetFilter) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if f.WalletID != "" && b.WalletID != f.WalletID {
			continue
		}
		if f.Year != 0 && b.Year != f.Year {
			continue
		}
		if f.Month != 0 && b.Month != f.Month {
			continue
		}
		out = append(out, b)
	}
	sortBudgets(out)
	return out, nil
}

// CreateWallet implements store.WalletStore.
func (s *Store) CreateWallet(_ context.Context, w core.Wallet) (core.Wallet, error) {
	if err := w.Validate(); err != nil {
		return core.Wallet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if len(w.Members) == 0 {
		w.Members = []string{w.OwnerID}
	}
	s.wallets[w.ID] = w
	return w, nil
}

// GetWallet implements store.WalletStore.
func (s *Store) GetWallet(_ context.Context, id string) (core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return core.Wallet{}, store.ErrNotFound
	}
	return w, nil
}

// AddMember implements store.WalletStore.
func (s *Store) AddMember(_ context.Context, walletID, memberID string) (core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return core.Wallet{}, store.ErrNotFound
	}
	if !w.HasMember(memberID) {
		w.Members = append(w.Members, memberID)
		s.wallets[walletID] = w
	}
	return w, nil
}

// ListWalletsByMember implements store.WalletStore.
func (s *Store) ListWalletsByMember(_ context.Context, memberID string) ([]core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Wallet
	for _, w := range s.wallets {
		if w.HasMember(memberID) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteWallet implements store.WalletStore. Transactions and budgets
// under the wallet are removed with it, matching the cascading deletes
// of the database backends.
func (s *Store) DeleteWallet(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.wallets, id)
	for txID, tx := range s.txs {
		if tx.WalletID == id {
			delete(s.txs, txID)
		}
	}
	for bID, b := range s.budgets {
		if b.WalletID == id {
			delete(s.budgets, bID)
		}
	}
	return nil
}

// AppendAuditEvent implements store.AuditStore.
func (s *Store) AppendAuditEvent(_ context.Context, ev store.AuditEvent) (store.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.audit) + 1)
	s.audit = append(s.audit, ev)
	return ev, nil
}

// ListAuditEvents implements store.AuditStore. Newest first.
func (s *Store) ListAuditEvents(_ context.Context, walletID string, limit int) ([]store.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.AuditEvent
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if s.audit[i].WalletID == walletID {
			out = append(out, s.audit[i])
		}
	}
	return out, nil
}

func sortByDate(txs []core.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Time.Equal(txs[j].Date.Time) {
			return txs[i].Date.Time.Before(txs[j].Date.Time)
		}
		return txs[i].ID < txs[j].ID
	})
}

func sortBudgets(bs []core.Budget) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Year != bs[j].Year {
			return bs[i].Year < bs[j].Year
		}
		if bs[i].Month != bs[j].Month {
			return bs[i].Month < bs[j].Month
		}
		return bs[i].Category < bs[j].Category
	})
}
