// Package sqlite implements the store contracts on an embedded SQLite
// database. Schema lives in migrations/ and is applied at startup.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"walletd/internal/core"
	"walletd/internal/store"
)

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// SQLite leaves foreign_keys off unless the connection asks for it;
	// the wallet ON DELETE CASCADE depends on it. The DSN pragma applies
	// to every connection in the pool.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, wallet_id, type, amount_cents, category, occurred_on, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.WalletID, string(tx.Type), tx.Amount.Cents, tx.Category,
		tx.Date.Format(dateLayout), tx.Description)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		 SET type = ?, amount_cents = ?, category = ?, occurred_on = ?, description = ?
		 WHERE id = ?`,
		string(patch.Type), patch.Amount.Cents, patch.Category,
		patch.Date.Format(dateLayout), patch.Description, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.Transaction{}, store.ErrNotFound
	}
	return s.GetTransaction(ctx, id)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, wallet_id, type, amount_cents, category, occurred_on, description
		 FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

func (s *Store) ListByWallet(ctx context.Context, walletID string) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wallet_id, type, amount_cents, category, occurred_on, description
		 FROM transactions WHERE wallet_id = ?
		 ORDER BY occurred_on, id`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (s *Store) ListByWalletCategoryPeriod(ctx context.Context, walletID, category string, year, month int) ([]core.Transaction, error) {
	start, end := core.PeriodBounds(year, month)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wallet_id, type, amount_cents, category, occurred_on, description
		 FROM transactions
		 WHERE wallet_id = ? AND category = ? AND occurred_on >= ? AND occurred_on < ?
		 ORDER BY occurred_on, id`,
		walletID, category, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions by period: %w", err)
	}
	return collectTransactions(rows)
}

func (s *Store) ListFiltered(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT id, wallet_id, type, amount_cents, category, occurred_on, description
	          FROM transactions WHERE 1=1`
	var args []any
	if f.WalletID != "" {
		query += ` AND wallet_id = ?`
		args = append(args, f.WalletID)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if !f.From.IsZero() {
		query += ` AND occurred_on >= ?`
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		query += ` AND occurred_on <= ?`
		args = append(args, f.To.Format(dateLayout))
	}
	query += ` ORDER BY occurred_on, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list filtered transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (s *Store) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	existing, err := s.FindBudget(ctx, b.WalletID, b.Category, b.Year, b.Month)
	switch {
	case err == nil:
		_, err := s.db.ExecContext(ctx,
			`UPDATE budgets SET amount_cents = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			b.Amount.Cents, existing.ID)
		if err != nil {
			return core.Budget{}, fmt.Errorf("update budget: %w", err)
		}
		b.ID = existing.ID
		return b, nil
	case errors.Is(err, store.ErrNotFound):
		b.ID = uuid.NewString()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO budgets (id, wallet_id, category, amount_cents, year, month)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, b.WalletID, b.Category, b.Amount.Cents, b.Year, b.Month)
		if err != nil {
			return core.Budget{}, fmt.Errorf("insert budget: %w", err)
		}
		return b, nil
	default:
		return core.Budget{}, err
	}
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, wallet_id, category, amount_cents, year, month FROM budgets WHERE id = ?`, id)
	return scanBudget(row)
}

func (s *Store) FindBudget(ctx context.Context, walletID, category string, year, month int) (core.Budget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, wallet_id, category, amount_cents, year, month
		 FROM budgets WHERE wallet_id = ? AND category = ? AND year = ? AND month = ?`,
		walletID, category, year, month)
	return scanBudget(row)
}

func (s *Store) ListBudgetsByWallet(ctx context.Context, walletID string) ([]core.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wallet_id, category, amount_cents, year, month
		 FROM budgets WHERE wallet_id = ?
		 ORDER BY year, month, category`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return collectBudgets(rows)
}

func (s *Store) ListBudgetsFiltered(ctx context.Context, f store.BudgetFilter) ([]core.Budget, error) {
	query := `SELECT id, wallet_id, category, amount_cents, year, month FROM budgets WHERE 1=1`
	var args []any
	if f.WalletID != "" {
		query += ` AND wallet_id = ?`
		args = append(args, f.WalletID)
	}
	if f.Year != 0 {
		query += ` AND year = ?`
		args = append(args, f.Year)
	}
	if f.Month != 0 {
		query += ` AND month = ?`
		args = append(args, f.Month)
	}
	query += ` ORDER BY year, month, category`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list filtered budgets: %w", err)
	}
	return collectBudgets(rows)
}

func (s *Store) CreateWallet(ctx context.Context, w core.Wallet) (core.Wallet, error) {
	if err := w.Validate(); err != nil {
		return core.Wallet{}, err
	}
	w.ID = uuid.NewString()
	if len(w.Members) == 0 {
		w.Members = []string{w.OwnerID}
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Wallet{}, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx,
		`INSERT INTO wallets (id, name, owner_id) VALUES (?, ?, ?)`,
		w.ID, w.Name, w.OwnerID); err != nil {
		return core.Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	for _, m := range w.Members {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO wallet_members (wallet_id, member_id) VALUES (?, ?)`,
			w.ID, m); err != nil {
			return core.Wallet{}, fmt.Errorf("insert wallet member: %w", err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return core.Wallet{}, fmt.Errorf("commit wallet: %w", err)
	}
	return w, nil
}

func (s *Store) GetWallet(ctx context.Context, id string) (core.Wallet, error) {
	var w core.Wallet
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id FROM wallets WHERE id = ?`, id).
		Scan(&w.ID, &w.Name, &w.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Wallet{}, store.ErrNotFound
	}
	if err != nil {
		return core.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id FROM wallet_members WHERE wallet_id = ? ORDER BY member_id`, id)
	if err != nil {
		return core.Wallet{}, fmt.Errorf("get wallet members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return core.Wallet{}, fmt.Errorf("scan wallet member: %w", err)
		}
		w.Members = append(w.Members, m)
	}
	if err := rows.Err(); err != nil {
		return core.Wallet{}, fmt.Errorf("iterate wallet members: %w", err)
	}
	return w, nil
}

func (s *Store) AddMember(ctx context.Context, walletID, memberID string) (core.Wallet, error) {
	if _, err := s.GetWallet(ctx, walletID); err != nil {
		return core.Wallet{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO wallet_members (wallet_id, member_id) VALUES (?, ?)`,
		walletID, memberID); err != nil {
		return core.Wallet{}, fmt.Errorf("add wallet member: %w", err)
	}
	return s.GetWallet(ctx, walletID)
}

func (s *Store) ListWalletsByMember(ctx context.Context, memberID string) ([]core.Wallet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT w.id FROM wallets w
		 JOIN wallet_members m ON m.wallet_id = w.id
		 WHERE m.member_id = ?
		 ORDER BY w.created_at, w.id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list wallets by member: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}

	wallets := make([]core.Wallet, 0, len(ids))
	for _, id := range ids {
		w, err := s.GetWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

func (s *Store) DeleteWallet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wallets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AppendAuditEvent(ctx context.Context, ev store.AuditEvent) (store.AuditEvent, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (kind, operation, wallet_id, actor_id, entity_id, amount_cents, category, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Kind, ev.Operation, ev.WalletID, ev.ActorID, ev.EntityID,
		ev.AmountCents, ev.Category, ev.OccurredAt.UTC().Format(time.RFC3339))
	if err != nil {
		return store.AuditEvent{}, fmt.Errorf("append audit event: %w", err)
	}
	ev.ID, err = res.LastInsertId()
	if err != nil {
		return store.AuditEvent{}, fmt.Errorf("last insert id: %w", err)
	}
	return ev, nil
}

func (s *Store) ListAuditEvents(ctx context.Context, walletID string, limit int) ([]store.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, operation, wallet_id, actor_id, entity_id, amount_cents, category, occurred_at
		 FROM audit_events WHERE wallet_id = ?
		 ORDER BY id DESC LIMIT ?`, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []store.AuditEvent
	for rows.Next() {
		var ev store.AuditEvent
		var occurredAt string
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Operation, &ev.WalletID, &ev.ActorID,
			&ev.EntityID, &ev.AmountCents, &ev.Category, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.OccurredAt, err = time.Parse(time.RFC3339, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var typ, occurredOn string
	err := row.Scan(&tx.ID, &tx.WalletID, &typ, &tx.Amount.Cents, &tx.Category, &occurredOn, &tx.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Type = core.TransactionType(typ)
	day, err := time.Parse(dateLayout, occurredOn)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date: %w", err)
	}
	tx.Date = core.NewDate(day.Year(), int(day.Month()), day.Day())
	return tx, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var txs []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func scanBudget(row rowScanner) (core.Budget, error) {
	var b core.Budget
	err := row.Scan(&b.ID, &b.WalletID, &b.Category, &b.Amount.Cents, &b.Year, &b.Month)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, store.ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("scan budget: %w", err)
	}
	return b, nil
}

func collectBudgets(rows *sql.Rows) ([]core.Budget, error) {
	defer rows.Close()
	var bs []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		bs = append(bs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return bs, nil
}
