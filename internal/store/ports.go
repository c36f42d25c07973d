// Package store defines the persistence contracts the engine depends on.
// Implementations live in the memory, sqlite, and mongo subpackages; the
// engine is backend-agnostic and only ever sees these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"walletd/internal/core"
)

// ErrNotFound is returned when a wallet, transaction, or budget does not
// exist. Callers map it to not-found responses, distinct from invariant
// rejections.
var ErrNotFound = errors.New("not found")

type (
	// LedgerStore is the append-mostly collection of transaction entries.
	// Ownership checks happen in the engine before a call reaches the
	// store; the store itself is identity-agnostic.
	LedgerStore interface {
		InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		ListByWallet(ctx context.Context, walletID string) ([]core.Transaction, error)
		ListByWalletCategoryPeriod(ctx context.Context, walletID, category string, year, month int) ([]core.Transaction, error)
		// ListFiltered serves the reporting surface; reads are
		// eventually-consistent snapshots outside the mutation scope.
		ListFiltered(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	}

	// BudgetStore holds budget definitions, unique per
	// (wallet, category, year, month).
	BudgetStore interface {
		// UpsertBudget inserts, or updates in place when a budget for the
		// same (wallet, category, year, month) already exists.
		UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		DeleteBudget(ctx context.Context, id string) error
		GetBudget(ctx context.Context, id string) (core.Budget, error)
		FindBudget(ctx context.Context, walletID, category string, year, month int) (core.Budget, error)
		ListBudgetsByWallet(ctx context.Context, walletID string) ([]core.Budget, error)
		ListBudgetsFiltered(ctx context.Context, f BudgetFilter) ([]core.Budget, error)
	}

	// WalletStore holds wallet identity and membership.
	WalletStore interface {
		CreateWallet(ctx context.Context, w core.Wallet) (core.Wallet, error)
		GetWallet(ctx context.Context, id string) (core.Wallet, error)
		AddMember(ctx context.Context, walletID, memberID string) (core.Wallet, error)
		ListWalletsByMember(ctx context.Context, memberID string) ([]core.Wallet, error)
		DeleteWallet(ctx context.Context, id string) error
	}

	// Store bundles the three contracts; every backend provides all of
	// them.
	Store interface {
		LedgerStore
		BudgetStore
		WalletStore
	}

	// AuditEvent records one committed mutation for the audit trail. The
	// worker appends these from the mutation event stream; the ledger
	// itself is never derived from them.
	AuditEvent struct {
		ID          int64
		Kind        string // "transaction" or "budget"
		Operation   string // "create", "update", "delete"
		WalletID    string
		ActorID     string
		EntityID    string
		AmountCents int64
		Category    string
		OccurredAt  time.Time
	}

	// AuditStore is the append-only audit trail. Kept separate from
	// Store: the engine never touches it, only the audit worker and the
	// history endpoint do.
	AuditStore interface {
		AppendAuditEvent(ctx context.Context, ev AuditEvent) (AuditEvent, error)
		ListAuditEvents(ctx context.Context, walletID string, limit int) ([]AuditEvent, error)
	}

	// TransactionFilter narrows reporting queries. Zero values mean "any".
	TransactionFilter struct {
		WalletID string
		Category string // canonical form
		From     time.Time
		To       time.Time // inclusive upper bound, matching the original API
	}

	// BudgetFilter narrows budget listings. Zero values mean "any".
	BudgetFilter struct {
		WalletID string
		Year     int
		Month    int
	}
)
