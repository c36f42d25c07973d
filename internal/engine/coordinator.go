package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"walletd/internal/core"
	"walletd/internal/store"
)

// mutationState tracks a mutation through the coordinator. States are
// internal; callers only ever observe the terminal result.
type mutationState string

const (
	stateReceived    mutationState = "received"
	stateAggregating mutationState = "aggregating"
	stateEvaluated   mutationState = "evaluated"
	stateCommitted   mutationState = "committed"
	stateRejected    mutationState = "rejected"
)

type (
	// TransactionRequest is a proposed ledger mutation as submitted by a
	// caller. Amount is in minor units; Category may arrive in any case
	// and is normalized before evaluation.
	TransactionRequest struct {
		WalletID    string
		ActorID     string
		Type        core.TransactionType
		AmountCents int64
		Category    string
		Date        core.Date
		Description string
	}

	// BudgetRequest is a proposed budget upsert.
	BudgetRequest struct {
		WalletID    string
		ActorID     string
		Category    string
		AmountCents int64
		Year        int
		Month       int
	}

	// TransactionResult is the terminal outcome of a transaction
	// mutation: exactly one of Committed or Rejection is set. Warnings
	// accompany a commit and never block it.
	TransactionResult struct {
		Committed *core.Transaction
		Rejection *Rejection
		Warnings  []Warning
	}

	// BudgetResult is the terminal outcome of a budget mutation.
	BudgetResult struct {
		Committed *core.Budget
		Rejection *Rejection
		Warnings  []Warning
	}
)

// Coordinator runs every mutation through a per-wallet atomic scope:
// aggregate read, rule evaluation, and store write happen while the
// wallet's mutex is held, so concurrent submissions cannot race past the
// same budget or balance limit. Reads for reporting bypass the scope and
// see eventually-consistent snapshots.
type Coordinator struct {
	store store.Store
	locks *walletLocks
	now   func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock injects the time source used for budget period rules.
// Production uses time.Now; tests pin a fixed instant.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(st store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store: st,
		locks: newWalletLocks(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitTransaction validates and, when allowed, commits a new ledger
// entry inside the wallet's mutation scope.
func (c *Coordinator) SubmitTransaction(ctx context.Context, req TransactionRequest) (TransactionResult, error) {
	req.Category = core.NormalizeCategory(req.Category)
	if rej := validateTransactionRequest(req); rej != nil {
		return TransactionResult{Rejection: rej}, nil
	}

	mu := c.locks.get(req.WalletID)
	mu.Lock()
	defer mu.Unlock()

	c.transition(ctx, stateReceived, stateAggregating, "transaction", req.WalletID)
	agg, err := c.transactionAggregates(ctx, req, "")
	if err != nil {
		return TransactionResult{}, err
	}

	c.transition(ctx, stateAggregating, stateEvaluated, "transaction", req.WalletID)
	decision := EvaluateTransaction(req.Type, req.AmountCents, agg)
	if !decision.Allowed() {
		c.transition(ctx, stateEvaluated, stateRejected, "transaction", req.WalletID)
		return TransactionResult{Rejection: decision.Rejection}, nil
	}

	committed, err := c.store.InsertTransaction(ctx, core.Transaction{
		WalletID:    req.WalletID,
		Type:        req.Type,
		Amount:      core.Money{Cents: req.AmountCents},
		Category:    req.Category,
		Date:        req.Date,
		Description: req.Description,
	})
	if err != nil {
		return TransactionResult{}, fmt.Errorf("insert transaction: %w", err)
	}
	c.transition(ctx, stateEvaluated, stateCommitted, "transaction", req.WalletID)
	return TransactionResult{Committed: &committed, Warnings: decision.Warnings}, nil
}

// UpdateTransaction re-validates an existing entry with the proposed new
// values, excluding the prior value from every aggregate so nothing is
// double-counted. The entry's wallet cannot change.
func (c *Coordinator) UpdateTransaction(ctx context.Context, id string, req TransactionRequest) (TransactionResult, error) {
	req.Category = core.NormalizeCategory(req.Category)

	existing, err := c.store.GetTransaction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return TransactionResult{Rejection: &Rejection{Code: CodeNotFound, Message: "transaction not found"}}, nil
	}
	if err != nil {
		return TransactionResult{}, fmt.Errorf("get transaction: %w", err)
	}
	req.WalletID = existing.WalletID
	if rej := validateTransactionRequest(req); rej != nil {
		return TransactionResult{Rejection: rej}, nil
	}

	mu := c.locks.get(existing.WalletID)
	mu.Lock()
	defer mu.Unlock()

	c.transition(ctx, stateReceived, stateAggregating, "transaction", existing.WalletID)
	agg, err := c.transactionAggregates(ctx, req, existing.ID)
	if err != nil {
		return TransactionResult{}, err
	}

	c.transition(ctx, stateAggregating, stateEvaluated, "transaction", existing.WalletID)
	decision := EvaluateTransaction(req.Type, req.AmountCents, agg)
	if !decision.Allowed() {
		c.transition(ctx, stateEvaluated, stateRejected, "transaction", existing.WalletID)
		return TransactionResult{Rejection: decision.Rejection}, nil
	}

	committed, err := c.store.UpdateTransaction(ctx, id, core.TransactionPatch{
		Type:        req.Type,
		Amount:      core.Money{Cents: req.AmountCents},
		Category:    req.Category,
		Date:        req.Date,
		Description: req.Description,
	})
	if err != nil {
		return TransactionResult{}, fmt.Errorf("update transaction: %w", err)
	}
	c.transition(ctx, stateEvaluated, stateCommitted, "transaction", existing.WalletID)
	return TransactionResult{Committed: &committed, Warnings: decision.Warnings}, nil
}

// DeleteTransaction removes a ledger entry. Removing an entry violates
// no invariant, so the engine always allows it once membership checks
// pass; dependent aggregates are derived and need no repair.
func (c *Coordinator) DeleteTransaction(ctx context.Context, actorID, id string) (TransactionResult, error) {
	existing, err := c.store.GetTransaction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return TransactionResult{Rejection: &Rejection{Code: CodeNotFound, Message: "transaction not found"}}, nil
	}
	if err != nil {
		return TransactionResult{}, fmt.Errorf("get transaction: %w", err)
	}

	mu := c.locks.get(existing.WalletID)
	mu.Lock()
	defer mu.Unlock()

	wallet, err := c.loadWallet(ctx, existing.WalletID)
	if err != nil {
		return TransactionResult{}, err
	}
	if wallet == nil || !wallet.HasMember(actorID) {
		return TransactionResult{Rejection: &Rejection{Code: CodeNoWallet, Message: "wallet not found or actor is not a member"}}, nil
	}

	if err := c.store.DeleteTransaction(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TransactionResult{Rejection: &Rejection{Code: CodeNotFound, Message: "transaction not found"}}, nil
		}
		return TransactionResult{}, fmt.Errorf("delete transaction: %w", err)
	}
	return TransactionResult{Committed: &existing}, nil
}

// PreviewTransaction evaluates a proposed entry without committing
// anything. It reads outside the mutation scope: the answer is an
// advisory snapshot for UX hints, and the authoritative check runs again
// at submit time.
func (c *Coordinator) PreviewTransaction(ctx context.Context, req TransactionRequest) (Decision, error) {
	req.Category = core.NormalizeCategory(req.Category)
	if rej := validateTransactionRequest(req); rej != nil {
		return Decision{Rejection: rej}, nil
	}
	agg, err := c.transactionAggregates(ctx, req, "")
	if err != nil {
		return Decision{}, err
	}
	return EvaluateTransaction(req.Type, req.AmountCents, agg), nil
}

// SubmitBudget validates and, when allowed, upserts a budget inside the
// wallet's mutation scope. A second submit for the same (wallet,
// category, year, month) updates the existing budget.
func (c *Coordinator) SubmitBudget(ctx context.Context, req BudgetRequest) (BudgetResult, error) {
	req.Category = core.NormalizeCategory(req.Category)
	proposed := core.Budget{
		WalletID: req.WalletID,
		Category: req.Category,
		Amount:   core.Money{Cents: req.AmountCents},
		Year:     req.Year,
		Month:    req.Month,
	}
	if err := proposed.Validate(); err != nil {
		return BudgetResult{Rejection: &Rejection{Code: CodeInvalidInput, Message: err.Error()}}, nil
	}

	mu := c.locks.get(req.WalletID)
	mu.Lock()
	defer mu.Unlock()

	c.transition(ctx, stateReceived, stateAggregating, "budget", req.WalletID)
	wallet, err := c.loadWallet(ctx, req.WalletID)
	if err != nil {
		return BudgetResult{}, err
	}

	agg := BudgetAggregates{Wallet: wallet, ActorID: req.ActorID, Now: c.now()}
	if wallet != nil {
		txs, err := c.store.ListByWallet(ctx, req.WalletID)
		if err != nil {
			return BudgetResult{}, fmt.Errorf("list transactions: %w", err)
		}
		agg.Balance = core.Balance(txs)

		budgets, err := c.store.ListBudgetsByWallet(ctx, req.WalletID)
		if err != nil {
			return BudgetResult{}, fmt.Errorf("list budgets: %w", err)
		}
		excludeID := ""
		if existing, err := c.store.FindBudget(ctx, req.WalletID, req.Category, req.Year, req.Month); err == nil {
			excludeID = existing.ID
		} else if !errors.Is(err, store.ErrNotFound) {
			return BudgetResult{}, fmt.Errorf("find budget: %w", err)
		}
		agg.OtherBudgets = core.SumBudgets(budgets, excludeID)
	}

	c.transition(ctx, stateAggregating, stateEvaluated, "budget", req.WalletID)
	decision := EvaluateBudget(proposed, agg)
	if !decision.Allowed() {
		c.transition(ctx, stateEvaluated, stateRejected, "budget", req.WalletID)
		return BudgetResult{Rejection: decision.Rejection}, nil
	}

	committed, err := c.store.UpsertBudget(ctx, proposed)
	if err != nil {
		return BudgetResult{}, fmt.Errorf("upsert budget: %w", err)
	}
	c.transition(ctx, stateEvaluated, stateCommitted, "budget", req.WalletID)
	return BudgetResult{Committed: &committed, Warnings: decision.Warnings}, nil
}

// DeleteBudget removes a budget definition after a membership check.
func (c *Coordinator) DeleteBudget(ctx context.Context, actorID, id string) (BudgetResult, error) {
	existing, err := c.store.GetBudget(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return BudgetResult{Rejection: &Rejection{Code: CodeNotFound, Message: "budget not found"}}, nil
	}
	if err != nil {
		return BudgetResult{}, fmt.Errorf("get budget: %w", err)
	}

	mu := c.locks.get(existing.WalletID)
	mu.Lock()
	defer mu.Unlock()

	wallet, err := c.loadWallet(ctx, existing.WalletID)
	if err != nil {
		return BudgetResult{}, err
	}
	if wallet == nil || !wallet.HasMember(actorID) {
		return BudgetResult{Rejection: &Rejection{Code: CodeNoWallet, Message: "wallet not found or actor is not a member"}}, nil
	}

	if err := c.store.DeleteBudget(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return BudgetResult{Rejection: &Rejection{Code: CodeNotFound, Message: "budget not found"}}, nil
		}
		return BudgetResult{}, fmt.Errorf("delete budget: %w", err)
	}
	return BudgetResult{Committed: &existing}, nil
}

// transactionAggregates reads the snapshot a transaction evaluation
// needs. excludeID names the entry being updated; its prior value is
// removed from every sum before evaluation.
func (c *Coordinator) transactionAggregates(ctx context.Context, req TransactionRequest, excludeID string) (TransactionAggregates, error) {
	agg := TransactionAggregates{ActorID: req.ActorID}

	wallet, err := c.loadWallet(ctx, req.WalletID)
	if err != nil {
		return TransactionAggregates{}, err
	}
	agg.Wallet = wallet
	if wallet == nil {
		return agg, nil
	}

	txs, err := c.store.ListByWallet(ctx, req.WalletID)
	if err != nil {
		return TransactionAggregates{}, fmt.Errorf("list transactions: %w", err)
	}
	txs = core.Exclude(txs, excludeID)
	agg.Balance = core.Balance(txs)

	if req.Type == core.Expense {
		year, month := req.Date.Year(), req.Date.Month()
		budget, err := c.store.FindBudget(ctx, req.WalletID, req.Category, year, month)
		switch {
		case err == nil:
			agg.Budget = &budget
			start, end := core.PeriodBounds(year, month)
			agg.Spend = core.CategorySpend(txs, req.Category, start, end)
		case errors.Is(err, store.ErrNotFound):
			// no budget for this category-period; spend is unchecked
		default:
			return TransactionAggregates{}, fmt.Errorf("find budget: %w", err)
		}
	}

	for _, t := range txs {
		if t.Type == req.Type && t.Category == req.Category &&
			t.Amount.Cents == req.AmountCents && t.Date.SameDay(req.Date) {
			agg.Duplicate = true
			break
		}
	}
	return agg, nil
}

// loadWallet maps store.ErrNotFound to a nil wallet so the rule set can
// produce the NoWallet rejection; other errors are real failures.
func (c *Coordinator) loadWallet(ctx context.Context, walletID string) (*core.Wallet, error) {
	wallet, err := c.store.GetWallet(ctx, walletID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &wallet, nil
}

// validateTransactionRequest covers the input family only: shape errors
// rejected before any store access. Amount bounds are an engine rule
// (MinimumAmount) and are deliberately not checked here so the rule
// order stays wallet check first, amount check second.
func validateTransactionRequest(req TransactionRequest) *Rejection {
	if req.WalletID == "" {
		return &Rejection{Code: CodeInvalidInput, Message: core.ErrEmptyWallet.Error()}
	}
	if err := req.Type.Validate(); err != nil {
		return &Rejection{Code: CodeInvalidInput, Message: err.Error()}
	}
	if req.Category == "" {
		return &Rejection{Code: CodeInvalidInput, Message: core.ErrEmptyCategory.Error()}
	}
	if err := req.Date.Validate(); err != nil {
		return &Rejection{Code: CodeInvalidInput, Message: err.Error()}
	}
	if len(req.Description) > 200 {
		return &Rejection{Code: CodeInvalidInput, Message: "description too long (max 200 characters)"}
	}
	return nil
}

func (c *Coordinator) transition(ctx context.Context, from, to mutationState, kind, walletID string) {
	slog.DebugContext(ctx, "Mutation state transition",
		"kind", kind,
		"wallet_id", walletID,
		"from", string(from),
		"to", string(to))
}
