// Package services orchestrates the enforcement engine, the store, the
// audit event stream, and read-side snapshot caching behind one facade
// the HTTP layer calls.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"walletd/internal/amqp"
	"walletd/internal/cache"
	"walletd/internal/core"
	"walletd/internal/engine"
	"walletd/internal/store"
)

var (
	// ErrNoAccess is returned when the wallet does not exist or the
	// actor is not a member. Both cases look the same to the caller so
	// membership cannot be probed.
	ErrNoAccess = errors.New("wallet not found or actor is not a member")

	// ErrNotOwner is returned when a member attempts an owner-only
	// operation.
	ErrNotOwner = errors.New("only the wallet owner may do this")
)

// EventPublisher publishes committed mutations to the audit stream.
type EventPublisher interface {
	PublishMutationEvent(ctx context.Context, ev *amqp.MutationEvent) error
}

// BudgetStatus is one budget with its derived period aggregates.
type BudgetStatus struct {
	Budget         core.Budget
	SpentCents     int64
	RemainingCents int64
	OverBudget     bool
}

// MutationService runs every mutation through the coordinator, then
// publishes an audit event and invalidates the affected read snapshots.
// Publish failures never fail the request: the commit already happened.
type MutationService struct {
	coord     *engine.Coordinator
	store     store.Store
	publisher EventPublisher

	balances *cache.LRUCache[int64]
	statuses *cache.LRUCache[[]BudgetStatus]
}

func NewMutationService(coord *engine.Coordinator, st store.Store, publisher EventPublisher) *MutationService {
	return &MutationService{
		coord:     coord,
		store:     st,
		publisher: publisher,
		balances:  cache.NewLRUCache[int64](1024, 30*time.Second),
		statuses:  cache.NewLRUCache[[]BudgetStatus](1024, 30*time.Second),
	}
}

// Caches exposes the snapshot caches for registration with a cleanup
// manager.
func (s *MutationService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.balances, s.statuses}
}

func (s *MutationService) SubmitTransaction(ctx context.Context, req engine.TransactionRequest) (engine.TransactionResult, error) {
	res, err := s.coord.SubmitTransaction(ctx, req)
	if err != nil {
		return engine.TransactionResult{}, err
	}
	if res.Committed != nil {
		s.invalidateTransaction(*res.Committed)
		s.publish(ctx, amqp.NewMutationEvent(
			amqp.KindTransaction, amqp.OpCreate,
			res.Committed.WalletID, req.ActorID, res.Committed.ID,
			res.Committed.Amount.Cents, res.Committed.Category))
	}
	return res, nil
}

func (s *MutationService) UpdateTransaction(ctx context.Context, id string, req engine.TransactionRequest) (engine.TransactionResult, error) {
	res, err := s.coord.UpdateTransaction(ctx, id, req)
	if err != nil {
		return engine.TransactionResult{}, err
	}
	if res.Committed != nil {
		s.invalidateTransaction(*res.Committed)
		s.publish(ctx, amqp.NewMutationEvent(
			amqp.KindTransaction, amqp.OpUpdate,
			res.Committed.WalletID, req.ActorID, res.Committed.ID,
			res.Committed.Amount.Cents, res.Committed.Category))
	}
	return res, nil
}

func (s *MutationService) DeleteTransaction(ctx context.Context, actorID, id string) (engine.TransactionResult, error) {
	res, err := s.coord.DeleteTransaction(ctx, actorID, id)
	if err != nil {
		return engine.TransactionResult{}, err
	}
	if res.Committed != nil {
		s.invalidateTransaction(*res.Committed)
		s.publish(ctx, amqp.NewMutationEvent(
			amqp.KindTransaction, amqp.OpDelete,
			res.Committed.WalletID, actorID, res.Committed.ID,
			res.Committed.Amount.Cents, res.Committed.Category))
	}
	return res, nil
}

// PreviewTransaction evaluates without committing; no event, no
// invalidation.
func (s *MutationService) PreviewTransaction(ctx context.Context, req engine.TransactionRequest) (engine.Decision, error) {
	return s.coord.PreviewTransaction(ctx, req)
}

func (s *MutationService) SubmitBudget(ctx context.Context, req engine.BudgetRequest) (engine.BudgetResult, error) {
	res, err := s.coord.SubmitBudget(ctx, req)
	if err != nil {
		return engine.BudgetResult{}, err
	}
	if res.Committed != nil {
		s.invalidateBudget(*res.Committed)
		s.publish(ctx, amqp.NewMutationEvent(
			amqp.KindBudget, amqp.OpUpdate,
			res.Committed.WalletID, req.ActorID, res.Committed.ID,
			res.Committed.Amount.Cents, res.Committed.Category))
	}
	return res, nil
}

func (s *MutationService) DeleteBudget(ctx context.Context, actorID, id string) (engine.BudgetResult, error) {
	res, err := s.coord.DeleteBudget(ctx, actorID, id)
	if err != nil {
		return engine.BudgetResult{}, err
	}
	if res.Committed != nil {
		s.invalidateBudget(*res.Committed)
		s.publish(ctx, amqp.NewMutationEvent(
			amqp.KindBudget, amqp.OpDelete,
			res.Committed.WalletID, actorID, res.Committed.ID,
			res.Committed.Amount.Cents, res.Committed.Category))
	}
	return res, nil
}

func (s *MutationService) CreateWallet(ctx context.Context, name, ownerID string) (core.Wallet, error) {
	return s.store.CreateWallet(ctx, core.Wallet{Name: name, OwnerID: ownerID})
}

// JoinWallet adds the actor to the wallet's membership. Joining is
// idempotent.
func (s *MutationService) JoinWallet(ctx context.Context, walletID, actorID string) (core.Wallet, error) {
	return s.store.AddMember(ctx, walletID, actorID)
}

func (s *MutationService) ListWallets(ctx context.Context, actorID string) ([]core.Wallet, error) {
	return s.store.ListWalletsByMember(ctx, actorID)
}

// DeleteWallet removes a wallet and everything under it. Owner only;
// members get ErrNotOwner, outsiders cannot tell the wallet exists.
func (s *MutationService) DeleteWallet(ctx context.Context, actorID, walletID string) error {
	wallet, err := s.store.GetWallet(ctx, walletID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoAccess
	}
	if err != nil {
		return fmt.Errorf("get wallet: %w", err)
	}
	if !wallet.HasMember(actorID) {
		return ErrNoAccess
	}
	if wallet.OwnerID != actorID {
		return ErrNotOwner
	}
	if err := s.store.DeleteWallet(ctx, walletID); err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	s.balances.Delete(balanceKey(walletID))
	s.statuses.DeletePrefix(statusPrefix(walletID))
	return nil
}

// WalletBalance derives the wallet balance from the ledger, serving
// cached snapshots between mutations.
func (s *MutationService) WalletBalance(ctx context.Context, actorID, walletID string) (int64, error) {
	if err := s.checkAccess(ctx, actorID, walletID); err != nil {
		return 0, err
	}

	key := balanceKey(walletID)
	if balance, ok := s.balances.Get(key); ok {
		return balance, nil
	}

	txs, err := s.store.ListByWallet(ctx, walletID)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}
	balance := core.Balance(txs)
	s.balances.Set(key, balance)
	return balance, nil
}

func (s *MutationService) ListTransactions(ctx context.Context, actorID string, f store.TransactionFilter) ([]core.Transaction, error) {
	if f.WalletID == "" {
		return nil, core.ErrEmptyWallet
	}
	if err := s.checkAccess(ctx, actorID, f.WalletID); err != nil {
		return nil, err
	}
	f.Category = core.NormalizeCategory(f.Category)
	return s.store.ListFiltered(ctx, f)
}

// BudgetStatuses reports each budget for the wallet period with spend
// and remaining derived from the ledger.
func (s *MutationService) BudgetStatuses(ctx context.Context, actorID, walletID string, year, month int) ([]BudgetStatus, error) {
	if err := s.checkAccess(ctx, actorID, walletID); err != nil {
		return nil, err
	}

	key := statusKey(walletID, year, month)
	if statuses, ok := s.statuses.Get(key); ok {
		return statuses, nil
	}

	budgets, err := s.store.ListBudgetsFiltered(ctx, store.BudgetFilter{
		WalletID: walletID, Year: year, Month: month,
	})
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	// Per-category spend reads are independent; fetch them together.
	statuses := make([]BudgetStatus, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range budgets {
		g.Go(func() error {
			txs, err := s.store.ListByWalletCategoryPeriod(gctx, walletID, b.Category, b.Year, b.Month)
			if err != nil {
				return fmt.Errorf("list category spend: %w", err)
			}
			start, end := core.PeriodBounds(b.Year, b.Month)
			spent := core.CategorySpend(txs, b.Category, start, end)
			statuses[i] = BudgetStatus{
				Budget:         b,
				SpentCents:     spent,
				RemainingCents: b.Amount.Cents - spent,
				OverBudget:     spent > b.Amount.Cents,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.statuses.Set(key, statuses)
	return statuses, nil
}

func (s *MutationService) checkAccess(ctx context.Context, actorID, walletID string) error {
	wallet, err := s.store.GetWallet(ctx, walletID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoAccess
	}
	if err != nil {
		return fmt.Errorf("get wallet: %w", err)
	}
	if !wallet.HasMember(actorID) {
		return ErrNoAccess
	}
	return nil
}

func (s *MutationService) invalidateTransaction(tx core.Transaction) {
	s.balances.Delete(balanceKey(tx.WalletID))
	s.statuses.Delete(statusKey(tx.WalletID, tx.Date.Year(), tx.Date.Month()))
}

func (s *MutationService) invalidateBudget(b core.Budget) {
	s.statuses.Delete(statusKey(b.WalletID, b.Year, b.Month))
}

// Snapshot keys are namespaced per wallet so DeletePrefix can drop a
// whole wallet's snapshots when the wallet goes away.
func balanceKey(walletID string) string {
	return "balance:" + walletID
}

func statusPrefix(walletID string) string {
	return "budgets:" + walletID + ":"
}

func statusKey(walletID string, year, month int) string {
	return fmt.Sprintf("%s%04d-%02d", statusPrefix(walletID), year, month)
}

func (s *MutationService) publish(ctx context.Context, ev *amqp.MutationEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping audit event",
			"kind", ev.Kind, "operation", ev.Operation)
		return
	}
	if err := s.publisher.PublishMutationEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish mutation event",
			"error", err,
			"kind", ev.Kind,
			"operation", ev.Operation,
			"wallet_id", ev.WalletID)
	}
}
