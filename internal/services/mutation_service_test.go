package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletd/internal/amqp"
	"walletd/internal/core"
	"walletd/internal/engine"
	"walletd/internal/store"
	"walletd/internal/store/memory"
)

type capturingPublisher struct {
	events []*amqp.MutationEvent
	err    error
}

func (p *capturingPublisher) PublishMutationEvent(_ context.Context, ev *amqp.MutationEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func newService(t *testing.T) (*MutationService, *capturingPublisher, core.Wallet) {
	t.Helper()
	st := memory.New()
	coord := engine.New(st, engine.WithClock(func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}))
	pub := &capturingPublisher{}
	svc := NewMutationService(coord, st, pub)

	w, err := svc.CreateWallet(context.Background(), "household", "alice")
	require.NoError(t, err)
	return svc, pub, w
}

func seedIncome(t *testing.T, svc *MutationService, walletID string, cents int64) {
	t.Helper()
	res, err := svc.SubmitTransaction(context.Background(), engine.TransactionRequest{
		WalletID:    walletID,
		ActorID:     "alice",
		Type:        core.Income,
		AmountCents: cents,
		Category:    "salary",
		Date:        core.NewDate(2025, 6, 1),
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
}

func TestSubmitTransactionPublishesEvent(t *testing.T) {
	svc, pub, w := newService(t)
	seedIncome(t, svc, w.ID, 10000)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, amqp.KindTransaction, ev.Kind)
	assert.Equal(t, amqp.OpCreate, ev.Operation)
	assert.Equal(t, w.ID, ev.WalletID)
	assert.Equal(t, "alice", ev.ActorID)
	assert.Equal(t, int64(10000), ev.AmountCents)
}

func TestRejectedMutationPublishesNothing(t *testing.T) {
	svc, pub, w := newService(t)

	res, err := svc.SubmitTransaction(context.Background(), engine.TransactionRequest{
		WalletID:    w.ID,
		ActorID:     "alice",
		Type:        core.Expense,
		AmountCents: 500,
		Category:    "food",
		Date:        core.NewDate(2025, 6, 10),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Empty(t, pub.events)
}

func TestPublishFailureDoesNotFailCommit(t *testing.T) {
	svc, pub, w := newService(t)
	pub.err = errors.New("broker down")

	res, err := svc.SubmitTransaction(context.Background(), engine.TransactionRequest{
		WalletID:    w.ID,
		ActorID:     "alice",
		Type:        core.Income,
		AmountCents: 5000,
		Category:    "salary",
		Date:        core.NewDate(2025, 6, 1),
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.NotNil(t, res.Committed)
}

func TestWalletBalanceCachesAndInvalidates(t *testing.T) {
	svc, _, w := newService(t)
	seedIncome(t, svc, w.ID, 10000)
	ctx := context.Background()

	balance, err := svc.WalletBalance(ctx, "alice", w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance)

	// A committed expense must invalidate the snapshot.
	res, err := svc.SubmitTransaction(ctx, engine.TransactionRequest{
		WalletID:    w.ID,
		ActorID:     "alice",
		Type:        core.Expense,
		AmountCents: 2500,
		Category:    "food",
		Date:        core.NewDate(2025, 6, 10),
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)

	balance, err = svc.WalletBalance(ctx, "alice", w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), balance)
}

func TestWalletBalanceAccessControl(t *testing.T) {
	svc, _, w := newService(t)
	seedIncome(t, svc, w.ID, 10000)
	ctx := context.Background()

	_, err := svc.WalletBalance(ctx, "mallory", w.ID)
	assert.ErrorIs(t, err, ErrNoAccess)

	_, err = svc.WalletBalance(ctx, "alice", "no-such-wallet")
	assert.ErrorIs(t, err, ErrNoAccess)
}

func TestJoinWalletGrantsAccess(t *testing.T) {
	svc, _, w := newService(t)
	seedIncome(t, svc, w.ID, 10000)
	ctx := context.Background()

	_, err := svc.JoinWallet(ctx, w.ID, "bob")
	require.NoError(t, err)

	balance, err := svc.WalletBalance(ctx, "bob", w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance)

	wallets, err := svc.ListWallets(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, w.ID, wallets[0].ID)
}

func TestBudgetStatuses(t *testing.T) {
	svc, _, w := newService(t)
	seedIncome(t, svc, w.ID, 20000)
	ctx := context.Background()

	bres, err := svc.SubmitBudget(ctx, engine.BudgetRequest{
		WalletID:    w.ID,
		ActorID:     "alice",
		Category:    "food",
		AmountCents: 4000,
		Year:        2025,
		Month:       6,
	})
	require.NoError(t, err)
	require.Nil(t, bres.Rejection)

	res, err := svc.SubmitTransaction(ctx, engine.TransactionRequest{
		WalletID:    w.ID,
		ActorID:     "alice",
		Type:        core.Expense,
		AmountCents: 1500,
		Category:    "food",
		Date:        core.NewDate(2025, 6, 10),
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)

	statuses, err := svc.BudgetStatuses(ctx, "alice", w.ID, 2025, 6)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, int64(1500), statuses[0].SpentCents)
	assert.Equal(t, int64(2500), statuses[0].RemainingCents)
	assert.False(t, statuses[0].OverBudget)

	// Lowering the budget below the spend flips the over-budget flag and
	// must bypass the cached snapshot.
	bres, err = svc.SubmitBudget(ctx, engine.BudgetRequest{
		WalletID:    w.ID,
		ActorID:     "alice",
		Category:    "food",
		AmountCents: 1000,
		Year:        2025,
		Month:       6,
	})
	require.NoError(t, err)
	require.Nil(t, bres.Rejection)

	statuses, err = svc.BudgetStatuses(ctx, "alice", w.ID, 2025, 6)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, int64(-500), statuses[0].RemainingCents)
	assert.True(t, statuses[0].OverBudget)
}

func TestListTransactionsFilters(t *testing.T) {
	svc, _, w := newService(t)
	seedIncome(t, svc, w.ID, 20000)
	ctx := context.Background()

	for day := 1; day <= 3; day++ {
		res, err := svc.SubmitTransaction(ctx, engine.TransactionRequest{
			WalletID:    w.ID,
			ActorID:     "alice",
			Type:        core.Expense,
			AmountCents: int64(day * 100),
			Category:    "Food",
			Date:        core.NewDate(2025, 6, day+9),
		})
		require.NoError(t, err)
		require.Nil(t, res.Rejection)
	}

	// Category filter is case-insensitive through normalization.
	txs, err := svc.ListTransactions(ctx, "alice", store.TransactionFilter{
		WalletID: w.ID,
		Category: "FOOD",
	})
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	_, err = svc.ListTransactions(ctx, "mallory", store.TransactionFilter{WalletID: w.ID})
	assert.ErrorIs(t, err, ErrNoAccess)
}
