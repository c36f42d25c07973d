package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletd/internal/core"
	"walletd/internal/engine"
	"walletd/internal/store/memory"
)

var testClock = func() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T) (*engine.Coordinator, *memory.Store, core.Wallet) {
	t.Helper()
	st := memory.New()
	w, err := st.CreateWallet(context.Background(), core.Wallet{Name: "household", OwnerID: "alice"})
	require.NoError(t, err)
	return engine.New(st, engine.WithClock(testClock)), st, w
}

func submitIncome(t *testing.T, c *engine.Coordinator, walletID string, cents int64) {
	t.Helper()
	res, err := c.SubmitTransaction(context.Background(), engine.TransactionRequest{
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

func submitBudget(t *testing.T, c *engine.Coordinator, walletID, category string, cents int64) {
	t.Helper()
	res, err := c.SubmitBudget(context.Background(), engine.BudgetRequest{
		WalletID:    walletID,
		ActorID:     "alice",
		Category:    category,
		AmountCents: cents,
		Year:        2025,
		Month:       6,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
}

func expense(walletID string, cents int64, category string) engine.TransactionRequest {
	return engine.TransactionRequest{
		WalletID:    walletID,
		ActorID:     "alice",
		Type:        core.Expense,
		AmountCents: cents,
		Category:    category,
		Date:        core.NewDate(2025, 6, 10),
	}
}

func TestSubmitTransactionBudgetEnforcement(t *testing.T) {
	c, _, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)
	submitBudget(t, c, w.ID, "food", 4000)

	// 41.00 against a 40.00 budget with nothing spent: rejected, and the
	// rejection reports the full numeric basis.
	res, err := c.SubmitTransaction(context.Background(), expense(w.ID, 4100, "Food"))
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, engine.CodeBudgetExceeded, res.Rejection.Code)
	assert.Equal(t, "40.00", res.Rejection.Details["budget"])
	assert.Equal(t, "0.00", res.Rejection.Details["spent"])
	assert.Equal(t, "40.00", res.Rejection.Details["remaining"])

	// 35.00 fits but crosses 80% of the budget.
	res, err = c.SubmitTransaction(context.Background(), expense(w.ID, 3500, "food"))
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.NotNil(t, res.Committed)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, engine.WarnBudgetNearLimit, res.Warnings[0].Code)

	// With 35.00 spent, another 10.00 no longer fits.
	res, err = c.SubmitTransaction(context.Background(), expense(w.ID, 1000, "food"))
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, engine.CodeBudgetExceeded, res.Rejection.Code)
	assert.Equal(t, "35.00", res.Rejection.Details["spent"])
	assert.Equal(t, "5.00", res.Rejection.Details["remaining"])
}

func TestSubmitTransactionCategoryNormalization(t *testing.T) {
	c, st, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)

	res, err := c.SubmitTransaction(context.Background(), expense(w.ID, 500, "  Food "))
	require.NoError(t, err)
	require.NotNil(t, res.Committed)
	assert.Equal(t, "food", res.Committed.Category)

	stored, err := st.GetTransaction(context.Background(), res.Committed.ID)
	require.NoError(t, err)
	assert.Equal(t, "food", stored.Category)
}

func TestSubmitTransactionUnknownWallet(t *testing.T) {
	c, _, _ := newFixture(t)
	res, err := c.SubmitTransaction(context.Background(), expense("no-such-wallet", 500, "food"))
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, engine.CodeNoWallet, res.Rejection.Code)
}

func TestSubmitTransactionNonMemberActor(t *testing.T) {
	c, _, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)

	req := expense(w.ID, 500, "food")
	req.ActorID = "mallory"
	res, err := c.SubmitTransaction(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, engine.CodeNoWallet, res.Rejection.Code)
}

func TestSubmitBudgetOnEmptyWallet(t *testing.T) {
	c, _, w := newFixture(t)

	res, err := c.SubmitBudget(context.Background(), engine.BudgetRequest{
		WalletID:    w.ID,
		ActorID:     "alice",
		Category:    "food",
		AmountCents: 5000,
		Year:        2025,
		Month:       6,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, engine.CodeNoFunds, res.Rejection.Code)
}

func TestSubmitBudgetUpsertSamePeriod(t *testing.T) {
	c, st, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)

	submitBudget(t, c, w.ID, "food", 3000)
	submitBudget(t, c, w.ID, "food", 4000)

	budgets, err := st.ListBudgetsByWallet(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, int64(4000), budgets[0].Amount.Cents)
}

func TestSubmitBudgetTotalExcludesReplacedBudget(t *testing.T) {
	c, _, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)
	submitBudget(t, c, w.ID, "food", 4000)
	submitBudget(t, c, w.ID, "transport", 4000)

	// Raising food from 40.00 to 60.00 must count the other budget (40.00)
	// plus the proposed 60.00 against the 100.00 balance, not the old food
	// amount as well.
	res, err := c.SubmitBudget(context.Background(), engine.BudgetRequest{
		WalletID:    w.ID,
		ActorID:     "alice",
		Category:    "food",
		AmountCents: 6000,
		Year:        2025,
		Month:       6,
	})
	require.NoError(t, err)
	require.Nil(t, res.Rejection)

	// 61.00 would push the total past the balance.
	res, err = c.SubmitBudget(context.Background(), engine.BudgetRequest{
		WalletID:    w.ID,
		ActorID:     "alice",
		Category:    "food",
		AmountCents: 6100,
		Year:        2025,
		Month:       6,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, engine.CodeExceedsTotalBalance, res.Rejection.Code)
}

func TestUpdateTransactionExcludesPriorValue(t *testing.T) {
	c, _, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)
	submitBudget(t, c, w.ID, "food", 4000)

	res, err := c.SubmitTransaction(context.Background(), expense(w.ID, 3000, "food"))
	require.NoError(t, err)
	require.NotNil(t, res.Committed)
	id := res.Committed.ID

	// Raising 30.00 to 40.00 fits: the old 30.00 is excluded, so post-spend
	// is exactly the 40.00 limit.
	upd := expense(w.ID, 4000, "food")
	res, err = c.UpdateTransaction(context.Background(), id, upd)
	require.NoError(t, err)
	require.Nil(t, res.Rejection)
	require.NotNil(t, res.Committed)
	assert.Equal(t, int64(4000), res.Committed.Amount.Cents)

	// 41.00 does not fit even with the prior value excluded.
	upd = expense(w.ID, 4100, "food")
	res, err = c.UpdateTransaction(context.Background(), id, upd)
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, engine.CodeBudgetExceeded, res.Rejection.Code)
}

func TestUpdateTransactionNotFound(t *testing.T) {
	c, _, w := newFixture(t)
	res, err := c.UpdateTransaction(context.Background(), "missing", expense(w.ID, 500, "food"))
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, engine.CodeNotFound, res.Rejection.Code)
}

func TestDeleteTransactionAlwaysAllowedForMembers(t *testing.T) {
	c, st, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)

	res, err := c.SubmitTransaction(context.Background(), expense(w.ID, 2000, "food"))
	require.NoError(t, err)
	require.NotNil(t, res.Committed)

	del, err := c.DeleteTransaction(context.Background(), "alice", res.Committed.ID)
	require.NoError(t, err)
	require.Nil(t, del.Rejection)

	txs, err := st.ListByWallet(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, core.Income, txs[0].Type)
}

func TestDeleteTransactionNonMember(t *testing.T) {
	c, _, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)

	res, err := c.SubmitTransaction(context.Background(), expense(w.ID, 2000, "food"))
	require.NoError(t, err)
	require.NotNil(t, res.Committed)

	del, err := c.DeleteTransaction(context.Background(), "mallory", res.Committed.ID)
	require.NoError(t, err)
	require.NotNil(t, del.Rejection)
	assert.Equal(t, engine.CodeNoWallet, del.Rejection.Code)
}

func TestPreviewTransactionCommitsNothing(t *testing.T) {
	c, st, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)
	submitBudget(t, c, w.ID, "food", 4000)

	d, err := c.PreviewTransaction(context.Background(), expense(w.ID, 4100, "food"))
	require.NoError(t, err)
	require.NotNil(t, d.Rejection)
	assert.Equal(t, engine.CodeBudgetExceeded, d.Rejection.Code)

	d, err = c.PreviewTransaction(context.Background(), expense(w.ID, 3500, "food"))
	require.NoError(t, err)
	require.Nil(t, d.Rejection)

	txs, err := st.ListByWallet(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1) // only the income
}

func TestDuplicateWarningOnSecondSubmit(t *testing.T) {
	c, _, w := newFixture(t)
	submitIncome(t, c, w.ID, 100000)

	first, err := c.SubmitTransaction(context.Background(), expense(w.ID, 1250, "food"))
	require.NoError(t, err)
	require.Nil(t, first.Rejection)
	assert.Empty(t, first.Warnings)

	second, err := c.SubmitTransaction(context.Background(), expense(w.ID, 1250, "food"))
	require.NoError(t, err)
	require.Nil(t, second.Rejection)
	require.Len(t, second.Warnings, 1)
	assert.Equal(t, engine.WarnPossibleDuplicate, second.Warnings[0].Code)
}

func TestConcurrentSubmissionsSerializePerWallet(t *testing.T) {
	c, st, w := newFixture(t)
	submitIncome(t, c, w.ID, 10000)
	submitBudget(t, c, w.ID, "food", 4000)

	// Two concurrent 25.00 expenses against a 40.00 budget: each fits on
	// its own, both together do not. Exactly one must commit.
	var wg sync.WaitGroup
	results := make([]engine.TransactionResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.SubmitTransaction(context.Background(), expense(w.ID, 2500, "food"))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	committed, rejected := 0, 0
	for _, res := range results {
		switch {
		case res.Committed != nil:
			committed++
		case res.Rejection != nil:
			assert.Equal(t, engine.CodeBudgetExceeded, res.Rejection.Code)
			rejected++
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, rejected)

	txs, err := st.ListByWallet(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2) // income plus the single committed expense
}
