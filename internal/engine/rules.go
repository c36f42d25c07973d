package engine

import (
	"fmt"
	"time"

	"walletd/internal/core"
)

// MinimumAmountCents is the smallest accepted amount: one minor unit.
const MinimumAmountCents = 1

type (
	// TransactionAggregates is the snapshot a transaction evaluation
	// runs against. For updates the prior value of the mutated entry is
	// already excluded from Balance and CategorySpend, so the proposed
	// new amount is never double-counted.
	TransactionAggregates struct {
		Wallet    *core.Wallet // nil when the wallet does not exist
		ActorID   string
		Balance   int64
		Budget    *core.Budget // budget for (wallet, category, tx period); nil when none
		Spend     int64        // prior expense spend in the budget period
		Duplicate bool         // same wallet/amount/category/type/calendar day seen
	}

	// BudgetAggregates is the snapshot a budget evaluation runs against.
	// OtherBudgets excludes the budget being updated, if any.
	BudgetAggregates struct {
		Wallet       *core.Wallet
		ActorID      string
		Balance      int64
		OtherBudgets int64
		Now          time.Time
	}
)

// EvaluateTransaction applies the transaction rule set to a proposed
// insert or update. The first applicable rejection short-circuits;
// warnings accumulate in fixed rule order (large expense, budget near
// limit, possible duplicate).
//
// Income entries only pass through the wallet and minimum-amount checks:
// income always increases capacity, so no balance or budget rule applies.
func EvaluateTransaction(typ core.TransactionType, amount int64, agg TransactionAggregates) Decision {
	if agg.Wallet == nil || !agg.Wallet.HasMember(agg.ActorID) {
		return reject(CodeNoWallet, "wallet not found or actor is not a member", nil)
	}
	if amount < MinimumAmountCents {
		return reject(CodeMinimumAmount,
			fmt.Sprintf("amount must be at least %s", core.FormatCents(MinimumAmountCents)),
			map[string]string{"minimum": core.FormatCents(MinimumAmountCents)})
	}
	if typ == core.Income {
		return Decision{}
	}

	if agg.Balance <= 0 {
		return reject(CodeNoFunds,
			fmt.Sprintf("wallet has no available funds (%s); add income first", core.FormatCents(agg.Balance)),
			map[string]string{"balance": core.FormatCents(agg.Balance)})
	}
	if amount > agg.Balance {
		shortfall := amount - agg.Balance
		return reject(CodeInsufficientFunds,
			fmt.Sprintf("insufficient funds: available %s, requested %s, shortfall %s",
				core.FormatCents(agg.Balance), core.FormatCents(amount), core.FormatCents(shortfall)),
			map[string]string{
				"available": core.FormatCents(agg.Balance),
				"requested": core.FormatCents(amount),
				"shortfall": core.FormatCents(shortfall),
			})
	}

	// A category without a budget is simply unchecked; the budget is
	// optional per category.
	if agg.Budget != nil {
		limit := agg.Budget.Amount.Cents
		if agg.Spend+amount > limit {
			remaining := limit - agg.Spend
			return reject(CodeBudgetExceeded,
				fmt.Sprintf("expense would exceed the %q budget: budget %s, already spent %s, remaining %s",
					agg.Budget.Category, core.FormatCents(limit), core.FormatCents(agg.Spend), core.FormatCents(remaining)),
				map[string]string{
					"budget":    core.FormatCents(limit),
					"spent":     core.FormatCents(agg.Spend),
					"remaining": core.FormatCents(remaining),
				})
		}
	}

	var warnings []Warning
	if amount*2 > agg.Balance {
		warnings = append(warnings, Warning{
			Code: WarnLargeExpense,
			Message: fmt.Sprintf("expense uses %d%% of the wallet balance; %s remains after",
				roundedPercent(amount, agg.Balance), core.FormatCents(agg.Balance-amount)),
		})
	}
	if agg.Budget != nil {
		limit := agg.Budget.Amount.Cents
		post := agg.Spend + amount
		if post*5 > limit*4 {
			warnings = append(warnings, Warning{
				Code: WarnBudgetNearLimit,
				Message: fmt.Sprintf("spend reaches %d%% of the %q budget; %s remains",
					roundedPercent(post, limit), agg.Budget.Category, core.FormatCents(limit-post)),
			})
		}
	}
	if agg.Duplicate {
		warnings = append(warnings, duplicateWarning())
	}
	return Decision{Warnings: warnings}
}

// EvaluateBudget applies the budget rule set to a proposed insert or
// update. Warnings accumulate in fixed rule order (high budget share,
// high total budget share, far future period).
func EvaluateBudget(b core.Budget, agg BudgetAggregates) Decision {
	if agg.Wallet == nil || !agg.Wallet.HasMember(agg.ActorID) {
		return reject(CodeNoWallet, "wallet not found or actor is not a member", nil)
	}
	if agg.Balance <= 0 {
		return reject(CodeNoFunds,
			fmt.Sprintf("wallet has no available funds (%s); add income before budgeting", core.FormatCents(agg.Balance)),
			map[string]string{"balance": core.FormatCents(agg.Balance)})
	}

	amount := b.Amount.Cents
	if amount > agg.Balance {
		return reject(CodeExceedsBalance,
			fmt.Sprintf("budget %s exceeds wallet balance %s",
				core.FormatCents(amount), core.FormatCents(agg.Balance)),
			map[string]string{
				"budget":  core.FormatCents(amount),
				"balance": core.FormatCents(agg.Balance),
			})
	}

	total := agg.OtherBudgets + amount
	if total > agg.Balance {
		return reject(CodeExceedsTotalBalance,
			fmt.Sprintf("total budgets %s would exceed wallet balance %s (existing budgets %s)",
				core.FormatCents(total), core.FormatCents(agg.Balance), core.FormatCents(agg.OtherBudgets)),
			map[string]string{
				"total_budgets":    core.FormatCents(total),
				"balance":          core.FormatCents(agg.Balance),
				"existing_budgets": core.FormatCents(agg.OtherBudgets),
			})
	}

	monthsAhead := monthsFrom(agg.Now, b.Year, b.Month)
	if monthsAhead < -1 {
		return reject(CodeInvalidPeriod,
			fmt.Sprintf("budget period %04d-%02d is more than one month in the past", b.Year, b.Month),
			map[string]string{"year": fmt.Sprintf("%04d", b.Year), "month": fmt.Sprintf("%02d", b.Month)})
	}

	var warnings []Warning
	if amount*2 > agg.Balance {
		warnings = append(warnings, Warning{
			Code: WarnHighBudgetShare,
			Message: fmt.Sprintf("budget is %d%% of the wallet balance %s; consider a lower amount",
				roundedPercent(amount, agg.Balance), core.FormatCents(agg.Balance)),
		})
	}
	if total*5 > agg.Balance*4 {
		warnings = append(warnings, Warning{
			Code: WarnHighTotalBudgetShare,
			Message: fmt.Sprintf("total budgets reach %d%% of the wallet balance; consider leaving unbudgeted funds",
				roundedPercent(total, agg.Balance)),
		})
	}
	if monthsAhead > 12 {
		warnings = append(warnings, Warning{
			Code:    WarnFarFuturePeriod,
			Message: fmt.Sprintf("budget period %04d-%02d is %d months ahead; consider shorter-term planning", b.Year, b.Month, monthsAhead),
		})
	}
	return Decision{Warnings: warnings}
}

// monthsFrom returns how many calendar months (year, month) lies ahead of
// now; negative values are in the past.
func monthsFrom(now time.Time, year, month int) int {
	return (year-now.Year())*12 + month - int(now.Month())
}

// roundedPercent computes part/whole as a half-up rounded percentage
// using integer math only.
func roundedPercent(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	return (part*100 + whole/2) / whole
}

func duplicateWarning() Warning {
	return Warning{
		Code:    WarnPossibleDuplicate,
		Message: "a transaction with the same amount, category, and date already exists in this wallet",
	}
}
