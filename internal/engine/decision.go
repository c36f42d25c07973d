// Package engine validates proposed ledger and budget mutations against
// aggregates derived from the transaction ledger, and coordinates the
// atomic read-evaluate-write scope per wallet.
package engine

// Code identifies why a mutation was rejected.
type Code string

const (
	// Not-found family: map to "does not exist" feedback.
	CodeNoWallet Code = "NO_WALLET"
	CodeNotFound Code = "NOT_FOUND"

	// Input family: rejected before any store access.
	CodeInvalidInput Code = "INVALID_INPUT"

	// Invariant family: rejected after aggregate computation. Details
	// always carry the numeric basis so callers can render a message
	// without re-querying.
	CodeMinimumAmount       Code = "MINIMUM_AMOUNT"
	CodeNoFunds             Code = "NO_FUNDS"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeBudgetExceeded      Code = "BUDGET_EXCEEDED"
	CodeExceedsBalance      Code = "EXCEEDS_BALANCE"
	CodeExceedsTotalBalance Code = "EXCEEDS_TOTAL_BALANCE"
	CodeInvalidPeriod       Code = "INVALID_PERIOD"
)

// WarningCode identifies an advisory finding attached to an allowed
// mutation. Warnings never block a commit.
type WarningCode string

const (
	WarnLargeExpense         WarningCode = "LARGE_EXPENSE"
	WarnBudgetNearLimit      WarningCode = "BUDGET_NEAR_LIMIT"
	WarnPossibleDuplicate    WarningCode = "POSSIBLE_DUPLICATE"
	WarnHighBudgetShare      WarningCode = "HIGH_BUDGET_SHARE"
	WarnHighTotalBudgetShare WarningCode = "HIGH_TOTAL_BUDGET_SHARE"
	WarnFarFuturePeriod      WarningCode = "FAR_FUTURE_PERIOD"
)

type (
	// Warning is an advisory finding surfaced alongside a commit.
	Warning struct {
		Code    WarningCode `json:"code"`
		Message string      `json:"message"`
	}

	// Rejection explains a refused mutation. Details carry the numeric
	// basis (amounts as plain decimal strings) for invariant rejections.
	Rejection struct {
		Code    Code              `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	}

	// Decision is the outcome of evaluating one proposed mutation.
	// A nil Rejection means allow; Warnings are collected in rule order,
	// so the same request always produces the same warning sequence.
	Decision struct {
		Rejection *Rejection
		Warnings  []Warning
	}
)

// Allowed reports whether the mutation may be committed.
func (d Decision) Allowed() bool {
	return d.Rejection == nil
}

func reject(code Code, message string, details map[string]string) Decision {
	return Decision{Rejection: &Rejection{Code: code, Message: message, Details: details}}
}
