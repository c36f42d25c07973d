package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	// Wallet has immutable identity. Its balance is never stored; it is
	// always derived from the ledger.
	Wallet struct {
		ID      string
		Name    string
		OwnerID string
		Members []string
	}

	// Transaction is a single ledger entry. Entries change only through
	// explicit update or delete, never by recomputation.
	Transaction struct {
		ID          string
		WalletID    string
		Type        TransactionType
		Amount      Money
		Category    string // canonical form, see NormalizeCategory
		Date        Date
		Description string
	}

	// Budget caps expense spend for one wallet category in one calendar
	// month. Unique per (wallet, category, year, month).
	Budget struct {
		ID       string
		WalletID string
		Category string // canonical form
		Amount   Money
		Year     int
		Month    int
	}

	// TransactionPatch carries the proposed new values for an update.
	TransactionPatch struct {
		Type        TransactionType
		Amount      Money
		Category    string
		Date        Date
		Description string
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyWallet     = errors.New("empty wallet reference")
	ErrInvalidPeriod   = errors.New("invalid budget period")
	ErrEmptyWalletName = errors.New("empty wallet name")
	ErrEmptyOwner      = errors.New("empty owner")
)

// NormalizeCategory folds a free-text category label to its canonical
// form: trimmed and lower-cased. Stores and the engine only ever see the
// canonical form, so comparisons never case-fold at the call site.
func NormalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Year returns the calendar year.
func (d Date) Year() int {
	return d.Time.Year()
}

// Month returns the calendar month as int.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// SameDay reports whether two dates fall on the same calendar day.
func (d Date) SameDay(other Date) bool {
	y1, m1, d1 := d.Time.Date()
	y2, m2, d2 := other.Time.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (w Wallet) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return ErrEmptyWalletName
	}
	if w.OwnerID == "" {
		return ErrEmptyOwner
	}
	return nil
}

// HasMember reports whether the given identity belongs to the wallet.
func (w Wallet) HasMember(actorID string) bool {
	for _, m := range w.Members {
		if m == actorID {
			return true
		}
	}
	return false
}

func (t Transaction) Validate() error {
	if t.WalletID == "" {
		return ErrEmptyWallet
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (p TransactionPatch) Validate() error {
	if err := p.Type.Validate(); err != nil {
		return err
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.Category) == "" {
		return ErrEmptyCategory
	}
	if err := p.Date.Validate(); err != nil {
		return err
	}
	if len(p.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (b Budget) Validate() error {
	if b.WalletID == "" {
		return ErrEmptyWallet
	}
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if b.Year < 1000 || b.Year > 9999 {
		return ErrInvalidPeriod
	}
	if b.Month < 1 || b.Month > 12 {
		return ErrInvalidPeriod
	}
	return nil
}

// Applied returns a copy of the transaction with the patch applied.
func (t Transaction) Applied(p TransactionPatch) Transaction {
	t.Type = p.Type
	t.Amount = p.Amount
	t.Category = p.Category
	t.Date = p.Date
	t.Description = p.Description
	return t
}
