package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"walletd/internal/core"
	"walletd/internal/engine"
	"walletd/internal/store"
)

// mutationResponse is the wire shape for every mutation endpoint.
// Exactly one of Committed or Rejected is set.
type mutationResponse struct {
	Committed any               `json:"committed,omitempty"`
	Rejected  *engine.Rejection `json:"rejected,omitempty"`
	Warnings  []engine.Warning  `json:"warnings,omitempty"`
}

type previewResponse struct {
	Allowed  bool              `json:"allowed"`
	Rejected *engine.Rejection `json:"rejected,omitempty"`
	Warnings []engine.Warning  `json:"warnings,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type walletJSON struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	OwnerID string   `json:"owner_id"`
	Members []string `json:"members"`
}

type transactionJSON struct {
	ID          string `json:"id"`
	WalletID    string `json:"wallet_id"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
}

type budgetJSON struct {
	ID          string `json:"id"`
	WalletID    string `json:"wallet_id"`
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
}

type budgetStatusJSON struct {
	budgetJSON
	SpentCents     int64 `json:"spent_cents"`
	RemainingCents int64 `json:"remaining_cents"`
	OverBudget     bool  `json:"over_budget"`
}

type auditEventJSON struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Operation   string `json:"operation"`
	WalletID    string `json:"wallet_id"`
	ActorID     string `json:"actor_id"`
	EntityID    string `json:"entity_id"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	OccurredAt  string `json:"occurred_at"`
}

func toWalletJSON(w core.Wallet) walletJSON {
	return walletJSON{ID: w.ID, Name: w.Name, OwnerID: w.OwnerID, Members: w.Members}
}

func toTransactionJSON(tx core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          tx.ID,
		WalletID:    tx.WalletID,
		Type:        string(tx.Type),
		AmountCents: tx.Amount.Cents,
		Amount:      core.FormatCents(tx.Amount.Cents),
		Category:    tx.Category,
		Date:        tx.Date.Time.Format("2006-01-02"),
		Description: tx.Description,
	}
}

func toBudgetJSON(b core.Budget) budgetJSON {
	return budgetJSON{
		ID:          b.ID,
		WalletID:    b.WalletID,
		Category:    b.Category,
		AmountCents: b.Amount.Cents,
		Amount:      core.FormatCents(b.Amount.Cents),
		Year:        b.Year,
		Month:       b.Month,
	}
}

func toAuditEventJSON(ev store.AuditEvent) auditEventJSON {
	return auditEventJSON{
		ID:          ev.ID,
		Kind:        ev.Kind,
		Operation:   ev.Operation,
		WalletID:    ev.WalletID,
		ActorID:     ev.ActorID,
		EntityID:    ev.EntityID,
		AmountCents: ev.AmountCents,
		Category:    ev.Category,
		OccurredAt:  ev.OccurredAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// rejectionStatus maps rejection families to HTTP statuses: not-found
// family to 404, input family to 400, invariant family to 422.
func rejectionStatus(code engine.Code) int {
	switch code {
	case engine.CodeNoWallet, engine.CodeNotFound:
		return http.StatusNotFound
	case engine.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeTransactionResult(w http.ResponseWriter, status int, res engine.TransactionResult) {
	if res.Rejection != nil {
		writeJSON(w, rejectionStatus(res.Rejection.Code), mutationResponse{Rejected: res.Rejection})
		return
	}
	writeJSON(w, status, mutationResponse{
		Committed: toTransactionJSON(*res.Committed),
		Warnings:  res.Warnings,
	})
}

func writeBudgetResult(w http.ResponseWriter, status int, res engine.BudgetResult) {
	if res.Rejection != nil {
		writeJSON(w, rejectionStatus(res.Rejection.Code), mutationResponse{Rejected: res.Rejection})
		return
	}
	writeJSON(w, status, mutationResponse{
		Committed: toBudgetJSON(*res.Committed),
		Warnings:  res.Warnings,
	})
}
