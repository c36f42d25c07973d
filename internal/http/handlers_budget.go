package http

import (
	"errors"
	"net/http"

	"walletd/internal/engine"
	applog "walletd/internal/log"
	"walletd/internal/services"
)

type budgetRequest struct {
	WalletID    string `json:"wallet_id"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := parseAmount(req.Amount, req.AmountCents)
	if err != nil {
		rej := &engine.Rejection{Code: engine.CodeInvalidInput, Message: "invalid amount"}
		writeJSON(w, rejectionStatus(rej.Code), mutationResponse{Rejected: rej})
		return
	}

	engReq := engine.BudgetRequest{
		WalletID:    req.WalletID,
		ActorID:     actor,
		Category:    sanitizeInput(req.Category),
		AmountCents: cents,
		Year:        req.Year,
		Month:       req.Month,
	}

	res, err := s.svc.SubmitBudget(r.Context(), engReq)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to submit budget", err,
			applog.ComponentHTTP, "submit_budget", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to submit budget")
		return
	}
	s.logMutation(r, "budget_upsert", engReq.WalletID, actor, res.Rejection, len(res.Warnings), engReq.Category, engReq.AmountCents)
	writeBudgetResult(w, http.StatusCreated, res)
}

func (s *Server) handleBudgetStatuses(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	walletID := r.URL.Query().Get("wallet_id")
	if walletID == "" {
		writeError(w, http.StatusBadRequest, "wallet_id query parameter is required")
		return
	}
	year, month := parseYearMonth(r, s.now())
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}

	statuses, err := s.svc.BudgetStatuses(r.Context(), actor, walletID, year, month)
	if err != nil {
		if errors.Is(err, services.ErrNoAccess) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.structured.LogError(r.Context(), "Failed to list budget statuses", err,
			applog.ComponentHTTP, "budget_statuses", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to list budgets")
		return
	}

	out := make([]budgetStatusJSON, len(statuses))
	for i, st := range statuses {
		out[i] = budgetStatusJSON{
			budgetJSON:     toBudgetJSON(st.Budget),
			SpentCents:     st.SpentCents,
			RemainingCents: st.RemainingCents,
			OverBudget:     st.OverBudget,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	res, err := s.svc.DeleteBudget(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to delete budget", err,
			applog.ComponentHTTP, "delete_budget", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to delete budget")
		return
	}
	writeBudgetResult(w, http.StatusOK, res)
}
