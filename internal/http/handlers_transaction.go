package http

import (
	"errors"
	"net/http"
	"time"

	"walletd/internal/core"
	"walletd/internal/engine"
	applog "walletd/internal/log"
	"walletd/internal/services"
	"walletd/internal/store"
)

type transactionRequest struct {
	WalletID    string `json:"wallet_id"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// toEngineRequest maps the wire request onto the engine's shape. Amount
// and date errors surface as input rejections, consistent with the
// engine's own validation. An omitted date defaults to today per the
// server's clock.
func (req transactionRequest) toEngineRequest(actor string, now time.Time) (engine.TransactionRequest, *engine.Rejection) {
	cents, err := parseAmount(req.Amount, req.AmountCents)
	if err != nil {
		return engine.TransactionRequest{}, &engine.Rejection{
			Code: engine.CodeInvalidInput, Message: "invalid amount",
		}
	}

	var date core.Date
	if req.Date == "" {
		date = core.NewDate(now.Year(), int(now.Month()), now.Day())
	} else {
		date, err = parseDate(req.Date)
		if err != nil {
			return engine.TransactionRequest{}, &engine.Rejection{
				Code: engine.CodeInvalidInput, Message: "invalid date, expected YYYY-MM-DD",
			}
		}
	}

	return engine.TransactionRequest{
		WalletID:    req.WalletID,
		ActorID:     actor,
		Type:        core.TransactionType(req.Type),
		AmountCents: cents,
		Category:    sanitizeInput(req.Category),
		Date:        date,
		Description: sanitizeInput(req.Description),
	}, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	engReq, rej := req.toEngineRequest(actor, s.now())
	if rej != nil {
		writeJSON(w, rejectionStatus(rej.Code), mutationResponse{Rejected: rej})
		return
	}

	res, err := s.svc.SubmitTransaction(r.Context(), engReq)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to submit transaction", err,
			applog.ComponentHTTP, "submit_transaction", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to submit transaction")
		return
	}
	s.logMutation(r, "transaction_create", engReq.WalletID, actor, res.Rejection, len(res.Warnings), engReq.Category, engReq.AmountCents)
	writeTransactionResult(w, http.StatusCreated, res)
}

func (s *Server) handlePreviewTransaction(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	engReq, rej := req.toEngineRequest(actor, s.now())
	if rej != nil {
		writeJSON(w, http.StatusOK, previewResponse{Allowed: false, Rejected: rej})
		return
	}

	decision, err := s.svc.PreviewTransaction(r.Context(), engReq)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to preview transaction", err,
			applog.ComponentHTTP, "preview_transaction", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to preview transaction")
		return
	}

	// Preview always answers 200; the verdict lives in the body.
	writeJSON(w, http.StatusOK, previewResponse{
		Allowed:  decision.Allowed(),
		Rejected: decision.Rejection,
		Warnings: decision.Warnings,
	})
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	engReq, rej := req.toEngineRequest(actor, s.now())
	if rej != nil {
		writeJSON(w, rejectionStatus(rej.Code), mutationResponse{Rejected: rej})
		return
	}

	res, err := s.svc.UpdateTransaction(r.Context(), r.PathValue("id"), engReq)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to update transaction", err,
			applog.ComponentHTTP, "update_transaction", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to update transaction")
		return
	}
	s.logMutation(r, "transaction_update", engReq.WalletID, actor, res.Rejection, len(res.Warnings), engReq.Category, engReq.AmountCents)
	writeTransactionResult(w, http.StatusOK, res)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	res, err := s.svc.DeleteTransaction(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to delete transaction", err,
			applog.ComponentHTTP, "delete_transaction", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}
	writeTransactionResult(w, http.StatusOK, res)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	filter := store.TransactionFilter{
		WalletID: r.URL.Query().Get("wallet_id"),
		Category: r.URL.Query().Get("category"),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
		filter.From = d.Time
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
		filter.To = d.Time
	}

	txs, err := s.svc.ListTransactions(r.Context(), actor, filter)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoAccess):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, core.ErrEmptyWallet):
			writeError(w, http.StatusBadRequest, "wallet_id query parameter is required")
		default:
			s.structured.LogError(r.Context(), "Failed to list transactions", err,
				applog.ComponentHTTP, "list_transactions", applog.NewFields())
			writeError(w, http.StatusInternalServerError, "failed to list transactions")
		}
		return
	}

	out := make([]transactionJSON, len(txs))
	for i, tx := range txs {
		out[i] = toTransactionJSON(tx)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) logMutation(r *http.Request, op, walletID, actor string, rej *engine.Rejection, warnings int, category string, amountCents int64) {
	if rej != nil {
		s.structured.LogMutationRejected(r.Context(), op, walletID, actor, string(rej.Code))
		return
	}
	s.structured.LogMutationCommitted(r.Context(), op, walletID, actor, category, amountCents, warnings)
}
