package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"walletd/internal/core"
	applog "walletd/internal/log"
	"walletd/internal/services"
)

type createWalletRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	var req createWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = sanitizeInput(req.Name)

	wallet, err := s.svc.CreateWallet(r.Context(), req.Name, actor)
	if err != nil {
		if errors.Is(err, core.ErrEmptyWalletName) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.structured.LogError(r.Context(), "Failed to create wallet", err,
			applog.ComponentHTTP, "create_wallet", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to create wallet")
		return
	}
	writeJSON(w, http.StatusCreated, toWalletJSON(wallet))
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	wallets, err := s.svc.ListWallets(r.Context(), actor)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to list wallets", err,
			applog.ComponentHTTP, "list_wallets", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to list wallets")
		return
	}

	out := make([]walletJSON, len(wallets))
	for i, wl := range wallets {
		out[i] = toWalletJSON(wl)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJoinWallet(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	wallet, err := s.svc.JoinWallet(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "wallet not found")
			return
		}
		s.structured.LogError(r.Context(), "Failed to join wallet", err,
			applog.ComponentHTTP, "join_wallet", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to join wallet")
		return
	}
	writeJSON(w, http.StatusOK, toWalletJSON(wallet))
}

func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	err := s.svc.DeleteWallet(r.Context(), actor, r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, services.ErrNoAccess):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.structured.LogError(r.Context(), "Failed to delete wallet", err,
			applog.ComponentHTTP, "delete_wallet", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to delete wallet")
	}
}

func (s *Server) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	walletID := r.PathValue("id")
	balance, err := s.svc.WalletBalance(r.Context(), actor, walletID)
	if err != nil {
		if errors.Is(err, services.ErrNoAccess) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.structured.LogError(r.Context(), "Failed to read balance", err,
			applog.ComponentHTTP, "wallet_balance", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet_id":     walletID,
		"balance_cents": balance,
		"balance":       core.FormatCents(balance),
	})
}

func (s *Server) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	walletID := r.PathValue("id")
	// Membership gate reuses the balance path's access rule.
	if _, err := s.svc.WalletBalance(r.Context(), actor, walletID); err != nil {
		if errors.Is(err, services.ErrNoAccess) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := s.audit.ListAuditEvents(r.Context(), walletID, limit)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to list audit events", err,
			applog.ComponentHTTP, "wallet_history", applog.NewFields())
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	out := make([]auditEventJSON, len(events))
	for i, ev := range events {
		out[i] = toAuditEventJSON(ev)
	}
	writeJSON(w, http.StatusOK, out)
}
