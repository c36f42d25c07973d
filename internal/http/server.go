// Package http exposes the mutation and reporting API over JSON.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	applog "walletd/internal/log"
	"walletd/internal/services"
	"walletd/internal/store"
)

// mutationRateLimit is the per-caller mutation budget per minute.
const mutationRateLimit = 60

type Server struct {
	http.Server
	svc        *services.MutationService
	audit      store.AuditStore
	structured *applog.StructuredLogger
	now        func() time.Time

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithClock injects the time source used for default transaction dates
// and default reporting periods, the same seam the coordinator has.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Every caller identifies itself with the X-Actor-ID header;
// the server never authenticates, it only scopes.
func NewServer(addr string, svc *services.MutationService, audit store.AuditStore, logger *applog.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		svc:         svc,
		audit:       audit,
		structured:  applog.NewStructuredLogger(logger.WithComponent(applog.ComponentHTTP)),
		now:         time.Now,
		rateLimiter: newRateLimiter(mutationRateLimit),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/wallets", s.with(s.handleCreateWallet))
	mux.HandleFunc("GET /api/wallets", s.with(s.handleListWallets))
	mux.HandleFunc("DELETE /api/wallets/{id}", s.with(s.handleDeleteWallet))
	mux.HandleFunc("POST /api/wallets/{id}/join", s.with(s.handleJoinWallet))
	mux.HandleFunc("GET /api/wallets/{id}/balance", s.with(s.handleWalletBalance))
	mux.HandleFunc("GET /api/wallets/{id}/history", s.with(s.handleWalletHistory))

	mux.HandleFunc("POST /api/transactions", s.with(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions", s.with(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions/preview", s.with(s.handlePreviewTransaction))
	mux.HandleFunc("PUT /api/transactions/{id}", s.with(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.with(s.handleDeleteTransaction))

	mux.HandleFunc("POST /api/budgets", s.with(s.handleUpsertBudget))
	mux.HandleFunc("GET /api/budgets", s.with(s.handleBudgetStatuses))
	mux.HandleFunc("DELETE /api/budgets/{id}", s.with(s.handleDeleteBudget))

	return s
}

// with wraps a handler with security headers, rate limiting on mutating
// methods, request IDs, and timing logs.
func (s *Server) with(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), applog.LoggerContextKey, applog.FromContext(r.Context()).With(applog.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		s.structured.LogHTTPStart(ctx, r, clientIP)

		if isMutating(r.Method) {
			key := r.Header.Get("X-Actor-ID")
			if key == "" {
				key = clientIP
			}
			if !s.rateLimiter.allow(key) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				s.structured.LogHTTPEnd(ctx, r, http.StatusTooManyRequests, time.Since(start).Milliseconds(), clientIP)
				return
			}
		}

		setSecurityHeaders(w)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Shutdown stops the rate limiter cleanup goroutine and drains the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// actorID extracts the caller identity. Empty means the request cannot
// be scoped and is refused.
func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Actor-ID"))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
