// Package worker consumes mutation events off the audit stream and
// appends them to the audit trail.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"walletd/internal/amqp"
	"walletd/internal/store"
)

// AuditWorker appends consumed mutation events to an AuditStore. The
// trail is append-only and advisory: the ledger is never rebuilt from
// it, so a dropped event loses history but never money.
type AuditWorker struct {
	audit     store.AuditStore
	processed int64
}

func NewAuditWorker(audit store.AuditStore) *AuditWorker {
	return &AuditWorker{audit: audit}
}

// Processed returns how many events this worker has appended.
func (w *AuditWorker) Processed() int64 {
	return atomic.LoadInt64(&w.processed)
}

// HandleMutationEvent processes a single mutation event from AMQP.
func (w *AuditWorker) HandleMutationEvent(ctx context.Context, msg *amqp.MutationEvent) error {
	slog.InfoContext(ctx, "Processing mutation event",
		"kind", msg.Kind,
		"operation", msg.Operation,
		"wallet_id", msg.WalletID,
		"entity_id", msg.EntityID)

	if err := validateEvent(msg); err != nil {
		return err
	}

	ev, err := w.audit.AppendAuditEvent(ctx, store.AuditEvent{
		Kind:        msg.Kind,
		Operation:   msg.Operation,
		WalletID:    msg.WalletID,
		ActorID:     msg.ActorID,
		EntityID:    msg.EntityID,
		AmountCents: msg.AmountCents,
		Category:    msg.Category,
		OccurredAt:  msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	atomic.AddInt64(&w.processed, 1)
	slog.InfoContext(ctx, "Appended audit event",
		"audit_id", ev.ID,
		"kind", ev.Kind,
		"operation", ev.Operation,
		"wallet_id", ev.WalletID)

	return nil
}

// validateEvent errors are wrapped in amqp.ErrPermanent: a malformed
// event stays malformed on every redelivery, so the consumer must drop
// it rather than requeue it.
func validateEvent(msg *amqp.MutationEvent) error {
	switch msg.Kind {
	case amqp.KindTransaction, amqp.KindBudget:
	default:
		return fmt.Errorf("%w: unknown event kind %q", amqp.ErrPermanent, msg.Kind)
	}
	switch msg.Operation {
	case amqp.OpCreate, amqp.OpUpdate, amqp.OpDelete:
	default:
		return fmt.Errorf("%w: unknown event operation %q", amqp.ErrPermanent, msg.Operation)
	}
	if msg.WalletID == "" {
		return fmt.Errorf("%w: event missing wallet id", amqp.ErrPermanent)
	}
	return nil
}
