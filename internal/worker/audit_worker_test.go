package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"walletd/internal/amqp"
	"walletd/internal/store"
	"walletd/internal/store/memory"
)

func TestHandleMutationEvent(t *testing.T) {
	st := memory.New()
	w := NewAuditWorker(st)
	ctx := context.Background()

	ev := amqp.NewMutationEvent(
		amqp.KindTransaction, amqp.OpCreate,
		"wallet-1", "alice", "tx-1", 2500, "food")

	if err := w.HandleMutationEvent(ctx, ev); err != nil {
		t.Fatalf("HandleMutationEvent() error = %v", err)
	}

	events, err := st.ListAuditEvents(ctx, "wallet-1", 10)
	if err != nil {
		t.Fatalf("ListAuditEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	got := events[0]
	if got.Kind != amqp.KindTransaction || got.Operation != amqp.OpCreate {
		t.Errorf("event = %s/%s, want transaction/create", got.Kind, got.Operation)
	}
	if got.ActorID != "alice" || got.EntityID != "tx-1" {
		t.Errorf("actor/entity = %s/%s, want alice/tx-1", got.ActorID, got.EntityID)
	}
	if got.AmountCents != 2500 || got.Category != "food" {
		t.Errorf("amount/category = %d/%s, want 2500/food", got.AmountCents, got.Category)
	}
	if time.Since(got.OccurredAt) > time.Minute {
		t.Errorf("OccurredAt = %v, want recent", got.OccurredAt)
	}
}

func TestHandleMutationEventOrdering(t *testing.T) {
	st := memory.New()
	w := NewAuditWorker(st)
	ctx := context.Background()

	ops := []string{amqp.OpCreate, amqp.OpUpdate, amqp.OpDelete}
	for _, op := range ops {
		ev := amqp.NewMutationEvent(amqp.KindBudget, op, "wallet-1", "alice", "b-1", 4000, "food")
		if err := w.HandleMutationEvent(ctx, ev); err != nil {
			t.Fatalf("HandleMutationEvent(%s) error = %v", op, err)
		}
	}

	events, err := st.ListAuditEvents(ctx, "wallet-1", 10)
	if err != nil {
		t.Fatalf("ListAuditEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	// Newest first.
	want := []string{amqp.OpDelete, amqp.OpUpdate, amqp.OpCreate}
	for i, op := range want {
		if events[i].Operation != op {
			t.Errorf("events[%d].Operation = %s, want %s", i, events[i].Operation, op)
		}
	}
}

func TestHandleMutationEventRejectsMalformed(t *testing.T) {
	st := memory.New()
	w := NewAuditWorker(st)
	ctx := context.Background()

	tests := []struct {
		name    string
		event   *amqp.MutationEvent
		wantErr string
	}{
		{
			name:    "unknown kind",
			event:   amqp.NewMutationEvent("payment", amqp.OpCreate, "w1", "alice", "e1", 100, "food"),
			wantErr: "unknown event kind",
		},
		{
			name:    "unknown operation",
			event:   amqp.NewMutationEvent(amqp.KindTransaction, "upsert", "w1", "alice", "e1", 100, "food"),
			wantErr: "unknown event operation",
		},
		{
			name:    "missing wallet id",
			event:   amqp.NewMutationEvent(amqp.KindTransaction, amqp.OpCreate, "", "alice", "e1", 100, "food"),
			wantErr: "missing wallet id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.HandleMutationEvent(ctx, tt.event)
			if err == nil {
				t.Fatal("HandleMutationEvent() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
			// Malformed events can never succeed; the consumer must see
			// a permanent failure so the delivery is dropped, not
			// requeued forever.
			if !errors.Is(err, amqp.ErrPermanent) {
				t.Errorf("error = %q, want amqp.ErrPermanent", err)
			}
		})
	}

	events, err := st.ListAuditEvents(ctx, "w1", 10)
	if err != nil {
		t.Fatalf("ListAuditEvents() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len(events) = %d, want 0 after rejected events", len(events))
	}
}

type failingAudit struct{}

func (failingAudit) AppendAuditEvent(context.Context, store.AuditEvent) (store.AuditEvent, error) {
	return store.AuditEvent{}, errors.New("store unavailable")
}

func (failingAudit) ListAuditEvents(context.Context, string, int) ([]store.AuditEvent, error) {
	return nil, nil
}

func TestHandleMutationEventStoreFailureIsRetryable(t *testing.T) {
	w := NewAuditWorker(failingAudit{})
	ev := amqp.NewMutationEvent(
		amqp.KindTransaction, amqp.OpCreate,
		"wallet-1", "alice", "tx-1", 2500, "food")

	err := w.HandleMutationEvent(context.Background(), ev)
	if err == nil {
		t.Fatal("HandleMutationEvent() expected error")
	}
	// A store outage is transient; the delivery must be requeued.
	if errors.Is(err, amqp.ErrPermanent) {
		t.Errorf("error = %q, must not be amqp.ErrPermanent", err)
	}
	if w.Processed() != 0 {
		t.Errorf("Processed() = %d, want 0", w.Processed())
	}
}
