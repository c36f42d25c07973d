package amqp

import (
	"encoding/json"
	"time"
)

// Mutation event kinds and operations carried on the audit stream.
const (
	KindTransaction = "transaction"
	KindBudget      = "budget"

	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MutationEvent describes one committed mutation. Consumers append it to
// the audit trail; the ledger itself is never reconstructed from events.
type MutationEvent struct {
	Kind        string    `json:"kind"`
	Operation   string    `json:"operation"`
	WalletID    string    `json:"wallet_id"`
	ActorID     string    `json:"actor_id"`
	EntityID    string    `json:"entity_id"`
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewMutationEvent creates an event stamped with the current time.
func NewMutationEvent(kind, operation, walletID, actorID, entityID string, amountCents int64, category string) *MutationEvent {
	return &MutationEvent{
		Kind:        kind,
		Operation:   operation,
		WalletID:    walletID,
		ActorID:     actorID,
		EntityID:    entityID,
		AmountCents: amountCents,
		Category:    category,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *MutationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MutationEventFromJSON creates an event from JSON bytes
func MutationEventFromJSON(data []byte) (*MutationEvent, error) {
	var msg MutationEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
