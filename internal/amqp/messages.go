package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paga/internal/core"
	"paga/internal/ledger"
)

// LedgerEventMessage is the wire form of a ledger event. Money travels as
// integer cents.
type LedgerEventMessage struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	AmountCents  int64     `json:"amount_cents"`
	DeltaCents   int64     `json:"delta_cents"`
	BalanceCents int64     `json:"balance_cents"`
	Days         int       `json:"days,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewLedgerEventMessage builds the message for a ledger event
func NewLedgerEventMessage(e ledger.Event) *LedgerEventMessage {
	ts := e.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &LedgerEventMessage{
		ID:           e.ID,
		Kind:         string(e.Kind),
		AmountCents:  e.Amount.Cents,
		DeltaCents:   e.Delta.Cents,
		BalanceCents: e.Balance.Cents,
		Days:         e.Days,
		Timestamp:    ts.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Event converts the message back into a ledger event.
func (m *LedgerEventMessage) Event() ledger.Event {
	return ledger.Event{
		ID:      m.ID,
		Kind:    ledger.EventKind(m.Kind),
		Amount:  core.Money{Cents: m.AmountCents},
		Delta:   core.Money{Cents: m.DeltaCents},
		Balance: core.Money{Cents: m.BalanceCents},
		Days:    m.Days,
		At:      m.Timestamp,
	}
}

func (m *LedgerEventMessage) Validate() error {
	if m.ID == "" {
		return errors.New("missing event id")
	}
	if !ledger.EventKind(m.Kind).Valid() {
		return fmt.Errorf("unknown event kind %q", m.Kind)
	}
	if m.Days < 0 {
		return fmt.Errorf("negative days %d", m.Days)
	}
	return nil
}

// LedgerEventMessageFromJSON decodes and validates a message
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger event: %w", err)
	}
	return &msg, nil
}
