package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"paga/internal/core"
)

type EventKind string

const (
	EventWageAccrued     EventKind = "wage_accrued"
	EventWageSet         EventKind = "wage_set"
	EventExpenseRecorded EventKind = "expense_recorded"
	EventBalanceSet      EventKind = "balance_set"
	EventReset           EventKind = "reset"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventWageAccrued, EventWageSet, EventExpenseRecorded, EventBalanceSet, EventReset:
		return true
	}
	return false
}

// Event describes one applied mutation. Amount is the operand (wage,
// expense, target balance); Delta is the signed change to the balance.
type Event struct {
	ID      string
	Kind    EventKind
	Amount  core.Money
	Delta   core.Money
	Balance core.Money
	Days    int
	At      time.Time
}

func newEvent(kind EventKind, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: kind, At: at}
}

// JournalEntry converts the event into a journal line.
func (e Event) JournalEntry() core.JournalEntry {
	return core.JournalEntry{
		ID:      e.ID,
		Kind:    string(e.Kind),
		At:      e.At,
		Amount:  e.Amount,
		Delta:   e.Delta,
		Balance: e.Balance,
		Days:    e.Days,
	}
}

// Publisher receives ledger events after the mutation has been persisted.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}
