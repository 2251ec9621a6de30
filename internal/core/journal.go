package core

import "time"

// JournalEntry is one line of the ledger journal: a single balance-affecting
// or configuration event as it is appended to an external journal.
type JournalEntry struct {
	ID      string
	Kind    string
	At      time.Time
	Amount  Money // operand of the operation (wage, expense, new balance)
	Delta   Money // signed change applied to the balance
	Balance Money // balance after the operation
	Days    int   // whole days credited, accrual only
}
