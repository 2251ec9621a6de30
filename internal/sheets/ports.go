package sheets

import (
	"context"

	"paga/internal/core"
)

// Ports for outbound adapters.
type (
	// JournalWriter appends one ledger journal line and returns a reference
	// to where it landed (a sheet range, a row number).
	JournalWriter interface {
		AppendEntry(ctx context.Context, e core.JournalEntry) (ref string, err error)
	}

	// JournalReader lists the lines written so far, oldest first.
	JournalReader interface {
		Entries(ctx context.Context) ([]core.JournalEntry, error)
	}
)
