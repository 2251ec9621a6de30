package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"paga/internal/core"
	ports "paga/internal/sheets"
)

var (
	_ ports.JournalWriter = (*Journal)(nil)
	_ ports.JournalReader = (*Journal)(nil)
)

// Journal keeps journal lines in process memory. Used when no spreadsheet
// is configured and in tests.
type Journal struct {
	mu      sync.Mutex
	entries []core.JournalEntry
}

func New() *Journal {
	return &Journal{}
}

// AppendEntry stores the entry and returns a synthetic row reference.
func (j *Journal) AppendEntry(_ context.Context, e core.JournalEntry) (string, error) {
	if e.ID == "" || e.Kind == "" {
		return "", errors.New("journal entry needs an id and a kind")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return fmt.Sprintf("mem:%d", len(j.entries)), nil
}

func (j *Journal) Entries(_ context.Context) ([]core.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]core.JournalEntry(nil), j.entries...), nil
}
