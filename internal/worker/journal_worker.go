package worker

import (
	"context"
	"fmt"
	"time"

	"paga/internal/amqp"
	"paga/internal/cache"
	"paga/internal/log"
	"paga/internal/sheets"
)

const (
	defaultSeenSize = 1024
	defaultSeenTTL  = 24 * time.Hour
)

// JournalWorker appends ledger events to a journal. Redelivered events that
// were already written are acknowledged without a second append.
type JournalWorker struct {
	journal sheets.JournalWriter
	seen    *cache.LRUCache[string]
	logger  *log.Logger
}

func NewJournalWorker(journal sheets.JournalWriter, logger *log.Logger) *JournalWorker {
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentWorker)
	}
	return &JournalWorker{
		journal: journal,
		seen:    cache.NewLRUCache[string](defaultSeenSize, defaultSeenTTL),
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// SeenCache exposes the dedup cache so the caller can register it for cleanup.
func (w *JournalWorker) SeenCache() *cache.LRUCache[string] {
	return w.seen
}

// HandleLedgerEvent processes a single ledger event message from AMQP
func (w *JournalWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if ref, ok := w.seen.Get(msg.ID); ok {
		w.logger.InfoContext(ctx, "Skipping already journaled event",
			log.FieldEventID, msg.ID,
			log.FieldJournalRef, ref)
		return nil
	}

	ref, err := w.journal.AppendEntry(ctx, msg.Event().JournalEntry())
	if err != nil {
		return fmt.Errorf("append journal entry %s: %w", msg.ID, err)
	}
	w.seen.Set(msg.ID, ref)

	w.logger.InfoContext(ctx, "Journaled ledger event",
		log.FieldEventID, msg.ID,
		log.FieldEventKind, msg.Kind,
		log.FieldAmountCents, msg.AmountCents,
		log.FieldBalanceCents, msg.BalanceCents,
		log.FieldJournalRef, ref)
	return nil
}
