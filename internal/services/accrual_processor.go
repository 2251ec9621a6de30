package services

import (
	"context"
	"errors"
	"time"

	"paga/internal/core"
	"paga/internal/log"
)

// Accruer is the part of the ledger the processor drives.
type Accruer interface {
	Accrue(ctx context.Context) (credited core.Money, days int, err error)
}

// AccrualProcessor credits elapsed days periodically so a long-running
// process does not wait for a restart to pick up a new calendar day.
type AccrualProcessor struct {
	ledger   Accruer
	interval time.Duration
	logger   *log.Logger
}

func NewAccrualProcessor(ledger Accruer, interval time.Duration, logger *log.Logger) *AccrualProcessor {
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentAccrual)
	}
	return &AccrualProcessor{
		ledger:   ledger,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentAccrual),
	}
}

// ProcessOnce runs a single accrual and returns the days credited.
func (p *AccrualProcessor) ProcessOnce(ctx context.Context) (int, error) {
	if p.ledger == nil {
		return 0, errors.New("processor not properly initialized")
	}

	credited, days, err := p.ledger.Accrue(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Accrual failed", log.FieldError, err.Error())
		return days, err
	}
	if days > 0 {
		p.logger.InfoContext(ctx, "Accrued daily wage",
			log.FieldDays, days,
			log.FieldAmountCents, credited.Cents)
	}
	return days, nil
}

// Run processes on every tick until ctx is cancelled. It always returns ctx.Err().
func (p *AccrualProcessor) Run(ctx context.Context) error {
	interval := p.interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "Accrual processor started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Accrual processor stopped")
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err == nil {
				p.logger.DebugContext(ctx, "Accrual check complete",
					"next_check", now.Add(interval).Format("15:04:05"))
			}
		}
	}
}
