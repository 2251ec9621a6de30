package cli

import (
	"context"
	"fmt"

	"paga/internal/backend"
	"paga/internal/config"
	"paga/internal/ledger"
	"paga/internal/log"
)

// OpenLedger builds the configured backend and a loaded ledger on top of it.
// A write failure during the initial accrual is logged and tolerated: the
// ledger is usable and the next mutation persists again. Close the returned
// backend when done.
func OpenLedger(ctx context.Context, cfg *config.Config, logger *log.Logger) (*ledger.Ledger, *backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("backend config: %w", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []ledger.Option{
		ledger.WithLocation(cfg.Location()),
		ledger.WithLogger(logger),
	}
	if res.Publisher != nil {
		opts = append(opts, ledger.WithPublisher(res.Publisher))
	}
	l := ledger.New(res.Store, opts...)
	if err := l.Load(ctx); err != nil {
		logger.WarnContext(ctx, "Initial accrual not persisted", log.FieldError, err)
	}
	return l, res, nil
}

// ConfigOpener adapts OpenLedger to the command tree.
func ConfigOpener(cfg *config.Config, logger *log.Logger) LedgerOpener {
	return func(ctx context.Context) (LedgerService, func() error, error) {
		l, res, err := OpenLedger(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return l, res.Close, nil
	}
}
