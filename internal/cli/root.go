package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paga/internal/core"
	"paga/internal/kv"
	"paga/internal/ledger"
)

// LedgerService is the part of *ledger.Ledger the command line drives.
type LedgerService interface {
	Snapshot() ledger.State
	Location() *time.Location
	SetDailyWage(ctx context.Context, amount core.Money, policy ledger.CreditPolicy) (bool, error)
	RecordExpense(ctx context.Context, amount core.Money) error
	SetBalance(ctx context.Context, balance core.Money) error
	ResetAll(ctx context.Context) error
}

var _ LedgerService = (*ledger.Ledger)(nil)

// LedgerOpener builds a loaded ledger, which means pending days are already
// credited. The returned close func releases the backend.
type LedgerOpener func(ctx context.Context) (LedgerService, func() error, error)

// NewRootCmd assembles the paga command tree. confirm is used by reset when
// --yes is not given; nil means an interactive huh prompt.
func NewRootCmd(open LedgerOpener, confirm ConfirmFunc) *cobra.Command {
	if confirm == nil {
		confirm = NewConfirmFunc()
	}
	root := &cobra.Command{
		Use:           "paga",
		Short:         "Daily wage accrual ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newStatusCmd(open),
		newWageCmd(open),
		newExpenseCmd(open),
		newBalanceCmd(open),
		newResetCmd(open, confirm),
	)
	return root
}

// withLedger opens the ledger for one command and always closes it.
func withLedger(cmd *cobra.Command, open LedgerOpener, fn func(LedgerService) error) (err error) {
	l, closeFn, err := open(cmd.Context())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if closeFn != nil {
			err = errors.Join(err, closeFn())
		}
	}()
	return fn(l)
}

// mutationErr turns a storage write failure into a user-facing error. A
// one-shot process loses its in-memory state on exit, so unlike the server
// the command fails.
func mutationErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kv.ErrStorageWrite) {
		return fmt.Errorf("%s was applied but could not be saved: %w", what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func parsePositive(arg string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(arg)
	if err != nil {
		return core.Money{}, fmt.Errorf("invalid amount %q: %w", arg, err)
	}
	return core.Money{Cents: cents}, nil
}
