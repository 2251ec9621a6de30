package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd(open LedgerOpener, confirm ConfirmFunc) *cobra.Command {
	return LeafCommand{
		Use:   "reset",
		Short: "Erase the balance and the daily wage",
		Args:  cobra.NoArgs,
		BoolFlags: []BoolFlag{
			{Name: "yes", Usage: "skip confirmation prompt"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ask := confirm
			if yes, _ := cmd.Flags().GetBool("yes"); yes {
				ask = AlwaysYes()
			}
			return runReset(cmd, open, ask)
		},
	}.Build()
}

func runReset(cmd *cobra.Command, open LedgerOpener, confirm ConfirmFunc) error {
	w := cmd.OutOrStdout()
	ok, err := confirm("Erase balance and daily wage?")
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(w, "cancelled")
		return nil
	}

	return withLedger(cmd, open, func(l LedgerService) error {
		if err := l.ResetAll(cmd.Context()); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		_, _ = fmt.Fprintln(w, Warning("ledger reset"))
		return nil
	})
}
