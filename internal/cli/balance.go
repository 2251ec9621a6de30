package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"paga/internal/core"
)

func newBalanceCmd(open LedgerOpener) *cobra.Command {
	set := LeafCommand{
		Use:   "set <amount>",
		Short: "Overwrite the balance",
		Long:  "Overwrite the balance with an absolute value. Negative values need --, e.g. paga balance set -- -12.50",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := core.ParseSignedDecimalToCents(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			balance := core.Money{Cents: cents}
			return withLedger(cmd, open, func(l LedgerService) error {
				if err := mutationErr("set balance", l.SetBalance(cmd.Context(), balance)); err != nil {
					return err
				}
				printState(cmd.OutOrStdout(), l)
				return nil
			})
		},
	}.Build()

	return GroupCommand{
		Use:         "balance",
		Short:       "Manage the balance",
		Subcommands: []*cobra.Command{set},
	}.Build()
}
