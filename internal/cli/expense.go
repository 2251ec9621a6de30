package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExpenseCmd(open LedgerOpener) *cobra.Command {
	return LeafCommand{
		Use:   "expense <amount>",
		Short: "Subtract an expense from the balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parsePositive(args[0])
			if err != nil {
				return err
			}
			return withLedger(cmd, open, func(l LedgerService) error {
				if err := mutationErr("record expense", l.RecordExpense(cmd.Context(), amount)); err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(w, "expense of %s recorded\n", amount)
				printState(w, l)
				return nil
			})
		},
	}.Build()
}
