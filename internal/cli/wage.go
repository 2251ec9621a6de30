package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"paga/internal/ledger"
)

func newWageCmd(open LedgerOpener) *cobra.Command {
	set := LeafCommand{
		Use:   "set <amount>",
		Short: "Set the daily wage",
		Long: "Set the daily wage. The first time a wage is configured the amount is\n" +
			"credited once right away; pass --credit=false to skip it, or --credit to\n" +
			"credit when replacing an existing wage.",
		Args: cobra.ExactArgs(1),
		BoolFlags: []BoolFlag{
			{Name: "credit", Usage: "credit the amount to the balance now"},
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parsePositive(args[0])
			if err != nil {
				return err
			}
			return withLedger(cmd, open, func(l LedgerService) error {
				policy := ledger.CreditIfFirst
				if cmd.Flags().Changed("credit") {
					policy = ledger.CreditNever
					if on, _ := cmd.Flags().GetBool("credit"); on {
						policy = ledger.CreditAlways
					}
				}
				credit, err := l.SetDailyWage(cmd.Context(), amount, policy)
				if err := mutationErr("set daily wage", err); err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if credit {
					_, _ = fmt.Fprintf(w, "daily wage set to %s, credited\n", amount)
				} else {
					_, _ = fmt.Fprintf(w, "daily wage set to %s\n", amount)
				}
				printState(w, l)
				return nil
			})
		},
	}.Build()

	return GroupCommand{
		Use:         "wage",
		Short:       "Manage the daily wage",
		Subcommands: []*cobra.Command{set},
	}.Build()
}
