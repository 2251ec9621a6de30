package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"paga/internal/core"
)

func newStatusCmd(open LedgerOpener) *cobra.Command {
	return LeafCommand{
		Use:   "status",
		Short: "Show balance and daily wage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, open, func(l LedgerService) error {
				printState(cmd.OutOrStdout(), l)
				return nil
			})
		},
	}.Build()
}

func printState(w io.Writer, l LedgerService) {
	st := l.Snapshot()
	_, _ = fmt.Fprintf(w, "balance:    %s\n", balanceText(st.Balance))
	wg, ok := st.Wage.Get()
	if !ok {
		_, _ = fmt.Fprintf(w, "daily wage: %s\n", Silent("not set"))
		return
	}
	_, _ = fmt.Fprintf(w, "daily wage: %s\n", wg.Amount.String())
	_, _ = fmt.Fprintf(w, "accrued to: %s\n", Silent(wg.LastAccrual.In(l.Location()).Format("2006-01-02 15:04")))
}

func balanceText(m core.Money) string {
	if m.Cents < 0 {
		return Negative(m.String())
	}
	return Primary(m.String())
}
