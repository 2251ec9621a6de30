package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paga/internal/core"
	"paga/internal/ledger"
)

const wageTimeLayout = "2006-01-02T15:04:05Z07:00"

type wageView struct {
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	LastAccrual string `json:"last_accrual"`
}

type stateView struct {
	Balance      string    `json:"balance"`
	BalanceCents int64     `json:"balance_cents"`
	DailyWage    *wageView `json:"daily_wage"`
	Warning      string    `json:"warning,omitempty"`
}

func newStateView(st ledger.State, loc *time.Location) stateView {
	v := stateView{
		Balance:      st.Balance.String(),
		BalanceCents: st.Balance.Cents,
	}
	if w, ok := st.Wage.Get(); ok {
		if loc == nil {
			loc = time.Local
		}
		v.DailyWage = &wageView{
			Amount:      w.Amount.String(),
			AmountCents: w.Amount.Cents,
			LastAccrual: w.LastAccrual.In(loc).Format(wageTimeLayout),
		}
	}
	return v
}

type errorView struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorView{Error: msg})
}

// formatEuros renders cents for the page, Italian style ("€12,34").
func formatEuros(m core.Money) string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10) + "," + fmt.Sprintf("%02d", cents%100)
	if neg {
		return "-€" + s
	}
	return "€" + s
}

// sanitizeInput trims and drops control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
