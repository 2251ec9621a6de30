package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"paga/internal/core"
)

// Persisted keys. The value shapes match what earlier releases wrote, so an
// existing store stays readable.
const (
	KeyBalance   = "balance"
	KeyDailyWage = "dailyWage"
)

// timestampLayout is an ISO-8601 UTC instant with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type wageRecord struct {
	Value json.Number `json:"value"`
	Date  string      `json:"date"`
}

func encodeBalance(m core.Money) []byte {
	return []byte(m.String())
}

// decodeBalance parses a JSON number in currency units. ok is false for a
// JSON null, which is treated like an absent key.
func decodeBalance(raw []byte) (m core.Money, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return core.Money{}, false, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return core.Money{}, false, fmt.Errorf("decode balance: %w", err)
	}
	m, err = moneyFromNumber(n, true)
	if err != nil {
		return core.Money{}, false, fmt.Errorf("decode balance %q: %w", n, err)
	}
	return m, true, nil
}

func encodeWage(w core.Wage) ([]byte, error) {
	return json.Marshal(wageRecord{
		Value: json.Number(w.Amount.String()),
		Date:  w.LastAccrual.UTC().Format(timestampLayout),
	})
}

func decodeWage(raw []byte) (core.DailyWage, error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return core.NoWage(), nil
	}
	var rec wageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.NoWage(), fmt.Errorf("decode daily wage: %w", err)
	}
	if rec.Value == "" {
		return core.NoWage(), fmt.Errorf("decode daily wage: missing value: %w", core.ErrInvalidAmount)
	}
	amount, err := moneyFromNumber(rec.Value, false)
	if err != nil {
		return core.NoWage(), fmt.Errorf("decode daily wage value %q: %w", rec.Value, err)
	}
	at, err := time.Parse(time.RFC3339Nano, rec.Date)
	if err != nil {
		return core.NoWage(), fmt.Errorf("decode daily wage date %q: %w", rec.Date, core.ErrInvalidDate)
	}
	w := core.Wage{Amount: amount, LastAccrual: at}
	if err := w.Validate(); err != nil {
		return core.NoWage(), fmt.Errorf("decode daily wage: %w", err)
	}
	return core.SomeWage(w.Amount, w.LastAccrual), nil
}

// moneyFromNumber prefers exact decimal parsing and falls back to float
// rounding for exponent forms such as 1e2.
func moneyFromNumber(n json.Number, signed bool) (core.Money, error) {
	s := n.String()
	var (
		cents int64
		err   error
	)
	if signed {
		cents, err = core.ParseSignedDecimalToCents(s)
	} else {
		cents, err = core.ParseDecimalToCents(s)
	}
	if err == nil {
		return core.Money{Cents: cents}, nil
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil {
		return core.Money{}, core.ErrInvalidAmount
	}
	m, merr := core.MoneyFromFloat(f)
	if merr != nil {
		return core.Money{}, merr
	}
	if !signed && m.Cents <= 0 {
		return core.Money{}, core.ErrInvalidAmount
	}
	return m, nil
}
