package core

import (
	"errors"
	"time"
)

type (
	Money struct {
		Cents int64
	}

	// Wage is a configured daily wage and the instant up to which it has
	// already been credited to the balance.
	Wage struct {
		Amount      Money
		LastAccrual time.Time
	}

	// DailyWage is either a configured Wage or nothing. The zero value is the
	// absent case; use Get to reach the wage so the absent branch is never skipped.
	DailyWage struct {
		wage Wage
		set  bool
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

// SomeWage returns a configured daily wage.
func SomeWage(amount Money, lastAccrual time.Time) DailyWage {
	return DailyWage{wage: Wage{Amount: amount, LastAccrual: lastAccrual}, set: true}
}

// NoWage returns the absent daily wage.
func NoWage() DailyWage {
	return DailyWage{}
}

// Get returns the wage and true when one is configured.
func (d DailyWage) Get() (Wage, bool) {
	return d.wage, d.set
}

// IsSet reports whether a wage is configured.
func (d DailyWage) IsSet() bool {
	return d.set
}

// Validate accepts a positive amount within MaxCents.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	if m.Cents > MaxCents {
		return ErrAmountOverflow
	}
	return nil
}

func (w Wage) Validate() error {
	if err := w.Amount.Validate(); err != nil {
		return err
	}
	if w.LastAccrual.IsZero() {
		return ErrInvalidDate
	}
	return nil
}
