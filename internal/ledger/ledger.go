// Package ledger holds the wage accrual ledger: a running balance and an
// optional daily wage that is credited once per elapsed calendar day.
//
// The ledger is an explicit state container. Shells construct one per
// process, call Load once, then invoke mutations. Several processes may share
// one store: every mutation re-reads the stored state and persists its result
// inside a single store update, so a write from another process is built on
// rather than overwritten. When a write fails the error is logged and
// returned while the in-memory state stays ahead of the store; until a later
// write succeeds, mutations build on memory instead of re-reading.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"paga/internal/core"
	"paga/internal/kv"
	"paga/internal/log"
)

// State is a point-in-time copy of the ledger.
type State struct {
	Balance core.Money
	Wage    core.DailyWage
}

// CreditPolicy decides whether SetDailyWage also credits the amount once.
type CreditPolicy int

const (
	// CreditIfFirst credits only when no wage was configured before. The
	// check runs on the freshest stored state, under the ledger lock.
	CreditIfFirst CreditPolicy = iota
	CreditAlways
	CreditNever
)

func (p CreditPolicy) credits(hadWage bool) bool {
	switch p {
	case CreditAlways:
		return true
	case CreditNever:
		return false
	default:
		return !hadWage
	}
}

type Ledger struct {
	mu sync.Mutex

	store     kv.Store
	now       func() time.Time
	loc       *time.Location
	logger    *log.Logger
	publisher Publisher

	balance core.Money
	wage    core.DailyWage
	// ahead is set after a failed write: memory holds changes the store lacks
	ahead bool
}

type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLocation sets the calendar used to count elapsed days. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger.WithComponent(log.ComponentLedger)
		}
	}
}

// WithPublisher registers a sink for ledger events. A nil publisher disables events.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) {
		l.publisher = p
	}
}

func New(store kv.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		loc:    time.Local,
		logger: log.FromSlog(nil, log.ComponentLedger),
		wage:   core.NoWage(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory state with the persisted one and then runs the
// accrual step. A key that cannot be read or decoded falls back to its
// default (balance 0, no wage); such failures are logged, not returned. The
// returned error, if any, is a write failure from the accrual step.
func (l *Ledger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = core.Money{}
	l.wage = core.NoWage()
	l.ahead = false

	_, _, err := l.accrueLocked(ctx)
	return err
}

// Refresh replaces the in-memory state with the stored one without accruing,
// so readers see changes made by other processes. It does nothing while
// memory is ahead of the store.
func (l *Ledger) Refresh(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ahead {
		return
	}
	st := l.current(ctx, l.store)
	l.balance, l.wage = st.Balance, st.Wage
}

// Accrue credits the daily wage for every whole calendar day elapsed since
// the last accrual and moves the accrual timestamp to now. It returns the
// amount credited and the number of days it covers.
func (l *Ledger) Accrue(ctx context.Context) (core.Money, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accrueLocked(ctx)
}

func (l *Ledger) accrueLocked(ctx context.Context) (core.Money, int, error) {
	now := l.now()
	var (
		s       settlement
		settled bool
	)
	err := l.apply(ctx, func(st *State) (touched, error) {
		var serr error
		s, settled, serr = l.settle(ctx, st, now)
		if serr != nil {
			// Leave the wage and its timestamp alone; nothing is credited
			l.logger.WarnContext(ctx, "accrual would overflow the balance, skipping",
				log.NewFields().WithOperation(log.OpAccrue).WithError(serr).ToSlice()...)
			settled = false
		}
		if !settled {
			return touched{}, nil
		}
		return touched{wage: true, balance: s.days > 0}, nil
	})
	if !settled {
		return core.Money{}, 0, err
	}

	l.logger.LogOp(ctx, log.OpAccrue, err, log.NewFields().
		WithMoney(s.credited.Cents, l.balance.Cents).
		WithDays(s.days))

	if err == nil && s.days > 0 {
		l.publishAccrual(ctx, now, s)
	}
	return s.credited, s.days, err
}

type settlement struct {
	rate     core.Money
	credited core.Money
	days     int
}

// settle credits st's pending whole days and moves the wage timestamp to
// now. ok is false when nothing was touched: no wage, or a stored timestamp
// ahead of now. A credit that would leave the money range returns
// core.ErrAmountOverflow with st unchanged.
func (l *Ledger) settle(ctx context.Context, st *State, now time.Time) (s settlement, ok bool, err error) {
	w, set := st.Wage.Get()
	if !set {
		return settlement{}, false, nil
	}
	if w.LastAccrual.After(now) {
		// Never move the timestamp backwards; days resume once the clock catches up
		l.logger.WarnContext(ctx, "last accrual is in the future, skipping",
			"last_accrual", w.LastAccrual, "now", now)
		return settlement{}, false, nil
	}

	s.rate = w.Amount
	s.days = core.DaysBetweenIn(now, w.LastAccrual, l.loc)
	balance := st.Balance
	if s.days > 0 {
		if s.credited, err = w.Amount.Times(s.days); err != nil {
			return settlement{}, false, err
		}
		if balance, err = balance.Add(s.credited); err != nil {
			return settlement{}, false, err
		}
	}
	st.Balance = balance
	st.Wage = core.SomeWage(w.Amount, now)
	return s, true, nil
}

// SetDailyWage configures the daily wage with the accrual timestamp set to
// now. policy decides whether the amount is also credited once; it reports
// whether that happened.
//
// Replacing an existing wage never credits the difference between the two
// rates. Whole days still pending at the old rate are settled first, so each
// rate applies to the days it was in effect.
func (l *Ledger) SetDailyWage(ctx context.Context, amount core.Money, policy CreditPolicy) (bool, error) {
	if err := amount.Validate(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var (
		s      settlement
		credit bool
	)
	err := l.apply(ctx, func(st *State) (touched, error) {
		credit = policy.credits(st.Wage.IsSet())
		var serr error
		if s, _, serr = l.settle(ctx, st, now); serr != nil {
			return touched{}, serr
		}
		if credit {
			b, err := st.Balance.Add(amount)
			if err != nil {
				return touched{}, err
			}
			st.Balance = b
		}
		st.Wage = core.SomeWage(amount, now)
		return touched{wage: true, balance: s.days > 0 || credit}, nil
	})
	if err != nil && !errors.Is(err, kv.ErrStorageWrite) {
		return false, err
	}

	l.logger.LogOp(ctx, log.OpSetWage, err, log.NewFields().
		WithMoney(amount.Cents, l.balance.Cents).
		WithDays(s.days))
	if err != nil {
		return credit, err
	}

	if s.days > 0 {
		l.publishAccrual(ctx, now, s)
	}
	e := newEvent(EventWageSet, now)
	e.Amount = amount
	if credit {
		e.Delta = amount
	}
	e.Balance = l.balance
	l.publish(ctx, e)
	return credit, nil
}

// RecordExpense subtracts a positive amount from the balance. The balance
// may go negative.
func (l *Ledger) RecordExpense(ctx context.Context, amount core.Money) error {
	if err := amount.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.apply(ctx, func(st *State) (touched, error) {
		b, err := st.Balance.Sub(amount)
		if err != nil {
			return touched{}, err
		}
		st.Balance = b
		return touched{balance: true}, nil
	})
	if err != nil && !errors.Is(err, kv.ErrStorageWrite) {
		return err
	}
	l.logger.LogOp(ctx, log.OpExpense, err, log.NewFields().WithMoney(amount.Cents, l.balance.Cents))
	if err != nil {
		return err
	}

	e := newEvent(EventExpenseRecorded, l.now())
	e.Amount = amount
	e.Delta = amount.Neg()
	e.Balance = l.balance
	l.publish(ctx, e)
	return nil
}

// SetBalance overwrites the balance with an absolute value of any sign
// within the money range.
func (l *Ledger) SetBalance(ctx context.Context, balance core.Money) error {
	if !balance.InRange() {
		return core.ErrAmountOverflow
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var delta core.Money
	err := l.apply(ctx, func(st *State) (touched, error) {
		// Both sides are in range, so the raw difference cannot overflow
		delta = core.Money{Cents: balance.Cents - st.Balance.Cents}
		st.Balance = balance
		return touched{balance: true}, nil
	})
	l.logger.LogOp(ctx, log.OpSetBalance, err, log.NewFields().WithMoney(balance.Cents, l.balance.Cents))
	if err != nil {
		return err
	}

	e := newEvent(EventBalanceSet, l.now())
	e.Amount = balance
	e.Delta = delta
	e.Balance = l.balance
	l.publish(ctx, e)
	return nil
}

// ResetAll clears the store and then zeroes the balance and removes the
// wage. If clearing fails the in-memory state is left untouched.
func (l *Ledger) ResetAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	previous := l.current(ctx, l.store).Balance
	if err := l.store.Clear(ctx); err != nil {
		werr := kv.WriteError("", err)
		l.logger.LogOp(ctx, log.OpReset, werr, nil)
		return werr
	}

	l.balance = core.Money{}
	l.wage = core.NoWage()
	l.ahead = false
	l.logger.LogOp(ctx, log.OpReset, nil, nil)

	e := newEvent(EventReset, l.now())
	e.Delta = previous.Neg()
	l.publish(ctx, e)
	return nil
}

// touched names the keys a change wants persisted.
type touched struct {
	balance bool
	wage    bool
}

// apply runs change on the current state and persists the keys it touched
// in one store update. An error from change is returned as is and nothing
// moves. Otherwise memory takes the new state even when the write fails, in
// which case the error matches kv.ErrStorageWrite.
func (l *Ledger) apply(ctx context.Context, change func(st *State) (touched, error)) error {
	var (
		next      State
		changeErr error
		ran       bool
	)
	err := kv.Update(ctx, l.store, func(tx kv.Txn) error {
		ran = true
		next = l.current(ctx, tx)
		var keys touched
		keys, changeErr = change(&next)
		if changeErr != nil {
			return changeErr
		}
		return l.persist(ctx, tx, next, keys)
	})
	if changeErr != nil {
		return changeErr
	}
	if err != nil && !ran {
		// The store failed before fn ran; apply to memory so the change is not lost
		next = State{Balance: l.balance, Wage: l.wage}
		if _, cerr := change(&next); cerr != nil {
			return cerr
		}
	}
	if err != nil && !errors.Is(err, kv.ErrStorageWrite) {
		err = kv.WriteError("", err)
	}

	l.balance, l.wage = next.Balance, next.Wage
	l.ahead = err != nil
	return err
}

// current is the state a mutation builds on: the stored one, or memory when
// memory is ahead. A key that cannot be read keeps its in-memory value.
func (l *Ledger) current(ctx context.Context, tx kv.Txn) State {
	if l.ahead {
		return State{Balance: l.balance, Wage: l.wage}
	}
	return State{
		Balance: l.readBalance(ctx, tx, l.balance),
		Wage:    l.readWage(ctx, tx, l.wage),
	}
}

// persist writes the wage before the balance.
func (l *Ledger) persist(ctx context.Context, tx kv.Txn, st State, keys touched) error {
	if keys.wage {
		if w, ok := st.Wage.Get(); ok {
			if err := writeWage(ctx, tx, w); err != nil {
				return err
			}
		}
	}
	if keys.balance {
		if err := tx.Set(ctx, KeyBalance, encodeBalance(st.Balance)); err != nil {
			return kv.WriteError(KeyBalance, err)
		}
	}
	return nil
}

func writeWage(ctx context.Context, tx kv.Txn, w core.Wage) error {
	raw, err := encodeWage(w)
	if err != nil {
		return kv.WriteError(KeyDailyWage, err)
	}
	if err := tx.Set(ctx, KeyDailyWage, raw); err != nil {
		return kv.WriteError(KeyDailyWage, err)
	}
	return nil
}

func (l *Ledger) Balance() core.Money {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) DailyWage() core.DailyWage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wage
}

// HasWage reports whether a daily wage is configured.
func (l *Ledger) HasWage() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wage.IsSet()
}

func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{Balance: l.balance, Wage: l.wage}
}

// Location returns the calendar used for day counting.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

func (l *Ledger) readBalance(ctx context.Context, tx kv.Txn, fallback core.Money) core.Money {
	raw, ok, err := tx.Get(ctx, KeyBalance)
	if err != nil {
		l.logReadFailure(ctx, KeyBalance, err)
		return fallback
	}
	if !ok {
		return core.Money{}
	}
	m, ok, err := decodeBalance(raw)
	if err != nil {
		l.logReadFailure(ctx, KeyBalance, err)
		return fallback
	}
	if !ok {
		return core.Money{}
	}
	return m
}

func (l *Ledger) readWage(ctx context.Context, tx kv.Txn, fallback core.DailyWage) core.DailyWage {
	raw, ok, err := tx.Get(ctx, KeyDailyWage)
	if err != nil {
		l.logReadFailure(ctx, KeyDailyWage, err)
		return fallback
	}
	if !ok {
		return core.NoWage()
	}
	w, err := decodeWage(raw)
	if err != nil {
		l.logReadFailure(ctx, KeyDailyWage, err)
		return fallback
	}
	return w
}

func (l *Ledger) logReadFailure(ctx context.Context, key string, err error) {
	l.logger.WarnContext(ctx, "stored value unreadable, using fallback",
		log.NewFields().
			WithOperation(log.OpRead).
			WithKey(key).
			WithError(kv.ReadError(key, err)).
			ToSlice()...)
}

func (l *Ledger) publishAccrual(ctx context.Context, at time.Time, s settlement) {
	e := newEvent(EventWageAccrued, at)
	e.Amount = s.rate
	e.Delta = s.credited
	e.Balance = l.balance
	e.Days = s.days
	l.publish(ctx, e)
}

// publish hands e to the publisher. Failures are logged only; the mutation
// has already been persisted.
func (l *Ledger) publish(ctx context.Context, e Event) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.logger.WarnContext(ctx, "failed to publish ledger event",
			log.FieldEventID, e.ID,
			log.FieldEventKind, string(e.Kind),
			log.FieldError, err.Error())
	}
}
