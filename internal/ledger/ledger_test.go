package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"paga/internal/core"
	"paga/internal/kv"
	"paga/internal/kv/memory"
	"paga/internal/log"
)

var utc = time.UTC

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// flakyStore wraps a memory store and fails selected operations.
type flakyStore struct {
	*memory.Store
	failGet   map[string]bool
	failSet   map[string]bool
	failClear bool
	sets      []string
}

func newFlakyStore(seed map[string]string) *flakyStore {
	return &flakyStore{
		Store:   memory.NewWithData(seed),
		failGet: map[string]bool{},
		failSet: map[string]bool{},
	}
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.failGet[key] {
		return nil, false, errors.New("disk unreadable")
	}
	return s.Store.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	s.sets = append(s.sets, key)
	if s.failSet[key] {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, key, value)
}

func (s *flakyStore) Clear(ctx context.Context) error {
	if s.failClear {
		return errors.New("permission denied")
	}
	return s.Store.Clear(ctx)
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) kinds() []EventKind {
	out := make([]EventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestLedger(store kv.Store, clock *fakeClock, opts ...Option) *Ledger {
	base := []Option{
		WithClock(clock.Now),
		WithLocation(utc),
		WithLogger(log.Discard()),
	}
	return New(store, append(base, opts...)...)
}

func cents(c int64) core.Money { return core.Money{Cents: c} }

func mustWage(t *testing.T, l *Ledger) core.Wage {
	t.Helper()
	w, ok := l.DailyWage().Get()
	if !ok {
		t.Fatalf("expected a daily wage to be set")
	}
	return w
}

func TestLoadEmptyStore(t *testing.T) {
	store := newFlakyStore(nil)
	clock := &fakeClock{now: time.Date(2024, 1, 13, 9, 0, 0, 0, utc)}
	l := newTestLedger(store, clock)

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !l.Balance().IsZero() {
		t.Errorf("balance = %v, want 0", l.Balance())
	}
	if l.HasWage() {
		t.Errorf("expected no wage")
	}
	if len(store.sets) != 0 {
		t.Errorf("empty load wrote %v, want nothing", store.sets)
	}
}

func TestLoadAccruesElapsedDays(t *testing.T) {
	store := newFlakyStore(map[string]string{
		KeyBalance:   `5`,
		KeyDailyWage: `{"value":10,"date":"2024-01-10T09:00:00.000Z"}`,
	})
	now := time.Date(2024, 1, 13, 8, 0, 0, 0, utc)
	clock := &fakeClock{now: now}
	pub := &recordingPublisher{}
	l := newTestLedger(store, clock, WithPublisher(pub))

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := l.Balance(); got != cents(3500) {
		t.Errorf("balance = %v, want 35.00", got)
	}
	w := mustWage(t, l)
	if w.Amount != cents(1000) || !w.LastAccrual.Equal(now) {
		t.Errorf("wage = %+v, want 10.00 at %v", w, now)
	}

	raw, _, _ := store.Store.Get(context.Background(), KeyBalance)
	if string(raw) != "35.00" {
		t.Errorf("persisted balance = %s, want 35.00", raw)
	}
	raw, _, _ = store.Store.Get(context.Background(), KeyDailyWage)
	if !strings.Contains(string(raw), `"date":"2024-01-13T08:00:00.000Z"`) {
		t.Errorf("persisted wage date not refreshed: %s", raw)
	}

	if len(pub.events) != 1 || pub.events[0].Kind != EventWageAccrued || pub.events[0].Days != 3 || pub.events[0].Delta != cents(3000) {
		t.Errorf("unexpected events %+v", pub.events)
	}
}

func TestLoadSameDayDoesNotCredit(t *testing.T) {
	store := newFlakyStore(map[string]string{
		KeyBalance:   `5`,
		KeyDailyWage: `{"value":10,"date":"2024-01-10T00:05:00.000Z"}`,
	})
	now := time.Date(2024, 1, 10, 23, 55, 0, 0, utc)
	l := newTestLedger(store, &fakeClock{now: now})

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := l.Balance(); got != cents(500) {
		t.Errorf("balance = %v, want 5.00", got)
	}
	// Timestamp is rewritten even without credit
	if w := mustWage(t, l); !w.LastAccrual.Equal(now) {
		t.Errorf("last accrual = %v, want %v", w.LastAccrual, now)
	}
	for _, k := range store.sets {
		if k == KeyBalance {
			t.Errorf("balance must not be written when nothing was credited")
		}
	}
}

func TestLoadTwiceDoesNotDoubleCredit(t *testing.T) {
	store := newFlakyStore(map[string]string{
		KeyBalance:   `5`,
		KeyDailyWage: `{"value":10,"date":"2024-01-10T09:00:00.000Z"}`,
	})
	clock := &fakeClock{now: time.Date(2024, 1, 13, 8, 0, 0, 0, utc)}
	l := newTestLedger(store, clock)
	ctx := context.Background()

	if err := l.Load(ctx); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	clock.Set(clock.Now().Add(time.Minute))
	if err := l.Load(ctx); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if got := l.Balance(); got != cents(3500) {
		t.Errorf("balance = %v, want 35.00", got)
	}

	// A fresh ledger over the same store sees the same state
	other := newTestLedger(store, clock)
	if err := other.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := other.Balance(); got != cents(3500) {
		t.Errorf("reloaded balance = %v, want 35.00", got)
	}
}

func TestLoadAcrossMidnight(t *testing.T) {
	store := newFlakyStore(map[string]string{
		KeyDailyWage: `{"value":10,"date":"2024-01-10T23:59:00.000Z"}`,
	})
	l := newTestLedger(store, &fakeClock{now: time.Date(2024, 1, 11, 0, 1, 0, 0, utc)})

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := l.Balance(); got != cents(1000) {
		t.Errorf("balance = %v, want 10.00", got)
	}
}

func TestLoadAcrossDSTSwitch(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}
	// 2024-03-31 is 23 hours long in Rome
	last := time.Date(2024, 3, 30, 23, 30, 0, 0, rome)
	now := time.Date(2024, 4, 1, 0, 15, 0, 0, rome)
	store := newFlakyStore(nil)
	w, _ := encodeWage(core.Wage{Amount: cents(1000), LastAccrual: last})
	_ = store.Store.Set(context.Background(), KeyDailyWage, w)

	l := newTestLedger(store, &fakeClock{now: now}, WithLocation(rome))
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := l.Balance(); got != cents(2000) {
		t.Errorf("balance = %v, want 20.00 for two civil days", got)
	}
}

func TestLoadFutureTimestampIsKept(t *testing.T) {
	store := newFlakyStore(map[string]string{
		KeyBalance:   `5`,
		KeyDailyWage: `{"value":10,"date":"2024-01-20T09:00:00.000Z"}`,
	})
	l := newTestLedger(store, &fakeClock{now: time.Date(2024, 1, 13, 9, 0, 0, 0, utc)})

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := l.Balance(); got != cents(500) {
		t.Errorf("balance = %v, want 5.00", got)
	}
	w := mustWage(t, l)
	if want := time.Date(2024, 1, 20, 9, 0, 0, 0, utc); !w.LastAccrual.Equal(want) {
		t.Errorf("last accrual regressed to %v", w.LastAccrual)
	}
	if len(store.sets) != 0 {
		t.Errorf("unexpected writes %v", store.sets)
	}
}

func TestLoadReadFailuresDefault(t *testing.T) {
	tests := []struct {
		name        string
		seed        map[string]string
		failGet     string
		wantBalance core.Money
		wantWage    bool
	}{
		{
			name:        "balance read error",
			seed:        map[string]string{KeyBalance: `12`},
			failGet:     KeyBalance,
			wantBalance: core.Money{},
		},
		{
			name:        "balance not a number",
			seed:        map[string]string{KeyBalance: `"abc"`},
			wantBalance: core.Money{},
		},
		{
			name:        "balance null",
			seed:        map[string]string{KeyBalance: `null`},
			wantBalance: core.Money{},
		},
		{
			name: "wage read error keeps balance",
			seed: map[string]string{
				KeyBalance:   `12.5`,
				KeyDailyWage: `{"value":10,"date":"2024-01-10T09:00:00.000Z"}`,
			},
			failGet:     KeyDailyWage,
			wantBalance: cents(1250),
		},
		{
			name: "wage corrupt json",
			seed: map[string]string{
				KeyBalance:   `3`,
				KeyDailyWage: `{"value":`,
			},
			wantBalance: cents(300),
		},
		{
			name:        "wage bad date",
			seed:        map[string]string{KeyDailyWage: `{"value":10,"date":"yesterday"}`},
			wantBalance: core.Money{},
		},
		{
			name:        "wage non-positive",
			seed:        map[string]string{KeyDailyWage: `{"value":0,"date":"2024-01-10T09:00:00.000Z"}`},
			wantBalance: core.Money{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFlakyStore(tt.seed)
			if tt.failGet != "" {
				store.failGet[tt.failGet] = true
			}
			l := newTestLedger(store, &fakeClock{now: time.Date(2024, 1, 13, 9, 0, 0, 0, utc)})

			if err := l.Load(context.Background()); err != nil {
				t.Fatalf("read failures must not be returned, got %v", err)
			}
			if got := l.Balance(); got != tt.wantBalance {
				t.Errorf("balance = %v, want %v", got, tt.wantBalance)
			}
			if l.HasWage() != tt.wantWage {
				t.Errorf("HasWage = %v, want %v", l.HasWage(), tt.wantWage)
			}
		})
	}
}

func TestLoadWriteFailureIsReturned(t *testing.T) {
	store := newFlakyStore(map[string]string{
		KeyBalance:   `5`,
		KeyDailyWage: `{"value":10,"date":"2024-01-10T09:00:00.000Z"}`,
	})
	store.failSet[KeyBalance] = true
	l := newTestLedger(store, &fakeClock{now: time.Date(2024, 1, 13, 8, 0, 0, 0, utc)})

	err := l.Load(context.Background())
	if !errors.Is(err, kv.ErrStorageWrite) {
		t.Fatalf("expected storage write error, got %v", err)
	}
	var se *kv.StorageError
	if !errors.As(err, &se) || se.Key != KeyBalance {
		t.Fatalf("expected StorageError on %q, got %#v", KeyBalance, err)
	}
	// In-memory state stays ahead of the store
	if got := l.Balance(); got != cents(3500) {
		t.Errorf("balance = %v, want 35.00", got)
	}
}

func TestSetDailyWageFirstTimeCredits(t *testing.T) {
	store := newFlakyStore(nil)
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, utc)
	pub := &recordingPublisher{}
	l := newTestLedger(store, &fakeClock{now: now}, WithPublisher(pub))
	ctx := context.Background()
	if err := l.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	credited, err := l.SetDailyWage(ctx, cents(2000), CreditIfFirst)
	if err != nil || !credited {
		t.Fatalf("SetDailyWage = %v, %v; want credited", credited, err)
	}
	if got := l.Balance(); got != cents(2000) {
		t.Errorf("balance = %v, want 20.00", got)
	}
	if w := mustWage(t, l); w.Amount != cents(2000) || !w.LastAccrual.Equal(now) {
		t.Errorf("wage = %+v", w)
	}

	raw, _, _ := store.Store.Get(ctx, KeyDailyWage)
	if string(raw) != `{"value":20.00,"date":"2024-01-10T09:00:00.000Z"}` {
		t.Errorf("persisted wage = %s", raw)
	}
	if kinds := pub.kinds(); len(kinds) != 1 || kinds[0] != EventWageSet {
		t.Errorf("events = %v", kinds)
	}
}

func TestSetDailyWageRedefinitionSettlesOldRate(t *testing.T) {
	store := newFlakyStore(nil)
	clock := &fakeClock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, utc)}
	pub := &recordingPublisher{}
	l := newTestLedger(store, clock, WithPublisher(pub))
	ctx := context.Background()

	if _, err := l.SetDailyWage(ctx, cents(1000), CreditAlways); err != nil {
		t.Fatalf("initial SetDailyWage: %v", err)
	}

	// Same day: no pending days, no credit for the new rate
	if _, err := l.SetDailyWage(ctx, cents(1500), CreditNever); err != nil {
		t.Fatalf("same-day redefine: %v", err)
	}
	if got := l.Balance(); got != cents(1000) {
		t.Errorf("balance after same-day redefine = %v, want 10.00", got)
	}

	// Two days later the pending days are credited at 15.00 before switching to 30.00
	clock.Set(time.Date(2024, 1, 12, 10, 0, 0, 0, utc))
	if _, err := l.SetDailyWage(ctx, cents(3000), CreditNever); err != nil {
		t.Fatalf("redefine: %v", err)
	}
	if got := l.Balance(); got != cents(4000) {
		t.Errorf("balance = %v, want 40.00", got)
	}
	w := mustWage(t, l)
	if w.Amount != cents(3000) || !w.LastAccrual.Equal(clock.Now()) {
		t.Errorf("wage = %+v", w)
	}

	want := []EventKind{EventWageSet, EventWageSet, EventWageAccrued, EventWageSet}
	got := pub.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if settled := pub.events[2]; settled.Amount != cents(1500) || settled.Days != 2 {
		t.Errorf("settlement event = %+v, want 2 days at 15.00", settled)
	}
}

func TestSetDailyWageRejectsNonPositive(t *testing.T) {
	store := newFlakyStore(nil)
	l := newTestLedger(store, &fakeClock{now: time.Now()})

	for _, amount := range []core.Money{cents(0), cents(-100)} {
		if _, err := l.SetDailyWage(context.Background(), amount, CreditAlways); !errors.Is(err, core.ErrInvalidAmount) {
			t.Errorf("SetDailyWage(%v) err = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if l.HasWage() || len(store.sets) != 0 {
		t.Errorf("invalid amount must not touch state")
	}
}

func TestRecordExpense(t *testing.T) {
	store := newFlakyStore(map[string]string{KeyBalance: `35`})
	pub := &recordingPublisher{}
	l := newTestLedger(store, &fakeClock{now: time.Date(2024, 1, 13, 9, 0, 0, 0, utc)}, WithPublisher(pub))
	ctx := context.Background()
	if err := l.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := l.RecordExpense(ctx, cents(700)); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if got := l.Balance(); got != cents(2800) {
		t.Errorf("balance = %v, want 28.00", got)
	}

	// Balance may go negative
	if err := l.RecordExpense(ctx, cents(3000)); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if got := l.Balance(); got != cents(-200) {
		t.Errorf("balance = %v, want -2.00", got)
	}
	raw, _, _ := store.Store.Get(ctx, KeyBalance)
	if string(raw) != "-2.00" {
		t.Errorf("persisted balance = %s", raw)
	}

	if len(pub.events) != 2 || pub.events[0].Delta != cents(-700) {
		t.Errorf("events = %+v", pub.events)
	}

	if err := l.RecordExpense(ctx, cents(0)); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("zero expense err = %v", err)
	}
}

func TestRecordExpenseWriteFailure(t *testing.T) {
	store := newFlakyStore(map[string]string{KeyBalance: `10`})
	pub := &recordingPublisher{}
	l := newTestLedger(store, &fakeClock{now: time.Now()}, WithPublisher(pub))
	ctx := context.Background()
	_ = l.Load(ctx)

	store.failSet[KeyBalance] = true
	err := l.RecordExpense(ctx, cents(250))
	if !errors.Is(err, kv.ErrStorageWrite) {
		t.Fatalf("err = %v, want storage write error", err)
	}
	if got := l.Balance(); got != cents(750) {
		t.Errorf("balance = %v, want 7.50", got)
	}
	if len(pub.events) != 0 {
		t.Errorf("no event expected on failed write, got %+v", pub.events)
	}
}

func TestSetBalance(t *testing.T) {
	store := newFlakyStore(map[string]string{KeyBalance: `10`})
	l := newTestLedger(store, &fakeClock{now: time.Now()})
	ctx := context.Background()
	_ = l.Load(ctx)

	for _, want := range []core.Money{cents(-1234), cents(0), cents(99999)} {
		if err := l.SetBalance(ctx, want); err != nil {
			t.Fatalf("SetBalance(%v): %v", want, err)
		}
		if got := l.Balance(); got != want {
			t.Errorf("balance = %v, want %v", got, want)
		}
		raw, _, _ := store.Store.Get(ctx, KeyBalance)
		if string(raw) != want.String() {
			t.Errorf("persisted = %s, want %s", raw, want)
		}
	}
}

func TestResetAllThenLoad(t *testing.T) {
	store := newFlakyStore(map[string]string{
		KeyBalance:   `35`,
		KeyDailyWage: `{"value":10,"date":"2024-01-13T09:00:00.000Z"}`,
		"unrelated":  `true`,
	})
	clock := &fakeClock{now: time.Date(2024, 1, 13, 10, 0, 0, 0, utc)}
	pub := &recordingPublisher{}
	l := newTestLedger(store, clock, WithPublisher(pub))
	ctx := context.Background()
	_ = l.Load(ctx)

	if err := l.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if len(store.Keys()) != 0 {
		t.Errorf("store not cleared: %v", store.Keys())
	}
	if !l.Balance().IsZero() || l.HasWage() {
		t.Errorf("state not reset: %+v", l.Snapshot())
	}

	if err := l.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !l.Balance().IsZero() || l.HasWage() {
		t.Errorf("reloaded state not empty: %+v", l.Snapshot())
	}
	if kinds := pub.kinds(); len(kinds) != 1 || kinds[0] != EventReset {
		t.Errorf("events = %v", kinds)
	}
}

func TestResetAllClearFailureKeepsState(t *testing.T) {
	store := newFlakyStore(map[string]string{KeyBalance: `35`})
	store.failClear = true
	l := newTestLedger(store, &fakeClock{now: time.Now()})
	ctx := context.Background()
	_ = l.Load(ctx)

	err := l.ResetAll(ctx)
	if !errors.Is(err, kv.ErrStorageWrite) {
		t.Fatalf("err = %v, want storage write error", err)
	}
	if got := l.Balance(); got != cents(3500) {
		t.Errorf("balance = %v, want untouched 35.00", got)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	store := newFlakyStore(nil)
	pub := &recordingPublisher{err: errors.New("broker down")}
	l := newTestLedger(store, &fakeClock{now: time.Now()}, WithPublisher(pub))

	if err := l.RecordExpense(context.Background(), cents(100)); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if len(pub.events) != 1 {
		t.Errorf("expected one publish attempt, got %d", len(pub.events))
	}
}

func TestAccrueReportsCredit(t *testing.T) {
	store := newFlakyStore(nil)
	clock := &fakeClock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, utc)}
	l := newTestLedger(store, clock)
	ctx := context.Background()

	if credited, days, err := l.Accrue(ctx); err != nil || days != 0 || !credited.IsZero() {
		t.Fatalf("Accrue without wage = %v, %d, %v", credited, days, err)
	}

	if _, err := l.SetDailyWage(ctx, cents(1250), CreditNever); err != nil {
		t.Fatalf("SetDailyWage: %v", err)
	}
	clock.Set(time.Date(2024, 1, 14, 7, 0, 0, 0, utc))
	credited, days, err := l.Accrue(ctx)
	if err != nil {
		t.Fatalf("Accrue: %v", err)
	}
	if days != 4 || credited != cents(5000) {
		t.Errorf("Accrue = %v over %d days, want 50.00 over 4", credited, days)
	}
	if got := l.Balance(); got != cents(5000) {
		t.Errorf("balance = %v, want 50.00", got)
	}
}

func TestConcurrentMutations(t *testing.T) {
	store := newFlakyStore(nil)
	l := newTestLedger(store, &fakeClock{now: time.Now()})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.RecordExpense(ctx, cents(100))
		}()
	}
	wg.Wait()
	if got := l.Balance(); got != cents(-5000) {
		t.Errorf("balance = %v, want -50.00", got)
	}
}

func TestLedgersSharingAStoreDoNotLoseWrites(t *testing.T) {
	store := newFlakyStore(map[string]string{KeyBalance: `100`})
	clock := &fakeClock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, utc)}
	cli := newTestLedger(store, clock)
	server := newTestLedger(store, clock)
	ctx := context.Background()
	for _, l := range []*Ledger{cli, server} {
		if err := l.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}

	if err := cli.RecordExpense(ctx, cents(3000)); err != nil {
		t.Fatalf("cli RecordExpense: %v", err)
	}
	if err := server.RecordExpense(ctx, cents(100)); err != nil {
		t.Fatalf("server RecordExpense: %v", err)
	}
	if got := server.Balance(); got != cents(6900) {
		t.Errorf("server balance = %v, want 69.00", got)
	}

	// The server sees the wage the cli configured and does not credit it again
	if credited, err := cli.SetDailyWage(ctx, cents(1000), CreditIfFirst); err != nil || !credited {
		t.Fatalf("cli SetDailyWage = %v, %v", credited, err)
	}
	if credited, err := server.SetDailyWage(ctx, cents(1200), CreditIfFirst); err != nil || credited {
		t.Fatalf("server SetDailyWage = %v, %v; want no credit", credited, err)
	}

	clock.Set(time.Date(2024, 1, 12, 9, 0, 0, 0, utc))
	if _, days, err := cli.Accrue(ctx); err != nil || days != 2 {
		t.Fatalf("cli Accrue = %d days, %v", days, err)
	}
	// Already settled by the cli: nothing left for the server
	if _, days, err := server.Accrue(ctx); err != nil || days != 0 {
		t.Fatalf("server Accrue = %d days, %v", days, err)
	}

	fresh := newTestLedger(store, clock)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	// 69 + 10 credited on first set + 2 days at 12
	if got := fresh.Balance(); got != cents(10300) {
		t.Errorf("persisted balance = %v, want 103.00", got)
	}
}

func TestRefreshPicksUpOtherWriters(t *testing.T) {
	store := newFlakyStore(map[string]string{KeyBalance: `5`})
	clock := &fakeClock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, utc)}
	a := newTestLedger(store, clock)
	b := newTestLedger(store, clock)
	ctx := context.Background()
	_ = a.Load(ctx)
	_ = b.Load(ctx)

	if err := a.SetBalance(ctx, cents(4200)); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if got := b.Balance(); got != cents(500) {
		t.Fatalf("b balance before refresh = %v", got)
	}
	b.Refresh(ctx)
	if got := b.Balance(); got != cents(4200) {
		t.Errorf("b balance after refresh = %v, want 42.00", got)
	}
}

func TestFailedWriteKeepsMemoryAhead(t *testing.T) {
	store := newFlakyStore(map[string]string{KeyBalance: `10`})
	l := newTestLedger(store, &fakeClock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, utc)})
	ctx := context.Background()
	_ = l.Load(ctx)

	store.failSet[KeyBalance] = true
	if err := l.RecordExpense(ctx, cents(250)); !errors.Is(err, kv.ErrStorageWrite) {
		t.Fatalf("err = %v, want storage write error", err)
	}

	// A refresh must not drop the unsaved expense
	l.Refresh(ctx)
	if got := l.Balance(); got != cents(750) {
		t.Fatalf("balance after refresh = %v, want 7.50", got)
	}

	store.failSet[KeyBalance] = false
	if err := l.RecordExpense(ctx, cents(100)); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	raw, _, _ := store.Store.Get(ctx, KeyBalance)
	if string(raw) != "6.50" {
		t.Errorf("persisted balance = %s, want 6.50", raw)
	}
}

func TestConcurrentFirstWageCreditsOnce(t *testing.T) {
	store := newFlakyStore(nil)
	l := newTestLedger(store, &fakeClock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, utc)})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.SetDailyWage(ctx, cents(2000), CreditIfFirst)
			if err != nil {
				t.Errorf("SetDailyWage: %v", err)
				return
			}
			if ok {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if credited != 1 {
		t.Errorf("credited %d times, want 1", credited)
	}
	if got := l.Balance(); got != cents(2000) {
		t.Errorf("balance = %v, want 20.00", got)
	}
}

func TestAmountsAtTheLimits(t *testing.T) {
	ctx := context.Background()
	maxWage := `{"value":1000000000000,"date":"2024-01-01T09:00:00.000Z"}`
	now := time.Date(2024, 1, 11, 9, 0, 0, 0, utc)

	t.Run("stored wage beyond range is ignored", func(t *testing.T) {
		store := newFlakyStore(map[string]string{
			KeyDailyWage: `{"value":90000000000000000,"date":"2024-01-01T09:00:00.000Z"}`,
		})
		l := newTestLedger(store, &fakeClock{now: now})
		if err := l.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if l.HasWage() || !l.Balance().IsZero() {
			t.Errorf("state = %+v, want empty", l.Snapshot())
		}
	})

	t.Run("accrual past the limit is skipped", func(t *testing.T) {
		store := newFlakyStore(map[string]string{KeyBalance: `5`, KeyDailyWage: maxWage})
		l := newTestLedger(store, &fakeClock{now: now})
		if err := l.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got := l.Balance(); got != cents(500) {
			t.Errorf("balance = %v, want untouched 5.00", got)
		}
		w := mustWage(t, l)
		if !w.LastAccrual.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, utc)) {
			t.Errorf("last accrual moved to %v", w.LastAccrual)
		}
		if len(store.sets) != 0 {
			t.Errorf("unexpected writes %v", store.sets)
		}
	})

	t.Run("mutations refuse to leave the range", func(t *testing.T) {
		store := newFlakyStore(map[string]string{KeyBalance: `-1000000000000`})
		l := newTestLedger(store, &fakeClock{now: now})
		_ = l.Load(ctx)

		if err := l.RecordExpense(ctx, cents(1)); !errors.Is(err, core.ErrAmountOverflow) {
			t.Errorf("RecordExpense err = %v, want ErrAmountOverflow", err)
		}
		if err := l.SetBalance(ctx, core.Money{Cents: core.MaxCents + 1}); !errors.Is(err, core.ErrAmountOverflow) {
			t.Errorf("SetBalance err = %v, want ErrAmountOverflow", err)
		}
		if err := l.SetBalance(ctx, core.Money{Cents: core.MaxCents}); err != nil {
			t.Fatalf("SetBalance at the bound: %v", err)
		}
		if _, err := l.SetDailyWage(ctx, cents(1), CreditAlways); !errors.Is(err, core.ErrAmountOverflow) {
			t.Errorf("SetDailyWage err = %v, want ErrAmountOverflow", err)
		}
		if l.HasWage() || l.Balance().Cents != core.MaxCents {
			t.Errorf("state = %+v after rejected mutations", l.Snapshot())
		}
	})
}
