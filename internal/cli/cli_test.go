package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paga/internal/core"
	"paga/internal/kv"
	"paga/internal/kv/memory"
	"paga/internal/ledger"
)

var cliNow = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

type failingStore struct {
	*memory.Store
}

func (failingStore) Set(context.Context, string, []byte) error { return errors.New("read-only disk") }

type harness struct {
	store  kv.Store
	opens  int
	closes int
}

func newHarness(seed map[string]string) *harness {
	return &harness{store: memory.NewWithData(seed)}
}

func (h *harness) open(ctx context.Context) (LedgerService, func() error, error) {
	h.opens++
	l := ledger.New(h.store,
		ledger.WithClock(func() time.Time { return cliNow }),
		ledger.WithLocation(time.UTC))
	if err := l.Load(ctx); err != nil {
		return nil, nil, err
	}
	return l, func() error { h.closes++; return nil }, nil
}

func (h *harness) ledger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(h.store, ledger.WithClock(func() time.Time { return cliNow }), ledger.WithLocation(time.UTC))
	require.NoError(t, l.Load(context.Background()))
	return l
}

func run(t *testing.T, h *harness, confirm ConfirmFunc, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	root := NewRootCmd(h.open, confirm)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatus(t *testing.T) {
	h := newHarness(map[string]string{
		"balance":   "35",
		"dailyWage": `{"value":20,"date":"2024-01-08T09:00:00.000Z"}`,
	})

	out, err := run(t, h, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "75.00")
	assert.Contains(t, out, "daily wage: 20.00")
	assert.Contains(t, out, "2024-01-10 09:00")
	assert.Equal(t, 1, h.opens)
	assert.Equal(t, 1, h.closes)
}

func TestWageSetCreditsFirstTimeOnly(t *testing.T) {
	h := newHarness(nil)

	out, err := run(t, h, nil, "wage", "set", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "credited")
	assert.Equal(t, int64(2000), h.ledger(t).Balance().Cents)

	out, err = run(t, h, nil, "wage", "set", "25,50")
	require.NoError(t, err)
	assert.NotContains(t, out, "credited")
	l := h.ledger(t)
	assert.Equal(t, int64(2000), l.Balance().Cents)
	wg, ok := l.DailyWage().Get()
	require.True(t, ok)
	assert.Equal(t, int64(2550), wg.Amount.Cents)

	_, err = run(t, h, nil, "wage", "set", "10", "--credit")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), h.ledger(t).Balance().Cents)
}

func TestWageSetCreditFalseOnFirstConfiguration(t *testing.T) {
	h := newHarness(nil)

	_, err := run(t, h, nil, "wage", "set", "20", "--credit=false")
	require.NoError(t, err)
	l := h.ledger(t)
	assert.True(t, l.HasWage())
	assert.Equal(t, int64(0), l.Balance().Cents)
}

func TestExpenseAndBalance(t *testing.T) {
	h := newHarness(map[string]string{"balance": "10"})

	out, err := run(t, h, nil, "expense", "12.345")
	require.NoError(t, err)
	assert.Contains(t, out, "-2.35")

	_, err = run(t, h, nil, "balance", "set", "--", "-7.5")
	require.NoError(t, err)
	assert.Equal(t, int64(-750), h.ledger(t).Balance().Cents)
}

func TestInvalidAmountsNeverOpenLedger(t *testing.T) {
	tests := [][]string{
		{"expense", "abc"},
		{"expense", "0"},
		{"wage", "set", "-3"},
		{"balance", "set", "lots"},
	}
	for _, args := range tests {
		h := newHarness(nil)
		_, err := run(t, h, nil, args...)
		assert.Error(t, err, "%v", args)
		assert.Equal(t, 0, h.opens, "%v", args)
	}
}

func TestWriteFailureIsReported(t *testing.T) {
	h := &harness{store: failingStore{Store: memory.NewWithData(map[string]string{"balance": "10"})}}

	_, err := run(t, h, nil, "expense", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.ErrStorageWrite)
	assert.Contains(t, err.Error(), "could not be saved")
	assert.Equal(t, 1, h.closes)
}

func TestReset(t *testing.T) {
	seed := map[string]string{
		"balance":   "10",
		"dailyWage": `{"value":20,"date":"2024-01-10T09:00:00.000Z"}`,
	}

	t.Run("declined", func(t *testing.T) {
		h := newHarness(seed)
		var asked string
		out, err := run(t, h, func(p string) (bool, error) { asked = p; return false, nil }, "reset")
		require.NoError(t, err)
		assert.Contains(t, out, "cancelled")
		assert.NotEmpty(t, asked)
		assert.Equal(t, 0, h.opens)
		assert.Equal(t, int64(1000), h.ledger(t).Balance().Cents)
	})

	t.Run("confirmed", func(t *testing.T) {
		h := newHarness(seed)
		out, err := run(t, h, AlwaysYes(), "reset")
		require.NoError(t, err)
		assert.Contains(t, out, "ledger reset")
		l := h.ledger(t)
		assert.False(t, l.HasWage())
		assert.Equal(t, int64(0), l.Balance().Cents)
	})

	t.Run("yes flag skips prompt", func(t *testing.T) {
		h := newHarness(seed)
		prompted := false
		_, err := run(t, h, func(string) (bool, error) { prompted = true; return false, nil }, "reset", "--yes")
		require.NoError(t, err)
		assert.False(t, prompted)
		assert.False(t, h.ledger(t).HasWage())
	})

	t.Run("prompt error", func(t *testing.T) {
		h := newHarness(seed)
		_, err := run(t, h, func(string) (bool, error) { return false, errors.New("no tty") }, "reset")
		assert.EqualError(t, err, "no tty")
	})
}

func TestOpenFailure(t *testing.T) {
	root := NewRootCmd(func(context.Context) (LedgerService, func() error, error) {
		return nil, nil, errors.New("db locked")
	}, nil)
	root.SetArgs([]string{"status"})
	root.SetOut(new(bytes.Buffer))
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open ledger: db locked")
}

func TestLeafCommandBuild(t *testing.T) {
	cmd := LeafCommand{
		Use:   "test",
		Short: "A test command",
		Args:  cobra.ExactArgs(1),
		BoolFlags: []BoolFlag{
			{Name: "dry-run", Usage: "simulate", Default: true},
		},
		RunE: func(cmd *cobra.Command, args []string) error { return nil },
	}.Build()

	assert.Equal(t, "test", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	f := cmd.Flags().Lookup("dry-run")
	require.NotNil(t, f)
	assert.Equal(t, "true", f.DefValue)
}

func TestGroupCommandBuild(t *testing.T) {
	sub := &cobra.Command{Use: "child"}
	cmd := GroupCommand{Use: "parent", Subcommands: []*cobra.Command{sub}}.Build()
	assert.Len(t, cmd.Commands(), 1)
	assert.Equal(t, "child", cmd.Commands()[0].Use)
}

func TestCommandsAndServerShareTheStore(t *testing.T) {
	h := newHarness(map[string]string{"balance": "100"})
	server := h.ledger(t)

	_, err := run(t, h, nil, "expense", "30")
	require.NoError(t, err)
	require.NoError(t, server.RecordExpense(context.Background(), core.Money{Cents: 100}))

	assert.Equal(t, int64(6900), h.ledger(t).Balance().Cents)

	_, err = run(t, h, nil, "wage", "set", "10")
	require.NoError(t, err)
	credited, err := server.SetDailyWage(context.Background(), core.Money{Cents: 1200}, ledger.CreditIfFirst)
	require.NoError(t, err)
	assert.False(t, credited, "wage set by the command must count as configured")
	assert.Equal(t, int64(7900), h.ledger(t).Balance().Cents)
}
