package closing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batasku/periodlock/internal/ledger"
)

func TestNominalBalancesSignConventions(t *testing.T) {
	gw := newMockLedger()
	gw.addAccount("Sales Revenue", ledger.RootIncome, false)
	gw.addAccount("Salaries Expense", ledger.RootExpense, false)
	gw.addAccount("Cash", ledger.RootAsset, false)
	gw.totals = []ledger.AccountTotals{
		{Account: "Sales Revenue", Debit: 20000, Credit: 520000},
		{Account: "Salaries Expense", Debit: 310000, Credit: 10000},
		{Account: "Cash", Debit: 900000, Credit: 100000},
	}

	agg := NewAggregator(gw)
	balances, err := agg.NominalBalances(context.Background(), "Acme",
		date(2025, time.January, 1), date(2025, time.January, 31))
	require.NoError(t, err)
	require.Len(t, balances, 2, "real accounts must be excluded")

	byAccount := make(map[string]AccountBalance)
	for _, b := range balances {
		byAccount[b.Account] = b
	}
	assert.InDelta(t, 500000, byAccount["Sales Revenue"].Balance, Epsilon, "income is credit minus debit")
	assert.InDelta(t, 300000, byAccount["Salaries Expense"].Balance, Epsilon, "expense is debit minus credit")
	assert.NotContains(t, byAccount, "Cash")
}

func TestNominalBalancesUsesPeriodWindow(t *testing.T) {
	gw := newMockLedger()
	agg := NewAggregator(gw)

	start := date(2025, time.March, 1)
	end := date(2025, time.March, 31)
	_, err := agg.NominalBalances(context.Background(), "Acme", start, end)
	require.NoError(t, err)

	assert.Equal(t, start, gw.lastRange.Start)
	assert.Equal(t, end, gw.lastRange.End)
}

func TestNominalBalancesDropsNearZero(t *testing.T) {
	gw := newMockLedger()
	gw.addAccount("Sales Revenue", ledger.RootIncome, false)
	gw.addAccount("Rounding", ledger.RootExpense, false)
	gw.totals = []ledger.AccountTotals{
		{Account: "Sales Revenue", Debit: 100, Credit: 100.005},
		{Account: "Rounding", Debit: 50.004, Credit: 50},
	}

	agg := NewAggregator(gw)
	balances, err := agg.NominalBalances(context.Background(), "Acme",
		date(2025, time.January, 1), date(2025, time.January, 31))
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestNominalBalancesDropsExactEpsilon(t *testing.T) {
	gw := newMockLedger()
	gw.addAccount("Sales Revenue", ledger.RootIncome, false)
	gw.totals = []ledger.AccountTotals{
		// Exactly at the tolerance: still treated as zero.
		{Account: "Sales Revenue", Debit: 100, Credit: 100.01},
	}

	agg := NewAggregator(gw)
	balances, err := agg.NominalBalances(context.Background(), "Acme",
		date(2025, time.January, 1), date(2025, time.January, 31))
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestBalancesExcludeGroupAccounts(t *testing.T) {
	gw := newMockLedger()
	gw.addAccount("Income", ledger.RootIncome, true)
	gw.addAccount("Sales Revenue", ledger.RootIncome, false)
	gw.totals = []ledger.AccountTotals{
		// A group total duplicates its children; only leaves may close.
		{Account: "Income", Debit: 0, Credit: 500000},
		{Account: "Sales Revenue", Debit: 0, Credit: 500000},
	}

	agg := NewAggregator(gw)
	balances, err := agg.NominalBalances(context.Background(), "Acme",
		date(2025, time.January, 1), date(2025, time.January, 31))
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "Sales Revenue", balances[0].Account)

	snapshot, err := agg.AllBalances(context.Background(), "Acme",
		date(2025, time.January, 31))
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "Sales Revenue", snapshot[0].Account)
}

func TestAllBalancesByNaturalSide(t *testing.T) {
	gw := newMockLedger()
	gw.addAccount("Cash", ledger.RootAsset, false)
	gw.addAccount("Accounts Payable", ledger.RootLiability, false)
	gw.addAccount("Retained Earnings", ledger.RootEquity, false)
	gw.totals = []ledger.AccountTotals{
		{Account: "Cash", Debit: 700000, Credit: 300000},
		{Account: "Accounts Payable", Debit: 50000, Credit: 250000},
		{Account: "Retained Earnings", Debit: 0, Credit: 150000},
	}

	agg := NewAggregator(gw)
	balances, err := agg.AllBalances(context.Background(), "Acme", date(2025, time.January, 31))
	require.NoError(t, err)
	require.Len(t, balances, 3)

	byAccount := make(map[string]float64)
	for _, b := range balances {
		byAccount[b.Account] = b.Balance
	}
	assert.InDelta(t, 400000, byAccount["Cash"], Epsilon)
	assert.InDelta(t, 200000, byAccount["Accounts Payable"], Epsilon)
	assert.InDelta(t, 150000, byAccount["Retained Earnings"], Epsilon)
	assert.True(t, gw.lastRange.Start.IsZero(), "snapshot has no lower bound")
}

func TestBalancesSkipsUnknownAccounts(t *testing.T) {
	gw := newMockLedger()
	gw.totals = []ledger.AccountTotals{
		{Account: "Ghost", Debit: 100, Credit: 0},
	}

	agg := NewAggregator(gw)
	balances, err := agg.AllBalances(context.Background(), "Acme", date(2025, time.January, 31))
	require.NoError(t, err)
	assert.Empty(t, balances)
}
