package closing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batasku/periodlock/internal/ledger"
)

func testPeriod() Period {
	return Period{
		ID:        1,
		Name:      "January 2025",
		Company:   "Acme",
		StartDate: date(2025, time.January, 1),
		EndDate:   date(2025, time.January, 31),
		Status:    StatusOpen,
	}
}

func testConfig() Config {
	return Config{
		Company:                 "Acme",
		RetainedEarningsAccount: "Retained Earnings",
	}
}

func lineFor(t *testing.T, entry ledger.JournalEntry, account string) ledger.JournalLine {
	t.Helper()
	for _, l := range entry.Lines {
		if l.Account == account {
			return l
		}
	}
	t.Fatalf("no line for account %s", account)
	return ledger.JournalLine{}
}

func TestComposeNetIncomeCreditsRetainedEarnings(t *testing.T) {
	composer := NewComposer(newMockLedger())
	balances := []AccountBalance{
		{Account: "Sales Revenue", RootType: "Income", Balance: 500000},
		{Account: "Salaries Expense", RootType: "Expense", Balance: 300000},
	}

	composed, err := composer.Compose(testPeriod(), testConfig(), balances)
	require.NoError(t, err)
	require.Len(t, composed.Entry.Lines, 3)
	assert.InDelta(t, 200000, composed.NetIncome, Epsilon)

	income := lineFor(t, composed.Entry, "Sales Revenue")
	assert.InDelta(t, 500000, income.Debit, Epsilon, "income zeroed with a debit")
	expense := lineFor(t, composed.Entry, "Salaries Expense")
	assert.InDelta(t, 300000, expense.Credit, Epsilon, "expense zeroed with a credit")
	retained := lineFor(t, composed.Entry, "Retained Earnings")
	assert.InDelta(t, 200000, retained.Credit, Epsilon, "net income credited to retained earnings")

	assert.InDelta(t, composed.Entry.TotalDebit(), composed.Entry.TotalCredit(), Epsilon)
	assert.True(t, composed.Entry.IsClosingEntry)
	assert.Equal(t, date(2025, time.January, 31), composed.Entry.PostingDate)
}

func TestComposeNetLossDebitsRetainedEarnings(t *testing.T) {
	composer := NewComposer(newMockLedger())
	balances := []AccountBalance{
		{Account: "Sales Revenue", RootType: "Income", Balance: 200000},
		{Account: "Salaries Expense", RootType: "Expense", Balance: 350000},
	}

	composed, err := composer.Compose(testPeriod(), testConfig(), balances)
	require.NoError(t, err)
	assert.InDelta(t, -150000, composed.NetIncome, Epsilon)

	retained := lineFor(t, composed.Entry, "Retained Earnings")
	assert.InDelta(t, 150000, retained.Debit, Epsilon, "net loss debited to retained earnings")
	assert.InDelta(t, composed.Entry.TotalDebit(), composed.Entry.TotalCredit(), Epsilon)
}

func TestComposeZeroNetIncomeOmitsRetainedEarningsLine(t *testing.T) {
	composer := NewComposer(newMockLedger())
	balances := []AccountBalance{
		{Account: "Sales Revenue", RootType: "Income", Balance: 250000},
		{Account: "Salaries Expense", RootType: "Expense", Balance: 250000},
	}

	composed, err := composer.Compose(testPeriod(), testConfig(), balances)
	require.NoError(t, err)
	require.Len(t, composed.Entry.Lines, 2)
	for _, l := range composed.Entry.Lines {
		assert.NotEqual(t, "Retained Earnings", l.Account)
	}
	assert.InDelta(t, composed.Entry.TotalDebit(), composed.Entry.TotalCredit(), Epsilon)
}

func TestComposeNegativeNominalBalances(t *testing.T) {
	composer := NewComposer(newMockLedger())
	// A contra income account (net debit) and an expense refund (net credit).
	balances := []AccountBalance{
		{Account: "Sales Returns", RootType: "Income", Balance: -40000},
		{Account: "Rent Expense", RootType: "Expense", Balance: -10000},
	}

	composed, err := composer.Compose(testPeriod(), testConfig(), balances)
	require.NoError(t, err)

	returns := lineFor(t, composed.Entry, "Sales Returns")
	assert.InDelta(t, 40000, returns.Credit, Epsilon)
	rent := lineFor(t, composed.Entry, "Rent Expense")
	assert.InDelta(t, 10000, rent.Debit, Epsilon)
	assert.InDelta(t, -30000, composed.NetIncome, Epsilon)
	assert.InDelta(t, composed.Entry.TotalDebit(), composed.Entry.TotalCredit(), Epsilon)
}

func TestComposeNoActivity(t *testing.T) {
	composer := NewComposer(newMockLedger())

	_, err := composer.Compose(testPeriod(), testConfig(), nil)
	assert.ErrorIs(t, err, ErrNoActivity)

	// Balances with only real accounts count as no nominal activity.
	_, err = composer.Compose(testPeriod(), testConfig(), []AccountBalance{
		{Account: "Cash", RootType: "Asset", Balance: 1000},
	})
	assert.ErrorIs(t, err, ErrNoActivity)
}

func TestValidateRetainedEarnings(t *testing.T) {
	gw := newMockLedger()
	gw.addAccount("Retained Earnings", ledger.RootEquity, false)
	gw.addAccount("Equity", ledger.RootEquity, true)
	gw.addAccount("Sales Revenue", ledger.RootIncome, false)
	composer := NewComposer(gw)
	ctx := context.Background()

	assert.NoError(t, composer.ValidateRetainedEarnings(ctx, "Acme", "Retained Earnings"))

	cases := []struct {
		name    string
		account string
	}{
		{"unconfigured", ""},
		{"missing", "Nothing Here"},
		{"wrong root type", "Sales Revenue"},
		{"group account", "Equity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := composer.ValidateRetainedEarnings(ctx, "Acme", tc.account)
			var domainErr *Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, CodeRetainedEarnings, domainErr.Code)
		})
	}
}
