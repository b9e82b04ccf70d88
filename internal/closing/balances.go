package closing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/batasku/periodlock/internal/ledger"
)

// Epsilon is the tolerance for treating a monetary amount as zero.
const Epsilon = 0.01

// Aggregator computes account balances from ledger activity.
type Aggregator struct {
	ledger ledger.Gateway
}

// NewAggregator constructs an aggregator over the given gateway.
func NewAggregator(gw ledger.Gateway) *Aggregator {
	return &Aggregator{ledger: gw}
}

// NominalBalances returns the non-zero balances of Income and Expense
// accounts for activity dated within [start, end]. Income balances are
// credit minus debit, Expense balances debit minus credit, so a positive
// balance is the amount the closing entry must move to retained earnings.
func (a *Aggregator) NominalBalances(ctx context.Context, company string, start, end time.Time) ([]AccountBalance, error) {
	return a.balances(ctx, company, ledger.DateRange{Start: start, End: end}, true)
}

// AllBalances returns the non-zero balances of every account as of the given
// date, signed by the account's natural balance side. Used for the period
// snapshot captured on close.
func (a *Aggregator) AllBalances(ctx context.Context, company string, asOf time.Time) ([]AccountBalance, error) {
	return a.balances(ctx, company, ledger.DateRange{End: asOf}, false)
}

func (a *Aggregator) balances(ctx context.Context, company string, r ledger.DateRange, nominalOnly bool) ([]AccountBalance, error) {
	totals, err := a.ledger.SumLinesByAccount(ctx, company, r)
	if err != nil {
		return nil, fmt.Errorf("closing: aggregate balances: %w", err)
	}
	if len(totals) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(totals))
	for _, t := range totals {
		names = append(names, t.Account)
	}
	accounts, err := a.ledger.AccountsByName(ctx, company, names)
	if err != nil {
		return nil, fmt.Errorf("closing: resolve accounts: %w", err)
	}
	byName := make(map[string]ledger.Account, len(accounts))
	for _, acc := range accounts {
		byName[acc.Name] = acc
	}

	var balances []AccountBalance
	for _, t := range totals {
		acc, ok := byName[t.Account]
		if !ok {
			continue
		}
		// Group accounts roll up their children; counting them alongside
		// the leaves would double the totals.
		if acc.IsGroup {
			continue
		}
		if nominalOnly && !acc.RootType.IsNominal() {
			continue
		}
		var balance float64
		if nominalOnly {
			// Nominal sign convention: positive means a closing credit
			// to retained earnings (income) exceeds a debit (expense).
			if acc.RootType == ledger.RootIncome {
				balance = t.Credit - t.Debit
			} else {
				balance = t.Debit - t.Credit
			}
		} else if acc.RootType.DebitBalance() {
			balance = t.Debit - t.Credit
		} else {
			balance = t.Credit - t.Debit
		}
		if math.Abs(balance) <= Epsilon {
			continue
		}
		balances = append(balances, AccountBalance{
			Account:     acc.Name,
			AccountName: acc.AccountName,
			RootType:    string(acc.RootType),
			Debit:       t.Debit,
			Credit:      t.Credit,
			Balance:     balance,
		})
	}
	return balances, nil
}
