package closing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/batasku/periodlock/internal/ledger"
)

// ErrNoActivity is returned by Compose when the period has no nominal
// balances to zero. The period can still be closed; no entry is created.
var ErrNoActivity = errors.New("closing: no nominal activity in period")

// ClosingEntry is the composed but not yet persisted closing document.
type ClosingEntry struct {
	Entry     ledger.JournalEntry `json:"entry"`
	Balances  []AccountBalance    `json:"balances"`
	NetIncome float64             `json:"net_income"`
}

// Composer builds the closing journal entry that zeroes nominal accounts
// into retained earnings.
type Composer struct {
	ledger ledger.Gateway
}

// NewComposer constructs a composer over the given gateway.
func NewComposer(gw ledger.Gateway) *Composer {
	return &Composer{ledger: gw}
}

// ValidateRetainedEarnings checks that the configured account exists, is an
// Equity ledger account, and is not a group node.
func (c *Composer) ValidateRetainedEarnings(ctx context.Context, company, account string) error {
	if account == "" {
		return NewError(CodeRetainedEarnings, "retained earnings account is not configured")
	}
	acc, err := c.ledger.GetAccount(ctx, company, account)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		return NewError(CodeRetainedEarnings, fmt.Sprintf("retained earnings account %q does not exist", account))
	}
	if err != nil {
		return fmt.Errorf("closing: validate retained earnings: %w", err)
	}
	if acc.RootType != ledger.RootEquity {
		return NewError(CodeRetainedEarnings, fmt.Sprintf("retained earnings account %q must be an Equity account, got %s", account, acc.RootType))
	}
	if acc.IsGroup {
		return NewError(CodeRetainedEarnings, fmt.Sprintf("retained earnings account %q is a group and cannot be posted to", account))
	}
	return nil
}

// Compose turns the period's nominal balances into a balanced closing entry.
// Each income account is debited by its net credit balance and each expense
// account credited by its net debit balance; the residual net income lands
// on the retained earnings account. A net of zero produces no retained
// earnings line.
func (c *Composer) Compose(period Period, cfg Config, balances []AccountBalance) (*ClosingEntry, error) {
	if len(balances) == 0 {
		return nil, ErrNoActivity
	}

	entry := ledger.JournalEntry{
		Company:        period.Company,
		PostingDate:    period.EndDate,
		IsClosingEntry: true,
		PeriodID:       period.ID,
		Remark:         fmt.Sprintf("Closing entry for %s", period.Name),
	}

	var netIncome float64
	for _, b := range balances {
		line := ledger.JournalLine{Account: b.Account}
		switch ledger.RootType(b.RootType) {
		case ledger.RootIncome:
			if b.Balance > 0 {
				line.Debit = b.Balance
			} else {
				line.Credit = -b.Balance
			}
			netIncome += b.Balance
		case ledger.RootExpense:
			if b.Balance > 0 {
				line.Credit = b.Balance
			} else {
				line.Debit = -b.Balance
			}
			netIncome -= b.Balance
		default:
			continue
		}
		entry.Lines = append(entry.Lines, line)
	}
	if len(entry.Lines) == 0 {
		return nil, ErrNoActivity
	}

	switch {
	case netIncome > Epsilon:
		entry.Lines = append(entry.Lines, ledger.JournalLine{
			Account: cfg.RetainedEarningsAccount,
			Credit:  netIncome,
			Remark:  "Net income transferred to retained earnings",
		})
	case netIncome < -Epsilon:
		entry.Lines = append(entry.Lines, ledger.JournalLine{
			Account: cfg.RetainedEarningsAccount,
			Debit:   -netIncome,
			Remark:  "Net loss transferred to retained earnings",
		})
	}

	if diff := entry.TotalDebit() - entry.TotalCredit(); math.Abs(diff) > Epsilon {
		return nil, NewError(CodeUnbalancedEntry,
			fmt.Sprintf("closing entry is out of balance by %.2f", diff))
	}

	return &ClosingEntry{Entry: entry, Balances: balances, NetIncome: netIncome}, nil
}
